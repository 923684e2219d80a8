package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexjbarnes/campusctl/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LoginOptions shapes the login answer.
type LoginOptions struct {
	// CookiesOnly omits the token pair from the response body so the
	// client has to read it from Set-Cookie.
	CookiesOnly bool
}

func setTokenCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTokenCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleLogin returns the POST /api/user/login handler. Failed attempts
// are rate limited per remote address.
func HandleLogin(store *Store, issuer *Issuer, opts LoginOptions, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)

		if !store.LoginAllowed(ip) {
			logger.Warn("login rate limited", slog.String("ip", ip))
			writeEnvelope(w, http.StatusTooManyRequests, models.Envelope{Error: true, Message: "Too many login attempts, try again later"})

			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, models.Envelope{Error: true, Message: "Invalid request body"})
			return
		}

		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeEnvelope(w, http.StatusBadRequest, models.Envelope{Error: true, Message: "Provide email and password"})
			return
		}

		user, err := store.Authenticate(req.Email, req.Password)
		if err != nil {
			store.RecordLoginFailure(ip)
			logger.Info("login failed", slog.String("ip", ip))
			writeEnvelope(w, http.StatusBadRequest, models.Envelope{Error: true, Message: "Invalid email or password"})

			return
		}

		access, err := issuer.Mint(user.ID)
		if err != nil {
			logger.Error("minting access token", slog.String("error", err.Error()))
			writeEnvelope(w, http.StatusInternalServerError, models.Envelope{Error: true, Message: "Internal server error"})

			return
		}

		refresh := store.IssueRefreshToken(user.ID)

		setTokenCookie(w, AccessTokenCookie, access)
		setTokenCookie(w, RefreshTokenCookie, refresh)

		logger.Info("login", slog.String("user_id", user.ID), slog.String("ip", ip))

		env := models.Envelope{Success: true, Message: "Login successfully"}
		if !opts.CookiesOnly {
			env.Data = tokenPair{AccessToken: access, RefreshToken: refresh}
		}

		writeEnvelope(w, http.StatusOK, env)
	}
}

// HandleRefresh returns the POST /api/user/refresh-token handler. The
// refresh token comes as bearer credential or in the refreshToken
// cookie.
func HandleRefresh(store *Store, issuer *Issuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r, RefreshTokenCookie)
		if token == "" {
			writeEnvelope(w, http.StatusUnauthorized, models.Envelope{Error: true, Message: "Invalid refresh token"})
			return
		}

		userID, next, ok := store.Redeem(token)
		if !ok {
			logger.Debug("refresh: token rejected", slog.String("ip", remoteIP(r)))
			writeEnvelope(w, http.StatusUnauthorized, models.Envelope{Error: true, Message: "Invalid refresh token"})

			return
		}

		access, err := issuer.Mint(userID)
		if err != nil {
			logger.Error("minting access token", slog.String("error", err.Error()))
			writeEnvelope(w, http.StatusInternalServerError, models.Envelope{Error: true, Message: "Internal server error"})

			return
		}

		setTokenCookie(w, AccessTokenCookie, access)
		if next != "" {
			setTokenCookie(w, RefreshTokenCookie, next)
		}

		logger.Debug("refresh: access token renewed",
			slog.String("user_id", userID),
			slog.Bool("rotated", next != ""),
		)

		writeEnvelope(w, http.StatusOK, models.Envelope{
			Success: true,
			Message: "New access token generated",
			Data:    tokenPair{AccessToken: access, RefreshToken: next},
		})
	}
}

// HandleLogout returns the GET /api/user/logout handler. It must sit
// behind Middleware.
func HandleLogout(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := RequestUserID(r.Context())
		revoked := store.RevokeUser(userID)

		clearTokenCookie(w, AccessTokenCookie)
		clearTokenCookie(w, RefreshTokenCookie)

		logger.Info("logout", slog.String("user_id", userID), slog.Int("revoked", revoked))

		writeEnvelope(w, http.StatusOK, models.Envelope{Success: true, Message: "Logout successfully"})
	}
}

// HandleUserDetails returns the GET /api/user/user-details handler. It
// must sit behind Middleware.
func HandleUserDetails(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := store.User(RequestUserID(r.Context()))
		if !ok {
			writeEnvelope(w, http.StatusNotFound, models.Envelope{Error: true, Message: "User not found"})
			return
		}

		writeEnvelope(w, http.StatusOK, models.Envelope{Success: true, Message: "User details", Data: user})
	}
}

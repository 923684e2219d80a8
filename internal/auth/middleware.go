package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alexjbarnes/campusctl/internal/models"
)

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxRemoteIP
)

// Cookie names the backend sets on login and renewal.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// RequestUserID returns the authenticated user ID from the context, or "".
func RequestUserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// remoteIP extracts the IP address from r.RemoteAddr, stripping the
// port. Falls back to the raw value if parsing fails.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// bearerToken reads the Authorization header, then the named cookie.
func bearerToken(r *http.Request, cookie string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	if c, err := r.Cookie(cookie); err == nil {
		return c.Value
	}

	return ""
}

// Middleware returns HTTP middleware that requires a valid access token
// in the Authorization header or the accessToken cookie. Missing,
// expired and revoked tokens all get 401.
func Middleware(issuer *Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)

			token := bearerToken(r, AccessTokenCookie)
			if token == "" {
				logger.Debug("middleware: no bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				writeEnvelope(w, http.StatusUnauthorized, models.Envelope{Error: true, Message: "Provide token"})

				return
			}

			userID, err := issuer.Verify(token)
			if err != nil {
				logger.Debug("middleware: invalid bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeEnvelope(w, http.StatusUnauthorized, models.Envelope{Error: true, Message: "jwt expired"})

				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxRemoteIP, ip)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeEnvelope writes env as JSON with the given status.
func writeEnvelope(w http.ResponseWriter, status int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

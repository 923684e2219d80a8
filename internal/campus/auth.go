package campus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/campusctl/internal/api"
	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/tidwall/gjson"
)

// Cookie names the backend may deliver the pair in.
const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair, starts the session and
// returns the signed-in user. The pair is read from the response body,
// falling back to the cookies the backend sets.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	req, err := api.NewRequest(EndpointLogin.Method, EndpointLogin.Path, loginRequest{Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}

	req.SkipAuth = true

	resp, err := s.client.Send(ctx, req)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
			return models.User{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, apiErr.Message)
		}

		return models.User{}, fmt.Errorf("logging in: %w", err)
	}

	if _, err := decodeEnvelope(req.Path, resp); err != nil {
		var envErr *EnvelopeError
		if errors.As(err, &envErr) {
			return models.User{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, envErr.Message)
		}

		return models.User{}, err
	}

	creds := session.Credentials{
		AccessToken:  tokenFrom(resp, "data.accessToken", accessTokenCookie),
		RefreshToken: tokenFrom(resp, "data.refreshToken", refreshTokenCookie),
	}
	if creds.AccessToken == "" {
		return models.User{}, fmt.Errorf("%w: login response carries no access token", apperrors.ErrAPIResponse)
	}

	if err := s.client.StartSession(creds); err != nil {
		return models.User{}, fmt.Errorf("starting session: %w", err)
	}

	user, err := s.UserDetails(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("fetching user details: %w", err)
	}

	s.logger.Info("logged in",
		slog.String("user_id", user.ID),
		slog.Bool("refresh_token", creds.RefreshToken != ""),
	)

	return user, nil
}

func tokenFrom(resp *api.Response, path, cookie string) string {
	if v := gjson.GetBytes(resp.Body, path); v.Type == gjson.String && v.Str != "" {
		return v.Str
	}

	return resp.Cookie(cookie)
}

// Logout tells the backend the session is over and clears it locally.
// The remote call is best effort; the local session is cleared even if
// it fails.
func (s *Service) Logout(ctx context.Context) error {
	if _, err := s.do(ctx, EndpointLogout, "", nil, nil); err != nil {
		s.logger.Warn("logout request failed", slog.String("error", err.Error()))
	}

	if err := s.client.EndSession(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	s.logger.Info("logged out")

	return nil
}

// UserDetails returns the signed-in user.
func (s *Service) UserDetails(ctx context.Context) (models.User, error) {
	var user models.User
	if _, err := s.get(ctx, EndpointUserDetails, "", nil, nil, &user); err != nil {
		return models.User{}, err
	}

	return user, nil
}

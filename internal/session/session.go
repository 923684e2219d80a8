// Package session owns the credential pair shared by every outbound API
// call. A Session moves through login (Start), renewal (Renew) and
// clearing (Clear); each change is written through to a Store.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the access/refresh token pair. The access token is
// short-lived and attached to every request; the refresh token is only
// used to mint a new access token.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether neither token is set.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

//go:generate mockgen -source=session.go -destination=mock_store_test.go -package=session

// Store persists the credential pair between runs.
type Store interface {
	LoadCredentials() (Credentials, error)
	SaveCredentials(Credentials) error
	ClearCredentials() error
}

// Session is the process-wide holder of the credential pair.
type Session struct {
	mu     sync.RWMutex
	creds  Credentials
	store  Store
	logger *slog.Logger
}

// New creates a session seeded from the store. A nil store keeps the
// credentials in memory only.
func New(store Store, logger *slog.Logger) (*Session, error) {
	if store == nil {
		store = NewMemoryStore()
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	creds, err := store.LoadCredentials()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	return &Session{creds: creds, store: store, logger: logger}, nil
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.creds.AccessToken
}

// RefreshToken returns the current refresh token, or "".
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.creds.RefreshToken
}

// Credentials returns a copy of the current pair.
func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.creds
}

// Authenticated reports whether a refresh token is held, i.e. whether
// the session can still obtain access tokens.
func (s *Session) Authenticated() bool {
	return s.RefreshToken() != ""
}

// Start replaces the pair after a successful login.
func (s *Session) Start(creds Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("starting session: access token is empty")
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if err := s.store.SaveCredentials(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	s.logger.Debug("session started", slog.Bool("has_refresh_token", creds.RefreshToken != ""))

	return nil
}

// Renew installs a freshly minted access token. When the server did not
// rotate the refresh token (refreshToken is empty) the old one is kept.
// The in-memory pair is updated even if persisting it fails.
func (s *Session) Renew(accessToken, refreshToken string) error {
	if accessToken == "" {
		return fmt.Errorf("renewing session: access token is empty")
	}

	s.mu.Lock()
	s.creds.AccessToken = accessToken
	if refreshToken != "" {
		s.creds.RefreshToken = refreshToken
	}
	creds := s.creds
	s.mu.Unlock()

	if err := s.store.SaveCredentials(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	return nil
}

// Clear drops both tokens, in memory and in the store.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()

	if err := s.store.ClearCredentials(); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	s.logger.Debug("session cleared")

	return nil
}

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying its signature. The client never holds the signing key, so
// this is informational only. ok is false for opaque or exp-less tokens.
func AccessTokenExpiry(token string) (expiresAt time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadCredentials implements Store.
func (m *MemoryStore) LoadCredentials() (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.creds, nil
}

// SaveCredentials implements Store.
func (m *MemoryStore) SaveCredentials(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = c

	return nil
}

// ClearCredentials implements Store.
func (m *MemoryStore) ClearCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = Credentials{}

	return nil
}

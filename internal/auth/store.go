// Package auth is the token authority of the fake campus backend. It
// keeps accounts and refresh tokens in memory, mints short-lived JWT
// access tokens and guards the protected routes.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultRefreshTTL is how long a refresh token stays redeemable.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// cleanupInterval controls how often expired entries are reaped.
	cleanupInterval = 5 * time.Minute

	// loginAttemptsPerMinute caps failed logins from one address.
	loginAttemptsPerMinute = 10

	// rateLimitPruneThreshold is the number of tracked addresses above
	// which expired entries are pruned.
	rateLimitPruneThreshold = 1000

	refreshTokenBytes = 32
)

var errDuplicateEmail = errors.New("email already registered")

type account struct {
	user models.User
	hash []byte
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// StoreOptions tunes refresh token handling.
type StoreOptions struct {
	// RefreshTTL defaults to DefaultRefreshTTL.
	RefreshTTL time.Duration
	// RotateRefreshTokens makes every renewal consume the presented
	// refresh token and hand out a new one.
	RotateRefreshTokens bool
}

// Store holds accounts and issued refresh tokens.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account      // lower-cased email -> account
	byID     map[string]*account      // user id -> account
	refresh  map[string]*refreshEntry // refresh token -> entry
	failures map[string][]time.Time   // remote address -> failed logins
	stopGC   chan struct{}
	stopOnce sync.Once

	refreshTTL time.Duration
	rotate     bool
	logger     *slog.Logger

	renewals atomic.Int64
}

// NewStore creates an empty store and starts a background goroutine
// that removes expired refresh tokens. Call Stop to end it.
func NewStore(opts StoreOptions, logger *slog.Logger) *Store {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		accounts:   make(map[string]*account),
		byID:       make(map[string]*account),
		refresh:    make(map[string]*refreshEntry),
		failures:   make(map[string][]time.Time),
		stopGC:     make(chan struct{}),
		refreshTTL: opts.RefreshTTL,
		rotate:     opts.RotateRefreshTokens,
		logger:     logger,
	}
	go s.gcLoop()

	return s
}

// Stop terminates the background cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopGC) })
}

func (s *Store) gcLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopGC:
			return
		}
	}
}

// cleanup removes expired refresh tokens.
func (s *Store) cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.refresh {
		if now.After(e.expiresAt) {
			delete(s.refresh, k)
		}
	}
}

// HashPassword returns the bcrypt hash of password at the given cost.
// A cost of zero means bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// AddUser registers an account with an already hashed password. An
// empty user ID is filled with a random one.
func (s *Store) AddUser(u models.User, passwordHash string) (models.User, error) {
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if key == "" {
		return models.User{}, errors.New("email is required")
	}

	if u.ID == "" {
		u.ID = RandomHex(12)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key]; ok {
		return models.User{}, errDuplicateEmail
	}

	a := &account{user: u, hash: []byte(passwordHash)}
	s.accounts[key] = a
	s.byID[u.ID] = a

	return u, nil
}

// Authenticate checks an email and password pair.
func (s *Store) Authenticate(email, password string) (models.User, error) {
	s.mu.RLock()
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()

	if !ok {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return a.user, nil
}

// User returns the account with the given ID.
func (s *Store) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return models.User{}, false
	}

	return a.user, true
}

// IssueRefreshToken stores and returns a new refresh token for userID.
func (s *Store) IssueRefreshToken(userID string) string {
	token := RandomHex(refreshTokenBytes)

	s.mu.Lock()
	s.refresh[token] = &refreshEntry{userID: userID, expiresAt: time.Now().Add(s.refreshTTL)}
	s.mu.Unlock()

	return token
}

// Redeem validates a refresh token for a renewal. With rotation on, the
// presented token is consumed and next holds its replacement; otherwise
// next is empty.
func (s *Store) Redeem(token string) (userID, next string, ok bool) {
	s.renewals.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.refresh[token]
	if !found {
		return "", "", false
	}

	if time.Now().After(e.expiresAt) {
		delete(s.refresh, token)
		return "", "", false
	}

	if !s.rotate {
		return e.userID, "", true
	}

	delete(s.refresh, token)

	next = RandomHex(refreshTokenBytes)
	s.refresh[next] = &refreshEntry{userID: e.userID, expiresAt: time.Now().Add(s.refreshTTL)}

	return e.userID, next, true
}

// RevokeUser drops every refresh token held by userID.
func (s *Store) RevokeUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for k, e := range s.refresh {
		if e.userID == userID {
			delete(s.refresh, k)
			n++
		}
	}

	return n
}

// Renewals reports how many renewal attempts reached the store.
func (s *Store) Renewals() int64 {
	return s.renewals.Load()
}

// LoginAllowed reports whether addr is still under the failed login
// limit for the last minute.
func (s *Store) LoginAllowed(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := time.Now().Add(-1 * time.Minute)

	recent := s.failures[addr][:0]
	for _, t := range s.failures[addr] {
		if t.After(window) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(s.failures, addr)
	} else {
		s.failures[addr] = recent
	}

	return len(recent) < loginAttemptsPerMinute
}

// RecordLoginFailure counts a failed login from addr.
func (s *Store) RecordLoginFailure(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > rateLimitPruneThreshold {
		window := time.Now().Add(-1 * time.Minute)

		for k, times := range s.failures {
			if len(times) == 0 || times[len(times)-1].Before(window) {
				delete(s.failures, k)
			}
		}
	}

	s.failures[addr] = append(s.failures[addr], time.Now())
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}

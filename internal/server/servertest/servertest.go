// Package servertest runs the fake campus backend on an httptest
// server for tests in other packages.
package servertest

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexjbarnes/campusctl/internal/auth"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/alexjbarnes/campusctl/internal/server"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Seeded account.
const (
	Email    = "admin@school.test"
	Password = "correct horse"
)

// Options tunes the backend.
type Options struct {
	RotateRefreshTokens bool
	CookiesOnlyLogin    bool
	AccessTTL           time.Duration
	// Clock drives the attendance directory. Nil means time.Now.
	Clock func() time.Time
}

// Backend is a running fake backend.
type Backend struct {
	*httptest.Server

	Store     *auth.Store
	Issuer    *auth.Issuer
	Directory *server.Directory
	User      models.User
}

// New starts a backend with one seeded account and closes it when the
// test ends.
func New(t testing.TB, opts Options) *Backend {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	store := auth.NewStore(auth.StoreOptions{RotateRefreshTokens: opts.RotateRefreshTokens}, logger)
	t.Cleanup(store.Stop)

	hash, err := auth.HashPassword(Password, bcrypt.MinCost)
	require.NoError(t, err)

	user, err := store.AddUser(models.User{Name: "Admin", Email: Email, Role: "ADMIN"}, hash)
	require.NoError(t, err)

	b := &Backend{
		Store:     store,
		Issuer:    auth.NewIssuer(nil, opts.AccessTTL),
		Directory: server.NewDirectory(opts.Clock),
		User:      user,
	}

	b.Server = httptest.NewServer(server.NewMux(server.MuxConfig{
		Store:     b.Store,
		Issuer:    b.Issuer,
		Directory: b.Directory,
		Logger:    logger,
		Login:     auth.LoginOptions{CookiesOnly: opts.CookiesOnlyLogin},
	}))
	t.Cleanup(b.Close)

	return b
}

// ExpireAccessTokens makes every access token issued so far fail with
// 401, as if it had run out.
func (b *Backend) ExpireAccessTokens() {
	b.Issuer.ExpireAll()
}

// RevokeRefreshTokens drops the seeded user's refresh tokens so the next
// renewal fails.
func (b *Backend) RevokeRefreshTokens() {
	b.Store.RevokeUser(b.User.ID)
}

// AddStudent seeds a student.
func (b *Backend) AddStudent(t testing.TB, n models.NewStudent) models.Student {
	t.Helper()

	s, err := b.Directory.AddStudent(n, "")
	require.NoError(t, err)

	return s
}

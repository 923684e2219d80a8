package e2e_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alexjbarnes/campusctl/internal/api"
	"github.com/alexjbarnes/campusctl/internal/auth"
	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/alexjbarnes/campusctl/internal/server"
	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/alexjbarnes/campusctl/internal/state"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "staff@school.test"
	testPassword = "testpass"
)

// harness holds the full stack: the backend router on a real HTTP
// server and a state file that successive client runs share.
type harness struct {
	URL       string
	Store     *auth.Store
	Issuer    *auth.Issuer
	Directory *server.Directory
	User      models.User
	StatePath string
	Client    *http.Client
}

func newHarness(t *testing.T, opts auth.StoreOptions) *harness {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	store := auth.NewStore(opts, logger)
	t.Cleanup(store.Stop)

	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	user, err := store.AddUser(models.User{Name: "Staff", Email: testEmail, Role: "ADMIN"}, hash)
	require.NoError(t, err)

	h := &harness{
		Store:     store,
		Issuer:    auth.NewIssuer([]byte("e2e-signing-key"), 0),
		Directory: server.NewDirectory(nil),
		User:      user,
		StatePath: filepath.Join(t.TempDir(), "state.db"),
	}

	srv := httptest.NewServer(server.NewMux(server.MuxConfig{
		Store:     h.Store,
		Issuer:    h.Issuer,
		Directory: h.Directory,
		Logger:    logger,
	}))
	t.Cleanup(srv.Close)

	h.URL = srv.URL
	h.Client = srv.Client()

	return h
}

// run is one client process: its own state handle, session and
// coordinator, all reading the shared state file.
type run struct {
	State   *state.State
	Session *session.Session
	Service *campus.Service

	logouts atomic.Int32
}

func (h *harness) tryOpen(t *testing.T, passphrase string) (*run, error) {
	t.Helper()

	st, err := state.LoadAt(h.StatePath, state.Options{Passphrase: passphrase})
	if err != nil {
		return nil, err
	}

	sess, err := session.New(st, nil)
	if err != nil {
		st.Close()
		return nil, err
	}

	r := &run{State: st, Session: sess}

	client, err := api.NewClient(api.Options{
		BaseURL:  h.URL,
		Session:  sess,
		Logouter: api.LogoutFunc(func() { r.logouts.Add(1) }),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	r.Service = campus.New(client, nil)

	return r, nil
}

// open starts a client run. Close it before opening the next one, as
// the state file allows a single writer.
func (h *harness) open(t *testing.T, passphrase string) *run {
	t.Helper()

	r, err := h.tryOpen(t, passphrase)
	require.NoError(t, err)

	return r
}

func (r *run) Close(t *testing.T) {
	t.Helper()
	require.NoError(t, r.State.Close())
}

// doGet performs a raw GET, bypassing the client.
func (h *harness) doGet(t *testing.T, path, token string) (int, string) {
	t.Helper()

	client := h.Client
	if token != "" {
		client = &http.Client{Transport: &bearerTransport{token: token, base: h.Client.Transport}}
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, h.URL+path, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)

	base := bt.base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(req)
}

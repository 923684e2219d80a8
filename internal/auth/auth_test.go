package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "admin@school.test"
	testPassword = "correct horse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	s := NewStore(opts, testLogger())
	t.Cleanup(s.Stop)
	return s
}

// addTestUser registers the test account and returns it.
func addTestUser(t *testing.T, s *Store) models.User {
	t.Helper()
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	u, err := s.AddUser(models.User{Name: "Admin", Email: testEmail, Role: "ADMIN"}, hash)
	require.NoError(t, err)
	return u
}

func decodeEnvelope(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- Store ---

func TestStore_AuthenticateRoundTrip(t *testing.T) {
	s := testStore(t, StoreOptions{})
	u := addTestUser(t, s)
	assert.NotEmpty(t, u.ID)

	got, err := s.Authenticate("  ADMIN@school.test ", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	byID, ok := s.User(u.ID)
	require.True(t, ok)
	assert.Equal(t, testEmail, byID.Email)
}

func TestStore_AuthenticateRejects(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)

	_, err := s.Authenticate(testEmail, "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = s.Authenticate("nobody@school.test", testPassword)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestStore_AddUserValidation(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)

	_, err := s.AddUser(models.User{Email: testEmail}, "x")
	assert.ErrorIs(t, err, errDuplicateEmail)

	_, err = s.AddUser(models.User{Email: " "}, "x")
	assert.Error(t, err)
}

func TestStore_RedeemWithoutRotation(t *testing.T) {
	s := testStore(t, StoreOptions{})
	token := s.IssueRefreshToken("u1")

	for range 2 {
		userID, next, ok := s.Redeem(token)
		require.True(t, ok)
		assert.Equal(t, "u1", userID)
		assert.Empty(t, next)
	}

	assert.Equal(t, int64(2), s.Renewals())
}

func TestStore_RedeemWithRotation(t *testing.T) {
	s := testStore(t, StoreOptions{RotateRefreshTokens: true})
	token := s.IssueRefreshToken("u1")

	userID, next, ok := s.Redeem(token)
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.NotEmpty(t, next)
	assert.NotEqual(t, token, next)

	_, _, ok = s.Redeem(token)
	assert.False(t, ok, "rotated token is consumed")

	_, _, ok = s.Redeem(next)
	assert.True(t, ok)
}

func TestStore_RedeemExpired(t *testing.T) {
	s := testStore(t, StoreOptions{RefreshTTL: time.Millisecond})
	token := s.IssueRefreshToken("u1")
	time.Sleep(5 * time.Millisecond)

	_, _, ok := s.Redeem(token)
	assert.False(t, ok)
}

func TestStore_RedeemUnknown(t *testing.T) {
	s := testStore(t, StoreOptions{})
	_, _, ok := s.Redeem("nope")
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Renewals())
}

func TestStore_RevokeUser(t *testing.T) {
	s := testStore(t, StoreOptions{})
	a := s.IssueRefreshToken("u1")
	b := s.IssueRefreshToken("u1")
	other := s.IssueRefreshToken("u2")

	assert.Equal(t, 2, s.RevokeUser("u1"))

	for _, tok := range []string{a, b} {
		_, _, ok := s.Redeem(tok)
		assert.False(t, ok)
	}

	_, _, ok := s.Redeem(other)
	assert.True(t, ok)
}

func TestStore_Cleanup(t *testing.T) {
	s := testStore(t, StoreOptions{RefreshTTL: time.Millisecond})
	s.IssueRefreshToken("u1")
	time.Sleep(5 * time.Millisecond)

	s.cleanup()

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Empty(t, s.refresh)
}

func TestStore_LoginRateLimit(t *testing.T) {
	s := testStore(t, StoreOptions{})

	for range loginAttemptsPerMinute {
		require.True(t, s.LoginAllowed("10.0.0.1"))
		s.RecordLoginFailure("10.0.0.1")
	}

	assert.False(t, s.LoginAllowed("10.0.0.1"))
	assert.True(t, s.LoginAllowed("10.0.0.2"))
}

func TestStore_StopIsIdempotent(t *testing.T) {
	s := NewStore(StoreOptions{}, nil)
	s.Stop()
	s.Stop()
}

func TestRandomHex_Length(t *testing.T) {
	assert.Len(t, RandomHex(16), 32)
}

func TestRandomHex_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		h := RandomHex(16)
		assert.False(t, seen[h])
		seen[h] = true
	}
}

// --- Issuer ---

func TestIssuer_MintVerify(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Minute)

	token, err := iss.Mint("u1")
	require.NoError(t, err)

	sub, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Minute)
	token, err := iss.Mint("u1")
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = iss.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssuer_ExpireAll(t *testing.T) {
	iss := NewIssuer(nil, 0)
	assert.Equal(t, DefaultAccessTTL, iss.TTL())

	old, err := iss.Mint("u1")
	require.NoError(t, err)

	iss.ExpireAll()

	_, err = iss.Verify(old)
	assert.ErrorIs(t, err, errTokenRevoked)

	fresh, err := iss.Mint("u1")
	require.NoError(t, err)
	_, err = iss.Verify(fresh)
	assert.NoError(t, err)
}

func TestIssuer_RejectsForeignSignature(t *testing.T) {
	a := NewIssuer([]byte("secret-a"), time.Minute)
	b := NewIssuer([]byte("secret-b"), time.Minute)

	token, err := a.Mint("u1")
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.Error(t, err)
}

func TestIssuer_RejectsNoneAlgorithm(t *testing.T) {
	iss := NewIssuer([]byte("secret"), time.Minute)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = iss.Verify(unsigned)
	assert.Error(t, err)
}

// --- Middleware ---

func protected(t *testing.T, iss *Issuer) http.Handler {
	t.Helper()
	return Middleware(iss, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(RequestUserID(r.Context())))
	}))
}

func TestMiddleware_ValidToken(t *testing.T) {
	iss := NewIssuer(nil, time.Minute)
	token, err := iss.Mint("u1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, iss).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestMiddleware_CookieToken(t *testing.T) {
	iss := NewIssuer(nil, time.Minute)
	token, err := iss.Mint("u1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()
	protected(t, iss).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	rec := httptest.NewRecorder()
	protected(t, NewIssuer(nil, time.Minute)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.Equal(t, true, env["error"])
	assert.Equal(t, "Provide token", env["message"])
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	iss := NewIssuer(nil, time.Minute)
	token, err := iss.Mint("u1")
	require.NoError(t, err)
	iss.ExpireAll()

	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, iss).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "jwt expired", decodeEnvelope(t, rec.Body)["message"])
}

func TestMiddleware_NonBearerAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	protected(t, NewIssuer(nil, time.Minute)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Handlers ---

func TestLogin_Success(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)
	iss := NewIssuer(nil, time.Minute)

	rec := postJSON(HandleLogin(s, iss, LoginOptions{}, testLogger()), "/api/user/login",
		`{"email":"admin@school.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool      `json:"success"`
		Data    tokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data.AccessToken)
	assert.NotEmpty(t, env.Data.RefreshToken)

	cookies := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	assert.Equal(t, env.Data.AccessToken, cookies[AccessTokenCookie])
	assert.Equal(t, env.Data.RefreshToken, cookies[RefreshTokenCookie])
}

func TestLogin_CookiesOnly(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)

	rec := postJSON(HandleLogin(s, NewIssuer(nil, time.Minute), LoginOptions{CookiesOnly: true}, testLogger()),
		"/api/user/login", `{"email":"admin@school.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec.Body)
	assert.NotContains(t, env, "data")
	assert.Len(t, rec.Result().Cookies(), 2)
}

func TestLogin_Rejections(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)
	h := HandleLogin(s, NewIssuer(nil, time.Minute), LoginOptions{}, testLogger())

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing password", `{"email":"admin@school.test"}`, http.StatusBadRequest},
		{"wrong password", `{"email":"admin@school.test","password":"nope"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(h, "/api/user/login", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, true, decodeEnvelope(t, rec.Body)["error"])
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := testStore(t, StoreOptions{})
	addTestUser(t, s)
	h := HandleLogin(s, NewIssuer(nil, time.Minute), LoginOptions{}, testLogger())

	for range loginAttemptsPerMinute {
		rec := postJSON(h, "/api/user/login", `{"email":"admin@school.test","password":"nope"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := postJSON(h, "/api/user/login", `{"email":"admin@school.test","password":"correct horse"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRefresh_BearerAndCookie(t *testing.T) {
	s := testStore(t, StoreOptions{})
	iss := NewIssuer(nil, time.Minute)
	h := HandleRefresh(s, iss, testLogger())
	token := s.IssueRefreshToken("u1")

	req := httptest.NewRequest(http.MethodPost, "/api/user/refresh-token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data tokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	sub, err := iss.Verify(env.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)
	assert.Empty(t, env.Data.RefreshToken)

	req = httptest.NewRequest(http.MethodPost, "/api/user/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_RotationReturnsNewToken(t *testing.T) {
	s := testStore(t, StoreOptions{RotateRefreshTokens: true})
	h := HandleRefresh(s, NewIssuer(nil, time.Minute), testLogger())
	token := s.IssueRefreshToken("u1")

	req := httptest.NewRequest(http.MethodPost, "/api/user/refresh-token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data tokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.NotEmpty(t, env.Data.RefreshToken)
	assert.NotEqual(t, token, env.Data.RefreshToken)
}

func TestRefresh_Rejected(t *testing.T) {
	s := testStore(t, StoreOptions{})
	h := HandleRefresh(s, NewIssuer(nil, time.Minute), testLogger())

	for _, auth := range []string{"", "Bearer unknown"} {
		req := httptest.NewRequest(http.MethodPost, "/api/user/refresh-token", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLogout_RevokesRefreshTokens(t *testing.T) {
	s := testStore(t, StoreOptions{})
	u := addTestUser(t, s)
	iss := NewIssuer(nil, time.Minute)
	refresh := s.IssueRefreshToken(u.ID)
	access, err := iss.Mint(u.ID)
	require.NoError(t, err)

	h := Middleware(iss, testLogger())(HandleLogout(s, testLogger()))
	req := httptest.NewRequest(http.MethodGet, "/api/user/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, _, ok := s.Redeem(refresh)
	assert.False(t, ok)

	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestUserDetails(t *testing.T) {
	s := testStore(t, StoreOptions{})
	u := addTestUser(t, s)
	iss := NewIssuer(nil, time.Minute)
	access, err := iss.Mint(u.ID)
	require.NoError(t, err)

	h := Middleware(iss, testLogger())(HandleUserDetails(s))
	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data models.User `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, u, env.Data)
}

func TestUserDetails_UnknownUser(t *testing.T) {
	s := testStore(t, StoreOptions{})
	iss := NewIssuer(nil, time.Minute)
	access, err := iss.Mint("ghost")
	require.NoError(t, err)

	h := Middleware(iss, testLogger())(HandleUserDetails(s))
	req := httptest.NewRequest(http.MethodGet, "/api/user/user-details", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

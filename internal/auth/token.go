package auth

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTTL is the lifetime of a minted access token.
const DefaultAccessTTL = 15 * time.Minute

var errTokenRevoked = errors.New("token revoked")

type accessClaims struct {
	// Gen is the issuer generation at mint time. ExpireAll bumps the
	// generation and every older token stops verifying.
	Gen int64 `json:"gen"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	gen    atomic.Int64
	now    func() time.Time
}

// NewIssuer creates an issuer. An empty secret is replaced with a
// random one and a non-positive ttl with DefaultAccessTTL.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if len(secret) == 0 {
		secret = []byte(RandomHex(32))
	}

	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}

	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the access token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint returns a signed access token for userID.
func (i *Issuer) Mint(userID string) (string, error) {
	now := i.now()

	claims := accessClaims{
		Gen: i.gen.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, expiry and generation and returns the
// token subject.
func (i *Issuer) Verify(token string) (string, error) {
	var claims accessClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}

	if claims.Gen < i.gen.Load() {
		return "", errTokenRevoked
	}

	return claims.Subject, nil
}

// ExpireAll invalidates every access token minted so far.
func (i *Issuer) ExpireAll() {
	i.gen.Add(1)
}

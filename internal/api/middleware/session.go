package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionIssuer mints and validates short-lived JWTs for the embedded
// dashboard, so a browser session doesn't have to carry the long-lived
// operator API key on every request after its first login. It signs
// with a per-process random secret, so tokens don't survive a
// restart — acceptable for a dashboard session, which just
// re-authenticates against the operator key on reload.
type SessionIssuer struct {
	mu     sync.RWMutex
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer generates a fresh signing secret and returns an
// issuer minting tokens valid for ttl.
func NewSessionIssuer(ttl time.Duration) (*SessionIssuer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &SessionIssuer{secret: secret, ttl: ttl}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Issue mints a signed token for a caller who has already presented a
// valid operator API key.
func (s *SessionIssuer) Issue() (string, error) {
	s.mu.RLock()
	secret := s.secret
	ttl := s.ttl
	s.mu.RUnlock()

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "codegate-dashboard",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        randomID(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Validate reports whether token is a currently-valid, unexpired
// session token minted by this issuer.
func (s *SessionIssuer) Validate(token string) bool {
	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	return err == nil && parsed.Valid
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

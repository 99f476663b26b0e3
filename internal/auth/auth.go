// Package auth issues and verifies the bearer assertion that ties a client
// identifier to a connection. The core only ever calls Verify.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/rateroom/internal/errors"
)

const defaultTTL = time.Hour

type Config struct {
	Secret string
	TTL    time.Duration
}

type claims struct {
	ClientID string `json:"clientId"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(c Config) *Manager {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Manager{
		secret: []byte(c.Secret),
		ttl:    ttl,
	}
}

// Issue signs a bearer assertion for clientID.
func (m *Manager) Issue(clientID string) (string, error) {
	if clientID == "" {
		return "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("client ID is required"))
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Internal(err)
	}

	return signed, nil
}

// Verify checks the assertion and returns the client identifier it carries.
func (m *Manager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("unexpected signing method: %v", token.Header["alg"]))
		}
		return m.secret, nil
	})
	if err != nil {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err))
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.ClientID == "" {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"))
	}

	return c.ClientID, nil
}

// Package session resolves the identity a connection authenticates as. The
// POS backend issues a signed token at login; this package turns it into a
// Session and nothing more — identity changes (logout, role switch) are the
// host's job to act on, via disconnect/connect.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"posfeed/pkg/types"
)

const issuer = "posfeed-backend"

// Claims is the token payload carrying the session identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Provider validates login tokens against a shared secret.
type Provider struct {
	secret []byte
}

// NewProvider creates a provider for the given signing secret.
func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

// FromToken parses and validates a login token into a Session. An expired or
// tampered token yields no session.
func (p *Provider) FromToken(token string) (types.Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Session{}, ErrTokenExpired
		}
		return types.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return types.Session{}, ErrMissingIdentity
	}
	role := types.Role(claims.Role)
	if !role.Valid() {
		return types.Session{}, fmt.Errorf("%w: %q", types.ErrInvalidRole, claims.Role)
	}

	return types.Session{UserID: claims.UserID, Role: role}, nil
}

// GenerateToken mints a signed token for a session. Used by tests and the
// CLI's token command for local development against a stub backend.
func (p *Provider) GenerateToken(userID string, role types.Role, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingIdentity
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidRole, role)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		UserID: userID,
		Role:   string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

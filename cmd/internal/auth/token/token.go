// Package token issues and verifies Beacon's short-lived access tokens.
//
// Tokens are HS256 JWTs carrying the user id as subject. The same token
// authenticates REST calls (Authorization header) and websocket upgrades
// (?token= query parameter).
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrConfig       = errors.New("token: invalid config")
	ErrInvalidToken = errors.New("token: invalid or expired")
)

// Claims is the minimal identity envelope propagated across HTTP/WS.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config holds signing configuration.
type Config struct {
	// Secret is the HS256 signing key. Minimum 32 bytes.
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Manager signs and verifies access tokens.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and constructs a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrConfig
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = "beacon"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Manager{cfg: cfg}, nil
}

// Issue signs a token for userID valid from now for the configured TTL.
func (m *Manager) Issue(userID string, now time.Time) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, ErrConfig
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	exp := now.Add(m.cfg.TTL)

	claims := jwt.RegisteredClaims{
		Issuer:    m.cfg.Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token, returning its claims.
// All failure modes (bad signature, expiry, wrong issuer, malformed input)
// collapse into ErrInvalidToken to avoid token probing.
func (m *Manager) Verify(tokenStr string, now time.Time) (Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.cfg.Secret, nil
		},
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	rc, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(rc.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{UserID: rc.Subject}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}

// BearerFromHeader extracts the credential from an "Authorization: Bearer x" value.
func BearerFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

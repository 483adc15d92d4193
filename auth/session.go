// Package auth reads the session carried by the bearer token.
// The engine never signs or verifies tokens for the real backend, which owns authentication.
package auth

import (
	"fmt"
	"guide-chat/domain"
	"guide-chat/errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims accepts both "userId" and "id" for the participant id.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	ID     string `json:"id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SessionFromToken extracts the session from the token claims without
// checking the signature.
func SessionFromToken(token string) (domain.Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return claims.Session()
}

func (c Claims) Session() (domain.Session, error) {
	id := c.UserID
	if id == "" {
		id = c.ID
	}
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return domain.Session{}, fmt.Errorf("%w: missing user id", errors.ErrInvalidToken)
	}
	role, ok := parseRole(c.Role)
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: unknown role %q", errors.ErrInvalidToken, c.Role)
	}
	return domain.Session{UserID: domain.ParticipantID(id), Role: role}, nil
}

// GenerateToken signs a session token with HS256.
func GenerateToken(session domain.Session, secret []byte, duration time.Duration) (string, error) {
	claims := &Claims{
		UserID: string(session.UserID),
		Role:   string(session.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "guide-chat",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken checks the signature and expiration, then returns the session.
func ValidateToken(token string, secret []byte) (domain.Session, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(token, "Bearer "), &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return domain.Session{}, errors.ErrInvalidToken
	}
	return claims.Session()
}

func parseRole(raw string) (domain.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return domain.RoleUser, true
	case "guide":
		return domain.RoleGuide, true
	default:
		return "", false
	}
}

package auth

import (
	"guide-chat/domain"
	"guide-chat/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-for-session-claims")

func sign(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestSessionFromToken(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		want    domain.Session
		wantErr bool
	}{
		{"User id claim", jwt.MapClaims{"userId": "u1", "role": "User"}, domain.Session{UserID: "u1", Role: domain.RoleUser}, false},
		{"Id claim and lower case role", jwt.MapClaims{"id": "g1", "role": "guide"}, domain.Session{UserID: "g1", Role: domain.RoleGuide}, false},
		{"Subject fallback", jwt.MapClaims{"sub": "u2", "role": "USER"}, domain.Session{UserID: "u2", Role: domain.RoleUser}, false},
		{"Missing id", jwt.MapClaims{"role": "User"}, domain.Session{}, true},
		{"Unknown role", jwt.MapClaims{"userId": "u1", "role": "Admin"}, domain.Session{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SessionFromToken("Bearer " + sign(t, tt.claims))
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSessionFromToken_Malformed(t *testing.T) {
	_, err := SessionFromToken("not-a-jwt")
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestGenerateAndValidateToken(t *testing.T) {
	req := require.New(t)
	session := domain.Session{UserID: "u1", Role: domain.RoleUser}

	token, err := GenerateToken(session, secret, time.Hour)
	req.NoError(err)

	got, err := ValidateToken(token, secret)
	req.NoError(err)
	req.Equal(session, got)

	_, err = ValidateToken(token, []byte("other-secret"))
	req.ErrorIs(err, errors.ErrInvalidToken)

	expired, err := GenerateToken(session, secret, -time.Minute)
	req.NoError(err)
	_, err = ValidateToken(expired, secret)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

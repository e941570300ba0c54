package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a session token cannot be parsed or has
// been tampered with.
var ErrInvalidToken = errors.New("session: invalid token")

// Claims holds the session token payload. The registry stores only the
// token id (jti); the signed token itself never touches storage.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"pid"`
}

// IssueToken creates a signed bearer token referencing a session by its
// token id. Expiry enforcement lives in the registry, not the token: the
// token carries the absolute ceiling only.
func IssueToken(secret string, principalID, tokenID uuid.UUID, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "sentinel",
		},
		PrincipalID: principalID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("session.IssueToken: %w", err)
	}

	return signed, nil
}

// ParseToken validates a bearer token and returns the embedded token id and
// principal id.
func ParseToken(secret, tokenString string) (tokenID, principalID uuid.UUID, err error) {
	claims := &Claims{}

	token, parseErr := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if parseErr != nil || !token.Valid {
		return uuid.Nil, uuid.Nil, fmt.Errorf("session.ParseToken: %w", ErrInvalidToken)
	}

	tokenID, err = uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("session.ParseToken: token id: %w", ErrInvalidToken)
	}

	principalID, err = uuid.Parse(claims.PrincipalID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("session.ParseToken: principal id: %w", ErrInvalidToken)
	}

	return tokenID, principalID, nil
}

package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const authTokenType = "auth"

var ErrTokenInvalid = errors.New("authorization token invalid")

type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// IssueToken signs an auth token for userID valid for ttl
func IssueToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: authTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	s, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token, %w", err)
	}

	return s, nil
}

// ParseToken validates an auth token and returns the user id it was issued for
func ParseToken(token string, secret []byte) (string, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w, %w", ErrTokenInvalid, err)
	}

	if claims.Type != authTokenType || claims.Subject == "" {
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}

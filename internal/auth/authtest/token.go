// Package authtest signs tokens the way the identity provider does, for
// tests that exercise authenticated routes.
package authtest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seguraabc/asistencia25/internal/auth"
)

// NewToken signs claims with HS256. A negative ttl yields an expired token.
func NewToken(secret, issuer string, ttl time.Duration, claims auth.Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

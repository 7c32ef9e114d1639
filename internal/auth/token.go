package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Account-scoped bearer tokens for the streaming and read APIs. A token
// grants access to exactly one account's data.

var ErrInvalidToken = errors.New("invalid or expired token")

type accountClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// GenerateAccountToken signs a token granting access to one account.
func GenerateAccountToken(accountID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accountClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccountToken validates the token and returns the account it grants.
func ParseAccountToken(raw, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &accountClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*accountClaims)
	if !ok || claims.AccountID == "" {
		return "", ErrInvalidToken
	}
	return claims.AccountID, nil
}

package attestor

import (
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Session authentication for the witness websocket endpoint. Tokens are
// HS256 JWTs minted from a shared secret; a witness configured without a
// secret accepts every session.

// CreateAuthToken mints a session token for a client identified by subject.
func CreateAuthToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("auth secret is empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign auth token: %v", err)
	}
	return signed, nil
}

// verifyAuthToken checks a presented session token against the witness
// secret and returns the token subject.
func verifyAuthToken(secret []byte, tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", fmt.Errorf("missing auth token")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse/verify auth token: %v", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid auth token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("auth token has no subject: %v", err)
	}
	return subject, nil
}

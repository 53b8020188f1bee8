package httpapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the gateway's expected JWT shape, grounded on the teacher's
// applications/auth.Claims. The gateway only ever validates tokens issued
// by an upstream identity provider; it never signs its own.
type claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// tokenAuthenticator validates bearer tokens against a shared HMAC secret
// and extracts the caller's user id and role.
type tokenAuthenticator struct {
	secret []byte
}

func newTokenAuthenticator(secret string) *tokenAuthenticator {
	return &tokenAuthenticator{secret: []byte(strings.TrimSpace(secret))}
}

// Validate parses and validates tokenString, following the teacher auth
// manager's ParseWithClaims/HMAC-method-guard shape.
func (a *tokenAuthenticator) Validate(tokenString string) (*claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("httpapi: jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if c, ok := token.Claims.(*claims); ok && token.Valid {
		return c, nil
	}
	return nil, errors.New("httpapi: invalid token")
}

// bearerToken extracts the token from an Authorization header or a
// fallback query parameter, for endpoints (SSE) that can't set headers.
func bearerToken(header, queryParam string) string {
	header = strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(queryParam)
}

// Package jwt issues and checks the bearer tokens of the report API.
package jwt

import (
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Auth signs and verifies HS256 tokens with a shared secret.
type Auth struct {
	ja *jwtauth.JWTAuth
}

func New(secret string) *Auth {
	return &Auth{ja: jwtauth.New("HS256", []byte(secret), nil)}
}

// JWTAuth exposes the verifier for jwtauth middleware.
func (a *Auth) JWTAuth() *jwtauth.JWTAuth {
	return a.ja
}

// Issue returns a token for the report consumer subject valid for ttl.
// subject may be empty.
func (a *Auth) Issue(subject string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	if subject != "" {
		claims["sub"] = subject
	}
	_, token, err := a.ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("can't sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the token subject.
func (a *Auth) Verify(token string) (string, error) {
	t, err := jwtauth.VerifyToken(a.ja, token)
	if err != nil {
		return "", err
	}
	return t.Subject(), nil
}

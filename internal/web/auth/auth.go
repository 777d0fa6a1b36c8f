// Package auth provides JWT token issuing and validation for the control
// API. Instrument control is a write path; mutating endpoints require a
// valid token when auth is enabled.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service issues and validates HS256 tokens
type Service struct {
	secretKey []byte
	tokenTTL  time.Duration
}

// NewService creates an auth service. An empty secret disables auth: the
// middleware passes every request through.
func NewService(secretKey string, tokenTTL time.Duration) *Service {
	return &Service{secretKey: []byte(secretKey), tokenTTL: tokenTTL}
}

// Enabled reports whether token validation is active
func (s *Service) Enabled() bool { return len(s.secretKey) > 0 }

// GenerateToken issues a token identifying an operator
func (s *Service) GenerateToken(operator string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": operator,
		"exp": now.Add(s.tokenTTL).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken validates a token and returns the operator it identifies
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Verify exact signing method to prevent algorithm confusion attacks
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	operator, _ := claims["sub"].(string)
	if operator == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return operator, nil
}

type contextKey struct{}

// Operator returns the authenticated operator from the request context, or
// empty when auth is disabled.
func Operator(ctx context.Context) string {
	op, _ := ctx.Value(contextKey{}).(string)
	return op
}

// Middleware enforces bearer-token auth on the wrapped handler
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		operator, err := s.ValidateToken(raw)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package auth resolves who is making a request. Sessions are Supabase
// access tokens (HS256 JWTs signed with the project secret), read from the
// Authorization header or the session cookie. Sign-in itself is delegated
// to a Provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// DefaultAudience is the audience Supabase puts on user access tokens.
const DefaultAudience = "authenticated"

// Claims are the parts of a Supabase access token the service reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret   string
	Audience string
	Issuer   string
	Leeway   time.Duration
}

// TokenVerifier validates access tokens.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier builds a verifier. The secret is required.
func NewTokenVerifier(config VerifierConfig) (*TokenVerifier, error) {
	if config.Secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	audience := config.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &TokenVerifier{secret: []byte(config.Secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates a token, with or without a "Bearer " prefix.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID() == "" {
		return nil, fmt.Errorf("%w: missing user ID", ErrInvalidClaims)
	}
	return claims, nil
}

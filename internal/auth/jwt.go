// Package auth validates the bearer tokens issued by the identity provider
// and exposes the caller's id and role to handlers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the typed JWT payload. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and validates HS256 tokens with a shared secret
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens creates a validator for tokens issued by issuer
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Generate signs a token for u. Used by development tooling and tests; in
// production the identity provider issues tokens.
func (t *Tokens) Generate(u models.User, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses a token and returns the user it identifies
func (t *Tokens) Validate(raw string) (models.User, error) {
	if raw == "" {
		return models.User{}, apperr.AuthRequired("validate token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperr.ErrAuthRequired, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.User{}, fmt.Errorf("%w: %w", apperr.ErrAuthRequired, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" {
		return models.User{}, fmt.Errorf("%w: %w", apperr.ErrAuthRequired, errors.New("token has no subject"))
	}

	role := claims.Role
	if !models.ValidRole(role) {
		role = models.RoleCustomer
	}
	return models.User{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

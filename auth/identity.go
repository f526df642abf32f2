// Package auth resolves the duplex channel's first inbound frame (an
// auth token) to a verified identity. The identity/authentication
// system itself is an external collaborator (spec.md §1); this package
// only implements the interface the gateway calls against, plus one
// concrete JWKS-backed resolver for deployments that front the duel
// server with a standard JWT issuer.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Resolver verifies an inbound auth token and resolves it to the identity
// a waiting entry is seeded with. Implementations must treat any
// malformed or expired token as an error; the gateway never distinguishes
// error causes beyond "invalid token".
type Resolver interface {
	ResolveToken(ctx context.Context, token string) (userID string, displayName string, rating float64, err error)
}

// JWKSResolver validates tokens against a JSON Web Key Set published by
// an external identity provider, generalizing the teacher's Neon Auth
// integration to any JWKS issuer. The rating and display name are read
// from the "rating" and "name" claims; a provider that stores rating
// elsewhere should wrap JWKSResolver or implement Resolver directly.
type JWKSResolver struct {
	baseURL  string
	jwks     keyfunc.Keyfunc
	issuer   string
}

// NewJWKSResolver builds a resolver against baseURL + "/.well-known/jwks.json".
func NewJWKSResolver(baseURL string) (*JWKSResolver, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth: JWKS base URL is not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid base URL: %w", err)
	}
	jwksURL := baseURL + "/.well-known/jwks.json"
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, err
	}
	return &JWKSResolver{
		baseURL: baseURL,
		jwks:    jwks,
		issuer:  u.Scheme + "://" + u.Host,
	}, nil
}

// ResolveToken implements Resolver.
func (r *JWKSResolver) ResolveToken(_ context.Context, token string) (string, string, float64, error) {
	parsed, err := jwt.Parse(token, r.jwks.Keyfunc,
		jwt.WithIssuer(r.issuer),
		jwt.WithValidMethods([]string{"EdDSA", "RS256"}))
	if err != nil {
		return "", "", 0, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", "", 0, fmt.Errorf("auth: invalid token claims")
	}
	userID := userIDFromClaims(claims)
	if userID == "" {
		return "", "", 0, fmt.Errorf("auth: token has no subject")
	}
	return userID, nameFromClaims(claims), ratingFromClaims(claims), nil
}

func userIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

func nameFromClaims(claims jwt.MapClaims) string {
	name, _ := claims["name"].(string)
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Player"
	}
	if parts := strings.Fields(trimmed); len(parts) > 0 {
		return parts[0]
	}
	return "Player"
}

func ratingFromClaims(claims jwt.MapClaims) float64 {
	if r, ok := claims["rating"].(float64); ok {
		return r
	}
	return 1000
}

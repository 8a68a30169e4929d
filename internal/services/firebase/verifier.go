package firebase

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/tidyplan/tidyplan-api/internal/models"
)

// Verifier verifies Firebase ID tokens. For project P, valid tokens carry
// issuer https://securetoken.google.com/P and audience P.
type Verifier struct {
	jwksManager *JWKSManager
	jwksURL     string
	issuer      string
	audience    string
}

// NewVerifier creates a new ID token verifier for a Firebase project.
func NewVerifier(jwksManager *JWKSManager, issuer, audience string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		jwksURL:     DefaultJWKSURL,
		issuer:      issuer,
		audience:    audience,
	}
}

// WithJWKSURL overrides the JWKS endpoint. Used by tests that serve keys
// from an httptest server.
func (v *Verifier) WithJWKSURL(url string) *Verifier {
	v.jwksURL = url
	return v
}

// Verify verifies an ID token and extracts its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.IDTokenClaims, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	claims := &models.IDTokenClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
		Iat: token.IssuedAt().Unix(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Aud = aud[0]
	}

	if email, ok := token.Get("email"); ok {
		if emailStr, ok := email.(string); ok {
			claims.Email = emailStr
		}
	}
	if name, ok := token.Get("name"); ok {
		if nameStr, ok := name.(string); ok {
			claims.Name = nameStr
		}
	}
	if verified, ok := token.Get("email_verified"); ok {
		if verifiedBool, ok := verified.(bool); ok {
			claims.EmailVerified = verifiedBool
		}
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	return claims, nil
}

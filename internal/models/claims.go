package models

// IDTokenClaims holds the claims extracted from a verified Firebase ID token.
type IDTokenClaims struct {
	Sub           string
	Email         string
	Name          string
	EmailVerified bool
	Iss           string
	Aud           string
	Exp           int64
	Iat           int64
}

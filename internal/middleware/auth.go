package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/logger"
	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
)

// TokenVerifier validates a raw bearer token and returns its claims.
// Implemented by the Firebase verifier; tests substitute a stub.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.IDTokenClaims, error)
}

// Auth creates authentication middleware. It verifies the Firebase ID token
// from the Authorization header and attaches the matching user to the
// request context, creating the user row on first sight.
//
// When allowHeader is true (local development), a bare X-User-ID header is
// accepted in place of a token.
func Auth(users database.UserRepositoryInterface, verifier TokenVerifier, allowHeader bool, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			claims, errMsg := extractClaims(ctx, r, verifier, allowHeader, log)
			if claims == nil {
				respondAuthError(w, http.StatusUnauthorized, errMsg, log)
				return
			}

			user, err := users.GetOrCreate(ctx, claims)
			if err != nil {
				log.Error("failed_to_resolve_user",
					zap.Error(err),
					zap.String("provider_id", logger.SanitizeString(claims.Sub, 64)),
				)
				respondAuthError(w, http.StatusInternalServerError, "Failed to resolve user", log)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// extractClaims resolves token claims from the request, or returns nil and
// an error message suitable for the client.
func extractClaims(ctx context.Context, r *http.Request, verifier TokenVerifier, allowHeader bool, log *zap.Logger) (*models.IDTokenClaims, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowHeader {
			if uid := strings.TrimSpace(r.Header.Get("X-User-ID")); uid != "" {
				return &models.IDTokenClaims{Sub: uid}, ""
			}
		}
		return nil, "Missing Authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, "Invalid Authorization header format"
	}

	claims, err := verifier.Verify(ctx, parts[1])
	if err != nil {
		log.Warn("token_verification_failed", zap.Error(err))
		return nil, "Invalid or expired token"
	}

	return claims, ""
}

func respondAuthError(w http.ResponseWriter, status int, message string, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("failed_to_encode_auth_error", zap.Error(err))
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated account. ProviderID is the Firebase uid from the
// verified ID token (or the raw X-User-ID header in dev mode).
type User struct {
	ID            uuid.UUID `json:"id"`
	ProviderID    string    `json:"provider_id"`
	Email         string    `json:"email"`
	Name          *string   `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

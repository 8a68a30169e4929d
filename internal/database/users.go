package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByProviderID retrieves a user by their identity provider uid
func (r *UserRepository) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, provider_id, email, name, email_verified, created_at, updated_at
		FROM users
		WHERE provider_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, providerID).Scan(
		&user.ID,
		&user.ProviderID,
		&user.Email,
		&user.Name,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, provider_id, email, name, email_verified, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.ProviderID,
		&user.Email,
		&user.Name,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, provider_id, email, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.ProviderID,
		user.Email,
		user.Name,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update refreshes the profile fields carried by the ID token
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = $2, name = $3, email_verified = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.EmailVerified, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// GetOrCreate looks up a user by provider uid and creates the row on first
// sight. Profile fields from the token are refreshed when they changed.
func (r *UserRepository) GetOrCreate(ctx context.Context, claims *models.IDTokenClaims) (*models.User, error) {
	var name *string
	if claims.Name != "" {
		name = &claims.Name
	}

	user, err := r.GetByProviderID(ctx, claims.Sub)
	if err == nil {
		if user.Email != claims.Email || user.EmailVerified != claims.EmailVerified || !equalName(user.Name, name) {
			user.Email = claims.Email
			user.Name = name
			user.EmailVerified = claims.EmailVerified
			if err := r.Update(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	user = &models.User{
		ID:            uuid.New(),
		ProviderID:    claims.Sub,
		Email:         claims.Email,
		Name:          name,
		EmailVerified: claims.EmailVerified,
	}
	if err := r.Create(ctx, user); err != nil {
		// Lost a race with a concurrent first request for the same uid.
		if existing, getErr := r.GetByProviderID(ctx, claims.Sub); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	return user, nil
}

func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

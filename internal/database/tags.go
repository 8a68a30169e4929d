package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// TagRepository handles tag database operations
type TagRepository struct {
	db *DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create creates a new tag. Names are unique per user; creating a duplicate
// name returns the existing row instead of an error.
func (r *TagRepository) Create(ctx context.Context, tag *models.Tag) error {
	if tag.Color == "" {
		tag.Color = models.DefaultTagColor
	}

	query := `
		INSERT INTO tags (id, user_id, name, color)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, name) DO UPDATE SET color = tags.color
		RETURNING id, color
	`
	err := r.db.QueryRowContext(ctx, query, tag.ID, tag.UserID, tag.Name, tag.Color).
		Scan(&tag.ID, &tag.Color)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// GetByID retrieves a tag by ID
func (r *TagRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	tag := &models.Tag{}

	query := `SELECT id, user_id, name, color FROM tags WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// GetByUserID retrieves all tags for a user sorted by name.
func (r *TagRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Tag, error) {
	query := `SELECT id, user_id, name, color FROM tags WHERE user_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag := &models.Tag{}
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// Update updates a tag's name and color
func (r *TagRepository) Update(ctx context.Context, tag *models.Tag) error {
	query := `UPDATE tags SET name = $2, color = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, tag.ID, tag.Name, tag.Color)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tag not found")
	}

	return nil
}

// Delete deletes a tag; task memberships cascade, tasks themselves survive.
func (r *TagRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tag not found")
	}

	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// MemoryRepository handles memory database operations
type MemoryRepository struct {
	db *DB
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db *DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// Create creates a new memory
func (r *MemoryRepository) Create(ctx context.Context, memory *models.Memory) error {
	now := time.Now().UTC()
	memory.CreatedAt = now
	memory.UpdatedAt = now
	if memory.Priority == "" {
		memory.Priority = models.MemoryPriorityMedium
	}

	query := `
		INSERT INTO memories (id, user_id, title, content, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.Title,
		memory.Content,
		memory.Priority,
		memory.CreatedAt,
		memory.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// GetByID retrieves a memory by ID
func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Memory, error) {
	memory := &models.Memory{}

	query := `
		SELECT id, user_id, title, content, priority, created_at, updated_at
		FROM memories
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&memory.ID,
		&memory.UserID,
		&memory.Title,
		&memory.Content,
		&memory.Priority,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	return memory, nil
}

// GetByUserID retrieves all memories for a user, high priority first, then
// newest first within the same priority.
func (r *MemoryRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Memory, error) {
	query := `
		SELECT id, user_id, title, content, priority, created_at, updated_at
		FROM memories
		WHERE user_id = $1
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		         created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []*models.Memory
	for rows.Next() {
		memory := &models.Memory{}
		if err := rows.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.Title,
			&memory.Content,
			&memory.Priority,
			&memory.CreatedAt,
			&memory.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}

	return memories, nil
}

// Update updates a memory
func (r *MemoryRepository) Update(ctx context.Context, memory *models.Memory) error {
	memory.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE memories
		SET title = $2, content = $3, priority = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		memory.ID, memory.Title, memory.Content, memory.Priority, memory.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("memory not found")
	}

	return nil
}

// Delete deletes a memory by ID
func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("memory not found")
	}

	return nil
}

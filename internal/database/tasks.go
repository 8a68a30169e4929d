package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create creates a new task and attaches its tags. Tags referenced by name
// only are created on the fly (get-or-create), matching the frontend's
// inline tag entry.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
		INSERT INTO tasks (id, user_id, title, description, completed, date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Completed,
		task.Date,
		task.CreatedAt,
		task.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := r.replaceTagsTx(ctx, tx, task); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}

	if task.Tags == nil {
		task.Tags = []models.Tag{}
	}
	task.Reminders = []models.Reminder{}
	return nil
}

// GetByID retrieves a task by ID with tags and reminders embedded.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task := &models.Task{}

	query := `
		SELECT id, user_id, title, description, completed, date, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.Date,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := r.loadTags(ctx, task); err != nil {
		return nil, err
	}
	if err := r.loadReminders(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// GetByUserID retrieves all tasks for a user, newest first.
func (r *TaskRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	query := `
		SELECT id, user_id, title, description, completed, date, created_at, updated_at
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task := &models.Task{}
		if err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.Title,
			&task.Description,
			&task.Completed,
			&task.Date,
			&task.CreatedAt,
			&task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	for _, task := range tasks {
		if err := r.loadTags(ctx, task); err != nil {
			return nil, err
		}
		if err := r.loadReminders(ctx, task); err != nil {
			return nil, err
		}
	}

	return tasks, nil
}

// Update updates an existing task and replaces its tag memberships.
// Last write wins; there is no version check.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = $2, description = $3, completed = $4, date = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.Date,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task not found")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = $1`, task.ID); err != nil {
		return fmt.Errorf("failed to clear task tags: %w", err)
	}
	if err := r.replaceTagsTx(ctx, tx, task); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task update: %w", err)
	}

	return nil
}

// Delete deletes a task by ID; tag memberships and reminders cascade.
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task not found")
	}

	return nil
}

// replaceTagsTx inserts task_tags rows for task.Tags inside tx, resolving
// each tag to an existing row by id or name, or creating it.
func (r *TaskRepository) replaceTagsTx(ctx context.Context, tx *sql.Tx, task *models.Task) error {
	for i, tag := range task.Tags {
		tagID, err := r.getOrCreateTagTx(ctx, tx, task.UserID, tag)
		if err != nil {
			return err
		}
		task.Tags[i].ID = tagID
		task.Tags[i].UserID = task.UserID

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			task.ID, tagID,
		); err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
	}
	return nil
}

func (r *TaskRepository) getOrCreateTagTx(ctx context.Context, tx *sql.Tx, userID uuid.UUID, tag models.Tag) (uuid.UUID, error) {
	if tag.ID != uuid.Nil {
		var id uuid.UUID
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE id = $1 AND user_id = $2`, tag.ID, userID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return uuid.Nil, fmt.Errorf("failed to look up tag: %w", err)
		}
	}

	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE user_id = $1 AND name = $2`, userID, tag.Name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("failed to look up tag by name: %w", err)
	}

	color := tag.Color
	if color == "" {
		color = models.DefaultTagColor
	}
	id = uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (id, user_id, name, color) VALUES ($1, $2, $3, $4)`,
		id, userID, tag.Name, color,
	); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create tag: %w", err)
	}

	return id, nil
}

func (r *TaskRepository) loadTags(ctx context.Context, task *models.Task) error {
	query := `
		SELECT t.id, t.user_id, t.name, t.color
		FROM tags t
		JOIN task_tags tt ON t.id = tt.tag_id
		WHERE tt.task_id = $1
		ORDER BY t.name
	`
	rows, err := r.db.QueryContext(ctx, query, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query task tags: %w", err)
	}
	defer rows.Close()

	task.Tags = []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		task.Tags = append(task.Tags, tag)
	}
	return rows.Err()
}

func (r *TaskRepository) loadReminders(ctx context.Context, task *models.Task) error {
	query := `
		SELECT id, task_id, description, remind_at, sent, created_at
		FROM reminders
		WHERE task_id = $1
		ORDER BY remind_at
	`
	rows, err := r.db.QueryContext(ctx, query, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	task.Reminders = []models.Reminder{}
	for rows.Next() {
		var rem models.Reminder
		if err := rows.Scan(&rem.ID, &rem.TaskID, &rem.Description, &rem.RemindAt, &rem.Sent, &rem.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan reminder: %w", err)
		}
		task.Reminders = append(task.Reminders, rem)
	}
	return rows.Err()
}

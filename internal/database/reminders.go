package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// ReminderRepository handles reminder database operations
type ReminderRepository struct {
	db *DB
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create creates a new reminder for a task
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	reminder.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO reminders (id, task_id, description, remind_at, sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		reminder.ID,
		reminder.TaskID,
		reminder.Description,
		reminder.RemindAt,
		reminder.Sent,
		reminder.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// GetByID retrieves a reminder by ID
func (r *ReminderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reminder, error) {
	reminder := &models.Reminder{}

	query := `
		SELECT id, task_id, description, remind_at, sent, created_at
		FROM reminders
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reminder.ID,
		&reminder.TaskID,
		&reminder.Description,
		&reminder.RemindAt,
		&reminder.Sent,
		&reminder.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reminder not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}

	return reminder, nil
}

// GetByTaskID retrieves all reminders for a task ordered by remind_at.
func (r *ReminderRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Reminder, error) {
	query := `
		SELECT id, task_id, description, remind_at, sent, created_at
		FROM reminders
		WHERE task_id = $1
		ORDER BY remind_at
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// GetDue retrieves unsent reminders whose remind_at has passed, together
// with the owning user, limited to batchSize rows. The dispatch worker
// scans this on a fixed tick.
func (r *ReminderRepository) GetDue(ctx context.Context, now time.Time, batchSize int) ([]*models.DueReminder, error) {
	query := `
		SELECT rem.id, rem.task_id, rem.description, rem.remind_at, rem.sent, rem.created_at,
		       t.user_id, t.title
		FROM reminders rem
		JOIN tasks t ON t.id = rem.task_id
		WHERE NOT rem.sent AND rem.remind_at <= $1
		ORDER BY rem.remind_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	var due []*models.DueReminder
	for rows.Next() {
		d := &models.DueReminder{}
		if err := rows.Scan(
			&d.Reminder.ID,
			&d.Reminder.TaskID,
			&d.Reminder.Description,
			&d.Reminder.RemindAt,
			&d.Reminder.Sent,
			&d.Reminder.CreatedAt,
			&d.UserID,
			&d.TaskTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due reminder: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due reminders: %w", err)
	}

	return due, nil
}

// MarkSent flips the sent flag. Returns an error if the reminder was already
// sent, so duplicate queue deliveries are dropped instead of re-notified.
func (r *ReminderRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET sent = TRUE WHERE id = $1 AND NOT sent`, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("reminder not found or already sent")
	}

	return nil
}

// Update updates a reminder's description and schedule
func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	query := `
		UPDATE reminders
		SET description = $2, remind_at = $3, sent = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		reminder.ID, reminder.Description, reminder.RemindAt, reminder.Sent)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("reminder not found")
	}

	return nil
}

// Delete deletes a reminder by ID
func (r *ReminderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("reminder not found")
	}

	return nil
}

func scanReminders(rows *sql.Rows) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		rem := &models.Reminder{}
		if err := rows.Scan(
			&rem.ID,
			&rem.TaskID,
			&rem.Description,
			&rem.RemindAt,
			&rem.Sent,
			&rem.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return reminders, nil
}

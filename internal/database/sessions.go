package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRepository persists the per-user Backboard assistant and the
// active chat thread. Assistants live forever; threads expire after the
// session TTL and an expired row reads as absent.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetAssistantID returns the user's assistant ID, or "" if none exists yet.
func (r *SessionRepository) GetAssistantID(ctx context.Context, userID uuid.UUID) (string, error) {
	var assistantID string
	err := r.db.QueryRowContext(ctx,
		`SELECT assistant_id FROM chat_assistants WHERE user_id = $1`, userID,
	).Scan(&assistantID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get assistant: %w", err)
	}
	return assistantID, nil
}

// SetAssistantID stores the user's assistant ID, replacing any previous one.
func (r *SessionRepository) SetAssistantID(ctx context.Context, userID uuid.UUID, assistantID string) error {
	query := `
		INSERT INTO chat_assistants (user_id, assistant_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET assistant_id = EXCLUDED.assistant_id
	`
	if _, err := r.db.ExecContext(ctx, query, userID, assistantID); err != nil {
		return fmt.Errorf("failed to set assistant: %w", err)
	}
	return nil
}

// GetThreadID returns the user's active thread ID, or "" if there is no
// thread or the thread has expired.
func (r *SessionRepository) GetThreadID(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	var (
		threadID  string
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT thread_id, expires_at FROM chat_threads WHERE user_id = $1`, userID,
	).Scan(&threadID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get thread: %w", err)
	}
	if !now.Before(expiresAt) {
		return "", nil
	}
	return threadID, nil
}

// SetThread stores the user's active thread with its expiry.
func (r *SessionRepository) SetThread(ctx context.Context, userID uuid.UUID, threadID string, expiresAt time.Time) error {
	query := `
		INSERT INTO chat_threads (user_id, thread_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET thread_id = EXCLUDED.thread_id, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, userID, threadID, expiresAt); err != nil {
		return fmt.Errorf("failed to set thread: %w", err)
	}
	return nil
}

// TouchThread extends the active thread's expiry. Used on every chat message
// so the session TTL is idle time, not total time.
func (r *SessionRepository) TouchThread(ctx context.Context, userID uuid.UUID, expiresAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE chat_threads SET expires_at = $2 WHERE user_id = $1`, userID, expiresAt,
	); err != nil {
		return fmt.Errorf("failed to touch thread: %w", err)
	}
	return nil
}

// DeleteThread drops the user's active thread. The next chat message starts
// a fresh one.
func (r *SessionRepository) DeleteThread(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_threads WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// ExpiredThread is a thread row past its expiry, pending remote deletion.
type ExpiredThread struct {
	UserID   uuid.UUID
	ThreadID string
}

// ListExpiredThreads returns thread rows past their expiry so the worker can
// delete the remote threads before dropping the rows.
func (r *SessionRepository) ListExpiredThreads(ctx context.Context, now time.Time) ([]ExpiredThread, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, thread_id FROM chat_threads WHERE expires_at <= $1`, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expired []ExpiredThread
	for rows.Next() {
		var et ExpiredThread
		if err := rows.Scan(&et.UserID, &et.ThreadID); err != nil {
			return nil, fmt.Errorf("failed to scan expired thread: %w", err)
		}
		expired = append(expired, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired threads: %w", err)
	}
	return expired, nil
}

// DeleteExpiredThreads removes thread rows past their expiry and returns how
// many were dropped. The janitor worker runs this periodically.
func (r *SessionRepository) DeleteExpiredThreads(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_threads WHERE expires_at <= $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired threads: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

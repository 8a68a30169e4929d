package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies what a job does.
type JobType string

const (
	// JobTypeReminderDispatch delivers a due task reminder.
	JobTypeReminderDispatch JobType = "reminder_dispatch"
	// JobTypeSessionCleanup removes expired chat threads.
	JobTypeSessionCleanup JobType = "session_cleanup"
)

// Job is a unit of background work.
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	ReminderID *uuid.UUID     `json:"reminder_id,omitempty"` // Set for reminder_dispatch jobs
	NotBefore  *time.Time     `json:"not_before,omitempty"`  // Earliest time to process (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`   // Latest time to process (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a job with default retry settings.
func NewJob(jobType JobType, userID uuid.UUID, reminderID *uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		ReminderID: reminderID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// ShouldProcess reports whether the job is inside its processing window.
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired reports whether the job passed its NotAfter deadline.
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry reports whether the job has retries left.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count.
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

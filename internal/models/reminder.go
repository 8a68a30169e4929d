package models

import (
	"time"

	"github.com/google/uuid"
)

// Reminder is a scheduled notification attached to a task. Sent flips once
// the dispatch worker has processed it; reminders are never re-sent.
type Reminder struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Description string    `json:"description"`
	RemindAt    time.Time `json:"remind_at"`
	Sent        bool      `json:"sent"`
	CreatedAt   time.Time `json:"created_at"`
}

// DueReminder is a reminder joined with its task, as the dispatch worker
// needs the owner and task title to build the notification payload.
type DueReminder struct {
	Reminder  Reminder  `json:"reminder"`
	UserID    uuid.UUID `json:"user_id"`
	TaskTitle string    `json:"task_title"`
}

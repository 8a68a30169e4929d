package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is a calendar to-do item. Date is a plain calendar day (YYYY-MM-DD)
// with no timezone; the frontend places the card on that day's cell.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Date        string     `json:"date"`
	Tags        []Tag      `json:"tags"`
	Reminders   []Reminder `json:"reminders"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

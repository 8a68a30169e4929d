package models

import (
	"time"

	"github.com/google/uuid"
)

// MemoryPriority orders memories when building assistant context.
type MemoryPriority string

const (
	MemoryPriorityLow    MemoryPriority = "low"
	MemoryPriorityMedium MemoryPriority = "medium"
	MemoryPriorityHigh   MemoryPriority = "high"
)

// Memory is a long-term fact about the user, mirrored to the Backboard
// assistant so the chatbot can recall it across sessions.
type Memory struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"-"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Priority  MemoryPriority `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

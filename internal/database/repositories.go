package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tidyplan/tidyplan-api/internal/models"
)

// TaskRepositoryInterface defines the interface for task repository operations
// so handlers and the AI workflow can be tested against mocks.
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TagRepositoryInterface defines the interface for tag repository operations
type TagRepositoryInterface interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Tag, error)
	Update(ctx context.Context, tag *models.Tag) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReminderRepositoryInterface defines the interface for reminder repository operations
type ReminderRepositoryInterface interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reminder, error)
	GetByTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Reminder, error)
	GetDue(ctx context.Context, now time.Time, batchSize int) ([]*models.DueReminder, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	Update(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryRepositoryInterface defines the interface for memory repository operations
type MemoryRepositoryInterface interface {
	Create(ctx context.Context, memory *models.Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Memory, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Memory, error)
	Update(ctx context.Context, memory *models.Memory) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOrCreate(ctx context.Context, claims *models.IDTokenClaims) (*models.User, error)
}

// SessionRepositoryInterface defines the interface for chat session persistence
type SessionRepositoryInterface interface {
	GetAssistantID(ctx context.Context, userID uuid.UUID) (string, error)
	SetAssistantID(ctx context.Context, userID uuid.UUID, assistantID string) error
	GetThreadID(ctx context.Context, userID uuid.UUID, now time.Time) (string, error)
	SetThread(ctx context.Context, userID uuid.UUID, threadID string, expiresAt time.Time) error
	TouchThread(ctx context.Context, userID uuid.UUID, expiresAt time.Time) error
	DeleteThread(ctx context.Context, userID uuid.UUID) error
	ListExpiredThreads(ctx context.Context, now time.Time) ([]ExpiredThread, error)
	DeleteExpiredThreads(ctx context.Context, now time.Time) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TaskRepositoryInterface     = (*TaskRepository)(nil)
	_ TagRepositoryInterface      = (*TagRepository)(nil)
	_ ReminderRepositoryInterface = (*ReminderRepository)(nil)
	_ MemoryRepositoryInterface   = (*MemoryRepository)(nil)
	_ UserRepositoryInterface     = (*UserRepository)(nil)
	_ SessionRepositoryInterface  = (*SessionRepository)(nil)
)

package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/queue"
)

const (
	// DefaultScanInterval is how often due reminders are scanned.
	DefaultScanInterval = 30 * time.Second
	// DefaultCleanupInterval is how often a session cleanup job is enqueued.
	DefaultCleanupInterval = time.Hour
	// DefaultScanBatchSize caps how many due reminders one scan picks up.
	DefaultScanBatchSize = 100

	// jobWindow is how long a scheduled job stays valid before the queue
	// drops it as expired.
	jobWindow = 24 * time.Hour
)

// Scheduler scans for due reminders and enqueues dispatch jobs, and
// periodically enqueues session cleanup jobs. Actual processing happens in
// the Dispatcher so multiple worker instances share the load.
type Scheduler struct {
	jobQueue        queue.JobQueue
	reminders       database.ReminderRepositoryInterface
	clock           clockwork.Clock
	scanInterval    time.Duration
	cleanupInterval time.Duration
	batchSize       int
	logger          *zap.Logger
}

// NewScheduler creates a scheduler. A nil clock uses the real one.
func NewScheduler(
	jobQueue queue.JobQueue,
	reminders database.ReminderRepositoryInterface,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobQueue:        jobQueue,
		reminders:       reminders,
		clock:           clock,
		scanInterval:    DefaultScanInterval,
		cleanupInterval: DefaultCleanupInterval,
		batchSize:       DefaultScanBatchSize,
		logger:          logger,
	}
}

// Start runs the scan loops until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	scanTicker := s.clock.NewTicker(s.scanInterval)
	defer scanTicker.Stop()
	cleanupTicker := s.clock.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scanTicker.Chan():
			if err := s.ScanDueReminders(ctx); err != nil {
				s.logger.Error("reminder_scan_failed", zap.Error(err))
			}
		case <-cleanupTicker.Chan():
			if err := s.EnqueueSessionCleanup(ctx); err != nil {
				s.logger.Error("session_cleanup_enqueue_failed", zap.Error(err))
			}
		}
	}
}

// ScanDueReminders enqueues a dispatch job for every unsent reminder whose
// time has come. Duplicate jobs from overlapping scans are harmless: the
// dispatcher's mark-sent is first-writer-wins.
func (s *Scheduler) ScanDueReminders(ctx context.Context) error {
	now := s.clock.Now().UTC()

	due, err := s.reminders.GetDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	enqueued := 0
	for _, d := range due {
		reminderID := d.Reminder.ID
		job := queue.NewJob(queue.JobTypeReminderDispatch, d.UserID, &reminderID)
		job.Metadata["task_title"] = d.TaskTitle
		job.Metadata["description"] = d.Reminder.Description
		notAfter := now.Add(jobWindow)
		job.NotAfter = &notAfter

		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed_to_enqueue_reminder_job",
				zap.String("reminder_id", reminderID.String()),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	s.logger.Info("scanned_due_reminders",
		zap.Int("due", len(due)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}

// EnqueueSessionCleanup schedules one cleanup pass over expired chat threads.
func (s *Scheduler) EnqueueSessionCleanup(ctx context.Context) error {
	job := queue.NewJob(queue.JobTypeSessionCleanup, uuid.Nil, nil)
	notAfter := s.clock.Now().UTC().Add(jobWindow)
	job.NotAfter = &notAfter

	if err := s.jobQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue session cleanup job: %w", err)
	}
	return nil
}

package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/queue"
)

// ThreadDeleter removes a remote chat thread. Implemented by the Backboard
// client.
type ThreadDeleter interface {
	DeleteThread(ctx context.Context, threadID string) error
}

// Dispatcher processes queued jobs: it dispatches due reminders and cleans
// up expired chat sessions.
type Dispatcher struct {
	reminders database.ReminderRepositoryInterface
	sessions  database.SessionRepositoryInterface
	threads   ThreadDeleter
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewDispatcher creates a job dispatcher. A nil clock uses the real one.
func NewDispatcher(
	reminders database.ReminderRepositoryInterface,
	sessions database.SessionRepositoryInterface,
	threads ThreadDeleter,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		reminders: reminders,
		sessions:  sessions,
		threads:   threads,
		clock:     clock,
		logger:    logger,
	}
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes.
func (d *Dispatcher) Run(ctx context.Context, jobQueue queue.JobQueue, prefetch int) error {
	msgs, errs, err := jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				d.logger.Error("queue_consume_error", zap.Error(err))
			}
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if err := d.ProcessJob(ctx, msg); err != nil {
				d.logger.Error("job_failed",
					zap.String("job_id", msg.Job.ID.String()),
					zap.String("job_type", string(msg.Job.Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob handles one message, acknowledging it on success. Failed jobs
// are requeued while retries remain, then dead-lettered.
func (d *Dispatcher) ProcessJob(ctx context.Context, msg *queue.Message) error {
	job := msg.Job

	var err error
	switch job.Type {
	case queue.JobTypeReminderDispatch:
		err = d.processReminderDispatch(ctx, job)
	case queue.JobTypeSessionCleanup:
		err = d.processSessionCleanup(ctx)
	default:
		if nackErr := msg.Nack(false); nackErr != nil {
			d.logger.Warn("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		return d.handleJobError(msg, job, err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// processReminderDispatch marks the reminder sent and emits the
// notification. Mark-sent only succeeds for the first dispatcher to claim
// the reminder, so overlapping scans cannot double-notify.
func (d *Dispatcher) processReminderDispatch(ctx context.Context, job *queue.Job) error {
	if job.ReminderID == nil {
		return fmt.Errorf("reminder_id is required for reminder dispatch job")
	}

	if err := d.reminders.MarkSent(ctx, *job.ReminderID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			d.logger.Debug("reminder_already_dispatched",
				zap.String("reminder_id", job.ReminderID.String()),
			)
			return nil
		}
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	// Delivery transport (push, email) is outside this service; the
	// notification is emitted as a structured log event for the relay to
	// pick up.
	taskTitle, _ := job.Metadata["task_title"].(string)
	description, _ := job.Metadata["description"].(string)
	d.logger.Info("reminder_dispatched",
		zap.String("reminder_id", job.ReminderID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.String("task_title", taskTitle),
		zap.String("description", description),
	)
	return nil
}

// processSessionCleanup deletes expired remote threads and drops their rows.
// Remote deletion is best effort: a thread that fails to delete remotely is
// retried on the next cleanup pass because its row survives.
func (d *Dispatcher) processSessionCleanup(ctx context.Context) error {
	now := d.clock.Now().UTC()

	expired, err := d.sessions.ListExpiredThreads(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired threads: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	deleted := 0
	for _, et := range expired {
		if d.threads != nil {
			if err := d.threads.DeleteThread(ctx, et.ThreadID); err != nil {
				d.logger.Warn("failed_to_delete_remote_thread",
					zap.String("thread_id", et.ThreadID),
					zap.Error(err),
				)
				continue
			}
		}
		if err := d.sessions.DeleteThread(ctx, et.UserID); err != nil {
			d.logger.Warn("failed_to_delete_thread_row",
				zap.String("user_id", et.UserID.String()),
				zap.Error(err),
			)
			continue
		}
		deleted++
	}

	d.logger.Info("session_cleanup_completed",
		zap.Int("expired", len(expired)),
		zap.Int("deleted", deleted),
		zap.Time("cutoff", now),
	)
	return nil
}

// handleJobError requeues the job while retries remain, otherwise sends it
// to the DLQ.
func (d *Dispatcher) handleJobError(msg *queue.Message, job *queue.Job, err error) error {
	if job.CanRetry() {
		job.IncrementRetry()
		d.logger.Warn("job_will_retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			d.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	d.logger.Error("job_dead_lettered",
		zap.String("job_id", job.ID.String()),
		zap.Int("retries", job.RetryCount),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		d.logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

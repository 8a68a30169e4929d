package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/queue"
)

// mockJobQueue records enqueued jobs.
type mockJobQueue struct {
	mu         sync.Mutex
	jobs       []*queue.Job
	enqueueErr error
}

func (q *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *mockJobQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *mockJobQueue) Close() error                     { return nil }
func (q *mockJobQueue) HealthCheck(context.Context) error { return nil }

func (q *mockJobQueue) enqueued() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

// mockReminderRepo serves canned due reminders and records MarkSent calls.
type mockReminderRepo struct {
	mu      sync.Mutex
	due     []*models.DueReminder
	sent    map[uuid.UUID]bool
	markErr error
	getErr  error
}

func newMockReminderRepo() *mockReminderRepo {
	return &mockReminderRepo{sent: make(map[uuid.UUID]bool)}
}

func (r *mockReminderRepo) Create(context.Context, *models.Reminder) error { return nil }
func (r *mockReminderRepo) GetByID(context.Context, uuid.UUID) (*models.Reminder, error) {
	return nil, errors.New("not implemented")
}
func (r *mockReminderRepo) GetByTaskID(context.Context, uuid.UUID) ([]*models.Reminder, error) {
	return nil, nil
}
func (r *mockReminderRepo) Update(context.Context, *models.Reminder) error { return nil }
func (r *mockReminderRepo) Delete(context.Context, uuid.UUID) error        { return nil }

func (r *mockReminderRepo) GetDue(_ context.Context, _ time.Time, _ int) ([]*models.DueReminder, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.due, nil
}

func (r *mockReminderRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent[id] {
		return fmt.Errorf("reminder not found")
	}
	r.sent[id] = true
	return nil
}

// mockSessionRepo holds expired thread rows for cleanup tests.
type mockSessionRepo struct {
	expired   []database.ExpiredThread
	deleted   []uuid.UUID
	listErr   error
	deleteErr error
}

func (r *mockSessionRepo) GetAssistantID(context.Context, uuid.UUID) (string, error) {
	return "", nil
}
func (r *mockSessionRepo) SetAssistantID(context.Context, uuid.UUID, string) error { return nil }
func (r *mockSessionRepo) GetThreadID(context.Context, uuid.UUID, time.Time) (string, error) {
	return "", nil
}
func (r *mockSessionRepo) SetThread(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}
func (r *mockSessionRepo) TouchThread(context.Context, uuid.UUID, time.Time) error { return nil }

func (r *mockSessionRepo) DeleteThread(_ context.Context, userID uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, userID)
	return nil
}

func (r *mockSessionRepo) ListExpiredThreads(context.Context, time.Time) ([]database.ExpiredThread, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.expired, nil
}

func (r *mockSessionRepo) DeleteExpiredThreads(context.Context, time.Time) (int64, error) {
	return int64(len(r.expired)), nil
}

// mockThreadDeleter records remote thread deletions.
type mockThreadDeleter struct {
	deleted []string
	err     error
}

func (d *mockThreadDeleter) DeleteThread(_ context.Context, threadID string) error {
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, threadID)
	return nil
}

func dueReminder(title string) *models.DueReminder {
	return &models.DueReminder{
		Reminder: models.Reminder{
			ID:          uuid.New(),
			TaskID:      uuid.New(),
			Description: "don't forget",
			RemindAt:    time.Now().Add(-time.Minute),
		},
		UserID:    uuid.New(),
		TaskTitle: title,
	}
}

func TestScheduler_ScanDueReminders(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	reminders := newMockReminderRepo()
	reminders.due = []*models.DueReminder{dueReminder("Pay rent"), dueReminder("Call mom")}

	s := NewScheduler(jobQueue, reminders, clockwork.NewFakeClock(), nil)
	if err := s.ScanDueReminders(context.Background()); err != nil {
		t.Fatalf("ScanDueReminders failed: %v", err)
	}

	jobs := jobQueue.enqueued()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.Type != queue.JobTypeReminderDispatch {
			t.Errorf("Expected reminder_dispatch job, got %s", job.Type)
		}
		if job.ReminderID == nil || *job.ReminderID != reminders.due[i].Reminder.ID {
			t.Errorf("Job %d carries wrong reminder ID", i)
		}
		if job.Metadata["task_title"] != reminders.due[i].TaskTitle {
			t.Errorf("Job %d missing task title metadata", i)
		}
		if job.NotAfter == nil {
			t.Errorf("Job %d should have an expiration window", i)
		}
	}
}

func TestScheduler_ScanDueReminders_Empty(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	s := NewScheduler(jobQueue, newMockReminderRepo(), clockwork.NewFakeClock(), nil)

	if err := s.ScanDueReminders(context.Background()); err != nil {
		t.Fatalf("ScanDueReminders failed: %v", err)
	}
	if len(jobQueue.enqueued()) != 0 {
		t.Error("Expected no jobs for empty scan")
	}
}

func TestScheduler_ScanDueReminders_RepoError(t *testing.T) {
	t.Parallel()

	reminders := newMockReminderRepo()
	reminders.getErr = errors.New("db down")
	s := NewScheduler(&mockJobQueue{}, reminders, clockwork.NewFakeClock(), nil)

	if err := s.ScanDueReminders(context.Background()); err == nil {
		t.Error("Expected error from failing repository")
	}
}

func TestScheduler_EnqueueSessionCleanup(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	s := NewScheduler(jobQueue, newMockReminderRepo(), clockwork.NewFakeClock(), nil)

	if err := s.EnqueueSessionCleanup(context.Background()); err != nil {
		t.Fatalf("EnqueueSessionCleanup failed: %v", err)
	}

	jobs := jobQueue.enqueued()
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Type != queue.JobTypeSessionCleanup {
		t.Errorf("Expected session_cleanup job, got %s", jobs[0].Type)
	}
}

func TestScheduler_Start_TickTriggersScan(t *testing.T) {
	t.Parallel()

	jobQueue := &mockJobQueue{}
	reminders := newMockReminderRepo()
	reminders.due = []*models.DueReminder{dueReminder("Tick")}

	clock := clockwork.NewFakeClock()
	s := NewScheduler(jobQueue, reminders, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Both tickers must be registered before advancing.
	clock.BlockUntil(2)
	clock.Advance(DefaultScanInterval)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(jobQueue.enqueued()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(jobQueue.enqueued()) == 0 {
		t.Fatal("Expected scan tick to enqueue a job")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDispatcher_ReminderDispatch(t *testing.T) {
	t.Parallel()

	reminders := newMockReminderRepo()
	d := NewDispatcher(reminders, &mockSessionRepo{}, &mockThreadDeleter{}, nil, nil)

	reminderID := uuid.New()
	job := queue.NewJob(queue.JobTypeReminderDispatch, uuid.New(), &reminderID)
	job.Metadata["task_title"] = "Pay rent"

	if err := d.processReminderDispatch(context.Background(), job); err != nil {
		t.Fatalf("processReminderDispatch failed: %v", err)
	}
	if !reminders.sent[reminderID] {
		t.Error("Expected reminder to be marked sent")
	}
}

func TestDispatcher_ReminderDispatch_AlreadySent(t *testing.T) {
	t.Parallel()

	reminders := newMockReminderRepo()
	reminderID := uuid.New()
	reminders.sent[reminderID] = true

	d := NewDispatcher(reminders, &mockSessionRepo{}, &mockThreadDeleter{}, nil, nil)
	job := queue.NewJob(queue.JobTypeReminderDispatch, uuid.New(), &reminderID)

	// Already-sent is not an error: the scan raced another dispatcher.
	if err := d.processReminderDispatch(context.Background(), job); err != nil {
		t.Fatalf("Expected already-sent to be swallowed, got %v", err)
	}
}

func TestDispatcher_ReminderDispatch_MissingID(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(newMockReminderRepo(), &mockSessionRepo{}, &mockThreadDeleter{}, nil, nil)
	job := queue.NewJob(queue.JobTypeReminderDispatch, uuid.New(), nil)

	if err := d.processReminderDispatch(context.Background(), job); err == nil {
		t.Error("Expected error for job without reminder ID")
	}
}

func TestDispatcher_SessionCleanup(t *testing.T) {
	t.Parallel()

	userA, userB := uuid.New(), uuid.New()
	sessions := &mockSessionRepo{
		expired: []database.ExpiredThread{
			{UserID: userA, ThreadID: "thread-a"},
			{UserID: userB, ThreadID: "thread-b"},
		},
	}
	threads := &mockThreadDeleter{}
	d := NewDispatcher(newMockReminderRepo(), sessions, threads, nil, nil)

	if err := d.processSessionCleanup(context.Background()); err != nil {
		t.Fatalf("processSessionCleanup failed: %v", err)
	}

	if len(threads.deleted) != 2 {
		t.Errorf("Expected 2 remote deletions, got %d", len(threads.deleted))
	}
	if len(sessions.deleted) != 2 {
		t.Errorf("Expected 2 row deletions, got %d", len(sessions.deleted))
	}
}

func TestDispatcher_SessionCleanup_RemoteFailureKeepsRow(t *testing.T) {
	t.Parallel()

	sessions := &mockSessionRepo{
		expired: []database.ExpiredThread{{UserID: uuid.New(), ThreadID: "thread-a"}},
	}
	threads := &mockThreadDeleter{err: errors.New("backboard unreachable")}
	d := NewDispatcher(newMockReminderRepo(), sessions, threads, nil, nil)

	if err := d.processSessionCleanup(context.Background()); err != nil {
		t.Fatalf("processSessionCleanup failed: %v", err)
	}
	if len(sessions.deleted) != 0 {
		t.Error("Row should survive when remote deletion fails")
	}
}

func TestDispatcher_SessionCleanup_NoExpired(t *testing.T) {
	t.Parallel()

	sessions := &mockSessionRepo{}
	threads := &mockThreadDeleter{}
	d := NewDispatcher(newMockReminderRepo(), sessions, threads, nil, nil)

	if err := d.processSessionCleanup(context.Background()); err != nil {
		t.Fatalf("processSessionCleanup failed: %v", err)
	}
	if len(threads.deleted) != 0 {
		t.Error("Expected no deletions")
	}
}

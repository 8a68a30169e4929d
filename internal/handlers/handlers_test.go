package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
)

// fakeTaskRepo is an in-memory task repository for handler tests.
type fakeTaskRepo struct {
	tasks map[uuid.UUID]*models.Task
	err   error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*models.Task)}
}

func (r *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	if r.err != nil {
		return r.err
	}
	if task.Tags == nil {
		task.Tags = []models.Tag{}
	}
	task.Reminders = []models.Reminder{}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not found")
	}
	copied := *task
	return &copied, nil
}

func (r *fakeTaskRepo) GetByUserID(_ context.Context, userID uuid.UUID) ([]*models.Task, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*models.Task
	for _, t := range r.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *models.Task) error {
	if _, ok := r.tasks[task.ID]; !ok {
		return fmt.Errorf("task not found")
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task not found")
	}
	delete(r.tasks, id)
	return nil
}

// fakeTagRepo is an in-memory tag repository for handler tests.
type fakeTagRepo struct {
	tags map[uuid.UUID]*models.Tag
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{tags: make(map[uuid.UUID]*models.Tag)}
}

func (r *fakeTagRepo) Create(_ context.Context, tag *models.Tag) error {
	for _, existing := range r.tags {
		if existing.UserID == tag.UserID && existing.Name == tag.Name {
			*tag = *existing
			return nil
		}
	}
	r.tags[tag.ID] = tag
	return nil
}

func (r *fakeTagRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	tag, ok := r.tags[id]
	if !ok {
		return nil, fmt.Errorf("tag not found")
	}
	copied := *tag
	return &copied, nil
}

func (r *fakeTagRepo) GetByUserID(_ context.Context, userID uuid.UUID) ([]*models.Tag, error) {
	var out []*models.Tag
	for _, t := range r.tags {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTagRepo) Update(_ context.Context, tag *models.Tag) error {
	if _, ok := r.tags[tag.ID]; !ok {
		return fmt.Errorf("tag not found")
	}
	r.tags[tag.ID] = tag
	return nil
}

func (r *fakeTagRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.tags[id]; !ok {
		return fmt.Errorf("tag not found")
	}
	delete(r.tags, id)
	return nil
}

// fakeReminderRepo is an in-memory reminder repository for handler tests.
type fakeReminderRepo struct {
	reminders map[uuid.UUID]*models.Reminder
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{reminders: make(map[uuid.UUID]*models.Reminder)}
}

func (r *fakeReminderRepo) Create(_ context.Context, reminder *models.Reminder) error {
	r.reminders[reminder.ID] = reminder
	return nil
}

func (r *fakeReminderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Reminder, error) {
	reminder, ok := r.reminders[id]
	if !ok {
		return nil, fmt.Errorf("reminder not found")
	}
	copied := *reminder
	return &copied, nil
}

func (r *fakeReminderRepo) GetByTaskID(_ context.Context, taskID uuid.UUID) ([]*models.Reminder, error) {
	var out []*models.Reminder
	for _, rem := range r.reminders {
		if rem.TaskID == taskID {
			out = append(out, rem)
		}
	}
	return out, nil
}

func (r *fakeReminderRepo) GetDue(context.Context, time.Time, int) ([]*models.DueReminder, error) {
	return nil, nil
}

func (r *fakeReminderRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	reminder, ok := r.reminders[id]
	if !ok || reminder.Sent {
		return fmt.Errorf("reminder not found")
	}
	reminder.Sent = true
	return nil
}

func (r *fakeReminderRepo) Update(_ context.Context, reminder *models.Reminder) error {
	if _, ok := r.reminders[reminder.ID]; !ok {
		return fmt.Errorf("reminder not found")
	}
	r.reminders[reminder.ID] = reminder
	return nil
}

func (r *fakeReminderRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.reminders[id]; !ok {
		return fmt.Errorf("reminder not found")
	}
	delete(r.reminders, id)
	return nil
}

// fakeMemoryRepo is an in-memory memory repository for handler tests.
type fakeMemoryRepo struct {
	memories map[uuid.UUID]*models.Memory
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{memories: make(map[uuid.UUID]*models.Memory)}
}

func (r *fakeMemoryRepo) Create(_ context.Context, memory *models.Memory) error {
	r.memories[memory.ID] = memory
	return nil
}

func (r *fakeMemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Memory, error) {
	memory, ok := r.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory not found")
	}
	copied := *memory
	return &copied, nil
}

func (r *fakeMemoryRepo) GetByUserID(_ context.Context, userID uuid.UUID) ([]*models.Memory, error) {
	var out []*models.Memory
	for _, m := range r.memories {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMemoryRepo) Update(_ context.Context, memory *models.Memory) error {
	if _, ok := r.memories[memory.ID]; !ok {
		return fmt.Errorf("memory not found")
	}
	r.memories[memory.ID] = memory
	return nil
}

func (r *fakeMemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.memories[id]; !ok {
		return fmt.Errorf("memory not found")
	}
	delete(r.memories, id)
	return nil
}

// withUser injects the user into every request, standing in for the auth
// middleware.
func withUser(user *models.User, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != nil {
			r = r.WithContext(request.WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// serve routes the request through a mux router with the given prefix.
func serve(prefix string, register func(*mux.Router), user *models.User, req *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	register(router.PathPrefix(prefix).Subrouter())

	rec := httptest.NewRecorder()
	withUser(user, router).ServeHTTP(rec, req)
	return rec
}

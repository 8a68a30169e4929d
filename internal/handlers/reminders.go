package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/validation"
)

// ReminderHandler handles reminder-related requests. Reminders hang off
// tasks, so creation and listing are nested under /tasks/{id}/reminders.
type ReminderHandler struct {
	reminderRepo database.ReminderRepositoryInterface
	taskRepo     database.TaskRepositoryInterface
}

// NewReminderHandler creates a new reminder handler
func NewReminderHandler(reminderRepo database.ReminderRepositoryInterface, taskRepo database.TaskRepositoryInterface) *ReminderHandler {
	return &ReminderHandler{reminderRepo: reminderRepo, taskRepo: taskRepo}
}

// RegisterTaskRoutes registers the task-nested reminder routes.
// The router should already have the /tasks prefix.
func (h *ReminderHandler) RegisterTaskRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/reminders", h.ListReminders).Methods("GET")
	r.HandleFunc("/{id}/reminders", h.CreateReminder).Methods("POST")
}

// RegisterRoutes registers the top-level reminder routes.
// The router should already have the /reminders prefix.
func (h *ReminderHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}", h.DeleteReminder).Methods("DELETE")
}

// CreateReminderRequest represents a create reminder request
type CreateReminderRequest struct {
	Description string    `json:"description" validate:"max=1000"`
	RemindAt    time.Time `json:"remind_at" validate:"required"`
}

// ListReminders lists the reminders of a task
func (h *ReminderHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	reminders, err := h.reminderRepo.GetByTaskID(r.Context(), task.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve reminders")
		return
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}

	respondJSON(w, http.StatusOK, reminders)
}

// CreateReminder schedules a reminder on a task
func (h *ReminderHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	var req CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if err := validation.Validate.Struct(req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return
	}

	reminder := &models.Reminder{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Description: validation.SanitizeText(req.Description),
		RemindAt:    req.RemindAt.UTC(),
	}

	if err := h.reminderRepo.Create(r.Context(), reminder); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create reminder")
		return
	}

	respondJSON(w, http.StatusCreated, reminder)
}

// DeleteReminder deletes a reminder
func (h *ReminderHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid reminder ID")
		return
	}

	reminder, err := h.reminderRepo.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Reminder not found")
		return
	}

	// Ownership is through the parent task.
	task, err := h.taskRepo.GetByID(r.Context(), reminder.TaskID)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Reminder not found")
		return
	}
	if task.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Reminder does not belong to user")
		return
	}

	if err := h.reminderRepo.Delete(r.Context(), id); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ReminderHandler) ownedTask(w http.ResponseWriter, r *http.Request) (*models.Task, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task ID")
		return nil, false
	}

	task, err := h.taskRepo.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return nil, false
	}
	if task.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Task does not belong to user")
		return nil, false
	}

	return task, true
}

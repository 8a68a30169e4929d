package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/validation"
)

// Rememberer pushes a long-term fact to the user's assistant. Implemented by
// backboard.Wrapper.
type Rememberer interface {
	Remember(ctx context.Context, userID uuid.UUID, fact string, metadata map[string]any) error
}

// MemoryHandler handles memory-related requests
type MemoryHandler struct {
	memoryRepo database.MemoryRepositoryInterface
	assistant  Rememberer
	logger     *zap.Logger
}

// NewMemoryHandler creates a new memory handler. assistant may be nil when
// no Backboard mirror is configured.
func NewMemoryHandler(memoryRepo database.MemoryRepositoryInterface, assistant Rememberer, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{memoryRepo: memoryRepo, assistant: assistant, logger: logger}
}

// RegisterRoutes registers memory routes on the given router.
// The router should already have the /memories prefix.
func (h *MemoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListMemories).Methods("GET")
	r.HandleFunc("", h.CreateMemory).Methods("POST")
	r.HandleFunc("/{id}", h.DeleteMemory).Methods("DELETE")
}

// CreateMemoryRequest represents a create memory request
type CreateMemoryRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Content  string `json:"content" validate:"required,min=1,max=5000"`
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
}

// ListMemories lists memories ordered by priority then recency
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	memories, err := h.memoryRepo.GetByUserID(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve memories")
		return
	}
	if memories == nil {
		memories = []*models.Memory{}
	}

	respondJSON(w, http.StatusOK, memories)
}

// CreateMemory stores a memory and mirrors it to the caller's assistant.
// The mirror is best effort: a Backboard failure does not fail the request.
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateMemoryRequest
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

	req.Title = validation.SanitizeText(req.Title)
	req.Content = validation.SanitizeText(req.Content)
	if req.Title == "" || req.Content == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Title and content are required")
		return
	}

	priority := models.MemoryPriority(req.Priority)
	if priority == "" {
		priority = models.MemoryPriorityMedium
	}

	memory := &models.Memory{
		ID:       uuid.New(),
		UserID:   user.ID,
		Title:    req.Title,
		Content:  req.Content,
		Priority: priority,
	}

	if err := h.memoryRepo.Create(r.Context(), memory); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create memory")
		return
	}

	if h.assistant != nil {
		fact := fmt.Sprintf("%s: %s", memory.Title, memory.Content)
		metadata := map[string]any{
			"memory_id": memory.ID.String(),
			"priority":  string(memory.Priority),
		}
		if err := h.assistant.Remember(r.Context(), user.ID, fact, metadata); err != nil {
			h.logger.Warn("failed_to_mirror_memory_to_assistant",
				zap.String("memory_id", memory.ID.String()),
				zap.Error(err),
			)
		}
	}

	respondJSON(w, http.StatusCreated, memory)
}

// DeleteMemory deletes a memory
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid memory ID")
		return
	}

	memory, err := h.memoryRepo.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Memory not found")
		return
	}
	if memory.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Memory does not belong to user")
		return
	}

	if err := h.memoryRepo.Delete(r.Context(), id); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete memory")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

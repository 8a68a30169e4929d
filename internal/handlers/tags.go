package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/validation"
)

// TagHandler handles tag-related requests
type TagHandler struct {
	tagRepo database.TagRepositoryInterface
}

// NewTagHandler creates a new tag handler
func NewTagHandler(tagRepo database.TagRepositoryInterface) *TagHandler {
	return &TagHandler{tagRepo: tagRepo}
}

// RegisterRoutes registers tag routes on the given router.
// The router should already have the /tags prefix.
func (h *TagHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTags).Methods("GET")
	r.HandleFunc("", h.CreateTag).Methods("POST")
	r.HandleFunc("/{id}", h.UpdateTag).Methods("PUT")
	r.HandleFunc("/{id}", h.DeleteTag).Methods("DELETE")
}

// CreateTagRequest represents a create tag request
type CreateTagRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Color string `json:"color,omitempty" validate:"omitempty,tag_color"`
}

// UpdateTagRequest represents an update tag request
type UpdateTagRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// ListTags lists all tags for the authenticated user
func (h *TagHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	tags, err := h.tagRepo.GetByUserID(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve tags")
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}

	respondJSON(w, http.StatusOK, tags)
}

// CreateTag creates a tag. Creating a name that already exists returns the
// existing tag unchanged.
func (h *TagHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateTagRequest
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

	req.Name = validation.SanitizeText(req.Name)
	if req.Name == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name is required and cannot be empty after sanitization")
		return
	}

	tag := &models.Tag{
		ID:     uuid.New(),
		UserID: user.ID,
		Name:   req.Name,
		Color:  req.Color,
	}
	if tag.Color == "" {
		tag.Color = models.DefaultTagColor
	}

	if err := h.tagRepo.Create(r.Context(), tag); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create tag")
		return
	}

	respondJSON(w, http.StatusCreated, tag)
}

// UpdateTag renames or recolors a tag
func (h *TagHandler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.ownedTag(w, r)
	if !ok {
		return
	}

	var req UpdateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if req.Name != nil {
		sanitized := validation.SanitizeText(*req.Name)
		if sanitized == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Name cannot be empty after sanitization")
			return
		}
		tag.Name = sanitized
	}
	if req.Color != nil {
		if err := validation.ValidateTagColor(*req.Color); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		tag.Color = *req.Color
	}

	if err := h.tagRepo.Update(r.Context(), tag); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update tag")
		return
	}

	respondJSON(w, http.StatusOK, tag)
}

// DeleteTag deletes a tag and detaches it from all tasks
func (h *TagHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.ownedTag(w, r)
	if !ok {
		return
	}

	if err := h.tagRepo.Delete(r.Context(), tag.ID); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete tag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TagHandler) ownedTag(w http.ResponseWriter, r *http.Request) (*models.Tag, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid tag ID")
		return nil, false
	}

	tag, err := h.tagRepo.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Tag not found")
		return nil, false
	}

	if tag.UserID != user.ID {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Tag does not belong to user")
		return nil, false
	}

	return tag, true
}

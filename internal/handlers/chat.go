package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
)

// MaxUploadSize caps chat document uploads.
const MaxUploadSize = 10 << 20 // 10 MB

// Content types Backboard can index. text/plain is absent on purpose: it is
// converted to Markdown before upload.
var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.ms-excel":      true,
	"application/xml":               true,
	"text/xml":                      true,
	"text/markdown":                 true,
	"application/jsonl":             true,
	"application/x-jsonlines":       true,
}

// ChatSession is the slice of the Backboard wrapper the chat endpoints use.
type ChatSession interface {
	History(ctx context.Context, userID uuid.UUID) ([]backboard.ThreadMessage, error)
	EndSession(ctx context.Context, userID uuid.UUID) error
	SessionDocuments(ctx context.Context, userID uuid.UUID) ([]backboard.Document, error)
	UploadSessionDoc(ctx context.Context, userID uuid.UUID, filename, contentType string, data io.Reader) (*backboard.Document, error)
}

// ChatHandler handles the HTTP side of the chat: history, reset, and
// document management. The conversation itself runs over the WebSocket.
type ChatHandler struct {
	session ChatSession
	logger  *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(session ChatSession, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{session: session, logger: logger}
}

// RegisterRoutes registers chat routes on the given router.
// The router should already have the /chat prefix.
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/reset", h.ResetChat).Methods("POST")
	r.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	r.HandleFunc("/upload", h.UploadDocument).Methods("POST")
}

// GetHistory returns the messages of the active chat session. An absent
// session reads as an empty history.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	messages, err := h.session.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed_to_fetch_chat_history",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to fetch chat history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// ResetChat deletes the active thread. The next message starts fresh.
func (h *ChatHandler) ResetChat(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	if err := h.session.EndSession(r.Context(), user.ID); err != nil {
		h.logger.Error("failed_to_reset_chat",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to reset chat")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// ListDocuments returns the session's documents and whether any is still
// being indexed.
func (h *ChatHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	docs, err := h.session.SessionDocuments(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed_to_list_documents",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []backboard.Document{}
	}

	indexing := false
	for _, doc := range docs {
		if doc.IsPending() {
			indexing = true
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"indexing":  indexing,
	})
}

// UploadDocument attaches a file to the chat session. Indexing is
// asynchronous; the client polls /chat/documents for the status.
func (h *ChatHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	filename := filepath.Base(header.Filename)
	contentType := parseContentType(header.Header.Get("Content-Type"))

	// Plain text is indexable once relabeled as Markdown.
	if contentType == "text/plain" {
		contentType = "text/markdown"
		ext := filepath.Ext(filename)
		filename = strings.TrimSuffix(filename, ext) + ".md"
	}

	if !allowedUploadTypes[contentType] {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Unsupported file type: "+contentType)
		return
	}

	doc, err := h.session.UploadSessionDoc(r.Context(), user.ID, filename, contentType, file)
	if err != nil {
		h.logger.Error("failed_to_upload_document",
			zap.String("user_id", user.ID.String()),
			zap.String("filename", filename),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to upload document")
		return
	}

	respondJSON(w, http.StatusCreated, doc)
}

func parseContentType(raw string) string {
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mediaType
}

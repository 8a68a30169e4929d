package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/services/ai"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
)

const (
	readDeadline   = 60 * time.Second
	maxMessageSize = 8192

	stillIndexingMessage = "I'm still indexing your uploaded document. " +
		"Give it a moment and ask again."
)

// ChatWorkflow runs one chat turn. Implemented by ai.Workflow; tests
// substitute a stub.
type ChatWorkflow interface {
	ProcessMessage(ctx context.Context, user *models.User, message string, remember bool) (*ai.Result, error)
}

// DocumentLister reports the documents on the caller's session thread.
// Implemented by backboard.Wrapper.
type DocumentLister interface {
	SessionDocuments(ctx context.Context, userID uuid.UUID) ([]backboard.Document, error)
}

type noDocuments struct{}

func (noDocuments) SessionDocuments(context.Context, uuid.UUID) ([]backboard.Document, error) {
	return nil, nil
}

// Handler upgrades authenticated requests to WebSocket connections and
// relays chat frames through the workflow.
type Handler struct {
	hub      *Hub
	workflow ChatWorkflow
	docs     DocumentLister
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates the WebSocket chat handler. docs may be nil for
// providers without document indexing.
func NewHandler(hub *Hub, workflow ChatWorkflow, docs DocumentLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if docs == nil {
		docs = noDocuments{}
	}
	return &Handler{
		hub:      hub,
		workflow: workflow,
		docs:     docs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP implements http.Handler. Authentication happens upstream in the
// middleware chain; an unauthenticated request is rejected before upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "Authentication required",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket_upgrade_failed", zap.Error(err))
		return
	}

	// Greet before the hub writer takes over the connection.
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(connectedFrame()); err != nil {
		_ = conn.Close()
		return
	}

	if err := h.hub.Register(user.ID, conn); err != nil {
		return
	}
	defer h.hub.Unregister(user.ID, conn)

	h.readLoop(r.Context(), user, conn)
}

func (h *Handler) readLoop(ctx context.Context, user *models.User, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket_read_error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.hub.Send(user.ID, errorFrame("Invalid message format"))
			continue
		}

		switch frame.Type {
		case "ping":
			h.hub.Send(user.ID, pongFrame())
		case "message":
			if frame.Message == "" {
				h.hub.Send(user.ID, errorFrame("Empty message"))
				continue
			}
			// Process off the read loop so pings keep flowing while the
			// model call is in flight.
			go h.process(ctx, user, frame.Message, frame.Remember)
		default:
			h.hub.Send(user.ID, errorFrame("Unknown message type"))
		}
	}
}

func (h *Handler) process(ctx context.Context, user *models.User, message string, remember bool) {
	if h.indexingInProgress(ctx, user.ID) {
		h.hub.Send(user.ID, assistantFrame(stillIndexingMessage))
		return
	}

	result, err := h.workflow.ProcessMessage(ctx, user, message, remember)
	if err != nil {
		h.logger.Error("chat_message_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		h.hub.Send(user.ID, errorFrame("Failed to process message"))
		return
	}

	h.hub.Send(user.ID, assistantFrame(result.Content))
	if result.CalendarUpdated {
		h.hub.Send(user.ID, calendarUpdatedFrame())
	}
}

// indexingInProgress reports whether any session document is still being
// indexed. Listing failures are logged and treated as not indexing.
func (h *Handler) indexingInProgress(ctx context.Context, userID uuid.UUID) bool {
	docs, err := h.docs.SessionDocuments(ctx, userID)
	if err != nil {
		h.logger.Warn("failed_to_list_session_documents",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return false
	}
	for _, doc := range docs {
		if doc.IsPending() {
			return true
		}
	}
	return false
}

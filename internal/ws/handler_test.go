package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidyplan/tidyplan-api/internal/models"
	"github.com/tidyplan/tidyplan-api/internal/request"
	"github.com/tidyplan/tidyplan-api/internal/services/ai"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
)

type stubWorkflow struct {
	result *ai.Result
	err    error

	lastMessage  string
	lastRemember bool
}

func (s *stubWorkflow) ProcessMessage(_ context.Context, _ *models.User, message string, remember bool) (*ai.Result, error) {
	s.lastMessage = message
	s.lastRemember = remember
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubDocs struct {
	docs []backboard.Document
	err  error
}

func (s *stubDocs) SessionDocuments(context.Context, uuid.UUID) ([]backboard.Document, error) {
	return s.docs, s.err
}

// testChatServer mounts the handler behind a shim that injects the user into
// the request context, standing in for the auth middleware.
func testChatServer(t *testing.T, workflow ChatWorkflow, docs DocumentLister, user *models.User) *httptest.Server {
	t.Helper()

	hub := NewHub(nil)
	t.Cleanup(func() { hub.Stop() })

	handler := NewHandler(hub, workflow, docs, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != nil {
			r = r.WithContext(request.WithUser(r.Context(), user))
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() { server.Close() })
	return server
}

func dialChat(t *testing.T, server *httptest.Server) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	server := testChatServer(t, &stubWorkflow{}, &stubDocs{}, nil)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_SendsConnectedFrame(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	server := testChatServer(t, &stubWorkflow{}, &stubDocs{}, user)

	conn := dialChat(t, server)
	frame := readFrame(t, conn)
	assert.Equal(t, "connected", frame.Type)
}

func TestHandler_MessageRoundTrip(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	workflow := &stubWorkflow{result: &ai.Result{Content: "Added it.", CalendarUpdated: true}}
	server := testChatServer(t, workflow, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	err := conn.WriteJSON(clientFrame{Type: "message", Message: "add milk", Remember: true})
	require.NoError(t, err)

	reply := readFrame(t, conn)
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, "Added it.", reply.Content)

	updated := readFrame(t, conn)
	assert.Equal(t, "calendar_updated", updated.Type)

	assert.Equal(t, "add milk", workflow.lastMessage)
	assert.True(t, workflow.lastRemember)
}

func TestHandler_NoCalendarFrameWithoutMutation(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	workflow := &stubWorkflow{result: &ai.Result{Content: "Two tasks open."}}
	server := testChatServer(t, workflow, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Message: "what's open?"}))
	assert.Equal(t, "Two tasks open.", readFrame(t, conn).Content)

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no further frame expected")
}

func TestHandler_PingPong(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	server := testChatServer(t, &stubWorkflow{}, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestHandler_IndexingGuard(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	workflow := &stubWorkflow{result: &ai.Result{Content: "should not be reached"}}
	docs := &stubDocs{docs: []backboard.Document{{DocumentID: "doc-1", Status: "indexing"}}}
	server := testChatServer(t, workflow, docs, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Message: "summarize the file"}))

	reply := readFrame(t, conn)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, stillIndexingMessage, reply.Content)
	assert.Empty(t, workflow.lastMessage, "workflow should not run while indexing")
}

func TestHandler_IndexedDocumentDoesNotBlock(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	workflow := &stubWorkflow{result: &ai.Result{Content: "done reading"}}
	docs := &stubDocs{docs: []backboard.Document{{DocumentID: "doc-1", Status: "indexed"}}}
	server := testChatServer(t, workflow, docs, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Message: "summarize"}))
	assert.Equal(t, "done reading", readFrame(t, conn).Content)
}

func TestHandler_WorkflowErrorFrame(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	workflow := &stubWorkflow{err: errors.New("backboard down")}
	server := testChatServer(t, workflow, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Message: "hi"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Failed to process message", frame.Message)
}

func TestHandler_UnknownFrameType(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	server := testChatServer(t, &stubWorkflow{}, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "subscribe"}))
	assert.Equal(t, "error", readFrame(t, conn).Type)
}

func TestHandler_EmptyMessage(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	server := testChatServer(t, &stubWorkflow{}, &stubDocs{}, user)

	conn := dialChat(t, server)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Message: ""}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "Empty message", frame.Message)
}

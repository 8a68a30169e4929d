package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHub sets up a Hub behind a test HTTP server that upgrades connections.
// Returns the hub and a dial function that connects a client for a user.
func testHub(t *testing.T) (*Hub, func(userID uuid.UUID) *gws.Conn) {
	t.Helper()

	hub := NewHub(nil)
	t.Cleanup(func() { hub.Stop() })

	upgrader := gws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		userID := uuid.MustParse(r.URL.Query().Get("user"))
		_ = hub.Register(userID, conn)

		// Read loop to detect disconnects
		go func() {
			defer hub.Unregister(userID, conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func(userID uuid.UUID) *gws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID.String()
		conn, _, err := gws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return hub, dial
}

// waitForConnCount polls until the hub has the expected count for a user.
func waitForConnCount(hub *Hub, userID uuid.UUID, expected int) bool {
	for range 100 {
		if hub.ConnCount(userID) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readFrame(t *testing.T, conn *gws.Conn) serverFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame serverFrame
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func TestHub_RegisterAndSend(t *testing.T) {
	hub, dial := testHub(t)
	userID := uuid.New()

	conn := dial(userID)
	require.True(t, waitForConnCount(hub, userID, 1))

	hub.Send(userID, assistantFrame("hello"))

	frame := readFrame(t, conn)
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "assistant", frame.Role)
	assert.Equal(t, "hello", frame.Content)
}

func TestHub_SendReachesAllUserConns(t *testing.T) {
	hub, dial := testHub(t)
	userID := uuid.New()

	conn1 := dial(userID)
	conn2 := dial(userID)
	require.True(t, waitForConnCount(hub, userID, 2))

	hub.Send(userID, calendarUpdatedFrame())

	assert.Equal(t, "calendar_updated", readFrame(t, conn1).Type)
	assert.Equal(t, "calendar_updated", readFrame(t, conn2).Type)
}

func TestHub_SendScopedToUser(t *testing.T) {
	hub, dial := testHub(t)
	alice := uuid.New()
	bob := uuid.New()

	aliceConn := dial(alice)
	bobConn := dial(bob)
	require.True(t, waitForConnCount(hub, alice, 1))
	require.True(t, waitForConnCount(hub, bob, 1))

	hub.Send(alice, assistantFrame("for alice"))

	assert.Equal(t, "for alice", readFrame(t, aliceConn).Content)

	_ = bobConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := bobConn.ReadMessage()
	assert.Error(t, err, "bob should not receive alice's frame")
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, dial := testHub(t)
	userID := uuid.New()

	conn := dial(userID)
	require.True(t, waitForConnCount(hub, userID, 1))

	conn.Close()
	require.True(t, waitForConnCount(hub, userID, 0))
}

func TestHub_SendToUnknownUserIsNoop(t *testing.T) {
	hub, _ := testHub(t)

	// Must not panic or block.
	hub.Send(uuid.New(), pongFrame())
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(nil)
	hub.Stop()

	// Give the run goroutine a moment to drain.
	time.Sleep(10 * time.Millisecond)
}

package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxConnsPerUser   = 10
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	messageBufferSize = 16
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	userID uuid.UUID
	conn   *websocket.Conn
	errCh  chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	userID uuid.UUID
	conn   *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdSend struct {
	userID uuid.UUID
	data   []byte
}

func (cmdSend) hubCmd() {}

type cmdConnCount struct {
	userID  uuid.UUID
	replyCh chan int
}

func (cmdConnCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

// clientWriter owns all writes to one connection. It drains a buffered send
// channel and pings on an interval to keep the connection alive.
type clientWriter struct {
	conn     *websocket.Conn
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, messageBufferSize),
		done:   make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// --- Hub ---

// Hub tracks the open connections per user and fans messages out to them.
// All state is owned by the run goroutine; the public API posts commands.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[uuid.UUID]map[*websocket.Conn]*clientWriter
	logger  *zap.Logger
}

// NewHub creates and starts a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[uuid.UUID]map[*websocket.Conn]*clientWriter),
		logger:  logger,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.userID, c.conn)
		case cmdSend:
			h.handleSend(c)
		case cmdConnCount:
			c.replyCh <- len(h.clients[c.userID])
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	conns, exists := h.clients[c.userID]
	if !exists {
		conns = make(map[*websocket.Conn]*clientWriter)
		h.clients[c.userID] = conns
	}

	if len(conns) >= maxConnsPerUser {
		h.logger.Warn("websocket_connection_rejected",
			zap.String("user_id", c.userID.String()),
			zap.Int("max_conns", maxConnsPerUser),
		)
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("max connections per user (%d) reached", maxConnsPerUser)
		return
	}

	conns[c.conn] = newClientWriter(c.conn)
	h.logger.Debug("websocket_client_registered",
		zap.String("user_id", c.userID.String()),
		zap.Int("total_conns", len(conns)),
	)
	c.errCh <- nil
}

func (h *Hub) handleUnregister(userID uuid.UUID, conn *websocket.Conn) {
	conns, exists := h.clients[userID]
	if !exists {
		return
	}

	cw, exists := conns[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}

	h.logger.Debug("websocket_client_unregistered",
		zap.String("user_id", userID.String()),
		zap.Int("remaining_conns", len(conns)),
	)
}

func (h *Hub) handleSend(c cmdSend) {
	conns, exists := h.clients[c.userID]
	if !exists {
		return
	}

	var slow []*websocket.Conn
	for conn, cw := range conns {
		select {
		case cw.sendCh <- c.data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		h.logger.Warn("websocket_slow_client_disconnected",
			zap.String("user_id", c.userID.String()),
		)
		h.handleUnregister(c.userID, conn)
	}
}

func (h *Hub) handleStop() {
	for userID, conns := range h.clients {
		for _, cw := range conns {
			cw.stop()
		}
		delete(h.clients, userID)
	}
}

// --- Public API ---

// Register adds a connection for the user. The hub takes over all writes to
// the connection from this point.
func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{userID: userID, conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection and closes it.
func (h *Hub) Unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{userID: userID, conn: conn}
}

// Send delivers a frame to every open connection of the user. Slow clients
// are disconnected rather than blocking the hub.
func (h *Hub) Send(userID uuid.UUID, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed_to_encode_frame", zap.Error(err))
		return
	}
	h.cmdCh <- cmdSend{userID: userID, data: data}
}

// ConnCount reports the number of open connections for the user.
func (h *Hub) ConnCount(userID uuid.UUID) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdConnCount{userID: userID, replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}

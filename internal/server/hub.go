package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Hub fans snapshot messages out to WebSocket clients.
// All writes to a connection happen under mu.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
	gauge    prometheus.Gauge

	// initial returns the message sent to a client right after it connects, or nil.
	initial func() []byte
}

// NewHub creates a hub. gauge may be nil.
func NewHub(logger *zap.Logger, gauge prometheus.Gauge, initial func() []byte) *Hub {
	return &Hub{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
		gauge:    gauge,
		initial:  initial,
	}
}

// Broadcast marshals v and writes it to every client, dropping clients that fail.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal broadcast", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := h.write(c, msg); err != nil {
			h.logger.Debug("websocket write failed, dropping client", zap.Error(err))
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.initial != nil {
		if msg := h.initial(); msg != nil {
			if err := h.write(conn, msg); err != nil {
				h.mu.Unlock()
				conn.Close()
				return
			}
		}
	}
	h.clients[conn] = struct{}{}
	h.setGaugeLocked()
	h.mu.Unlock()

	// Read loop detects disconnects; client messages are ignored.
	go func() {
		defer func() {
			h.mu.Lock()
			h.removeLocked(conn)
			h.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		h.removeLocked(c)
	}
}

func (h *Hub) write(c *websocket.Conn, msg []byte) error {
	if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, msg)
}

func (h *Hub) removeLocked(c *websocket.Conn) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.Close()
	h.setGaugeLocked()
}

func (h *Hub) setGaugeLocked() {
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
}

package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendBuffer is the per-client backlog; a client that falls further behind is dropped.
const sendBuffer = 64

const writeWait = 5 * time.Second

// Default upgrader for WebSocket connections.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub pushes console output to websocket clients and forwards their text
// messages to the backend as commands. The first message a client receives is
// the full history; every later message is a fragment appended after it.
type Hub struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub serving backend. logger must not be nil.
func NewHub(backend Backend, logger *slog.Logger) *Hub {
	return &Hub{
		backend: backend,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish runs commit (which appends text to the history) and fans text out
// to every client as one step, so a client joining concurrently sees text
// exactly once: either inside its initial history or as a pushed fragment.
// commit may be nil.
func (h *Hub) Publish(text string, commit func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if commit != nil {
		commit()
	}
	if h.closed || text == "" {
		return
	}
	data := []byte(text)
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// ServeWS upgrades the request and runs the client's read loop. Only GET is
// accepted for the WebSocket handshake.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	c, ok := h.add(conn)
	if !ok {
		conn.Close()
		return
	}
	defer h.remove(c)

	for {
		typ, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if !h.backend.Submit(string(raw)) {
			return
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := newClient(conn)
	h.clients[c] = struct{}{}
	if history := h.backend.History(); history != "" {
		c.send <- []byte(history)
	}
	return c, true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones. Safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

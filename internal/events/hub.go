package events

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// Hub broadcasts events to connected oversight clients over websockets.
// Each client has a buffered send channel drained by its own writer
// goroutine; a client that cannot keep up loses frames instead of
// stalling the publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]struct{}
	closed   bool
	wg       sync.WaitGroup
	upgrader websocket.Upgrader
	buffer   int
	ping     time.Duration
	logger   *slog.Logger
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithAllowedOrigins restricts the Origin header accepted on upgrade
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		}
	}
}

// WithPingInterval sets the keepalive ping interval
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.ping = d
		}
	}
}

// NewHub creates a hub with the given per-client buffer
func NewHub(buffer int, logger *slog.Logger, opts ...HubOption) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		buffer: buffer,
		ping:   30 * time.Second,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues the event for every connected client
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			h.logger.Warn("Dropping event for slow websocket client", "client_id", c.id, "event_type", event.Type)
		}
	}
	return nil
}

// Serve upgrades the request and streams events until the client leaves.
// clientID labels the connection in logs.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err, "client_id", clientID)
		return
	}

	client := &hubClient{id: clientID, conn: conn, send: make(chan Event, h.buffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()
	h.logger.Info("WebSocket client connected", "client_id", clientID, "remote_addr", r.RemoteAddr)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// readLoop discards inbound frames; it exists to process control frames
// and notice disconnects.
func (h *Hub) readLoop(c *hubClient) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				h.logger.Warn("WebSocket write failed, closing client", "error", err, "client_id", c.id)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Info("WebSocket client disconnected", "client_id", c.id)
}

// Close disconnects every client and waits for their goroutines to exit
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		// unblock the reader
		_ = c.conn.SetReadDeadline(time.Now())
	}
	h.mu.Unlock()
	h.wg.Wait()
}

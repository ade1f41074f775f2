// Package live fans live telemetry records out to dashboard websocket
// clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// DefaultClientBuffer is the number of records queued per client before
	// the client is considered too slow and disconnected.
	DefaultClientBuffer = 32
)

// ErrClosed is returned by Publish after the hub was closed.
var ErrClosed = errors.New("live hub closed")

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(h *Hub) {
	return func(h *Hub) {
		h.logger = logger.With(slog.String("component", "live"))
	}
}

// WithSnapshot sets a function providing the latest record of every vehicle.
// New clients receive the snapshot before any live record. Publish blocks
// while fn runs, so fn must not call back into the hub.
func WithSnapshot(fn func(ctx context.Context) ([]telemetry.Record, error)) func(h *Hub) {
	return func(h *Hub) {
		h.snapshot = fn
	}
}

// WithClientsHook registers a callback invoked with the number of connected
// clients whenever it changes.
func WithClientsHook(fn func(n int)) func(h *Hub) {
	return func(h *Hub) {
		h.onClients = fn
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given Origin
// header values. Without it every origin is accepted.
func WithAllowedOrigins(origins ...string) func(h *Hub) {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

// WithClientBuffer sets the per-client queue length.
func WithClientBuffer(n int) func(h *Hub) {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

type client struct {
	send   chan []byte
	conn   *websocket.Conn
	remote string
}

// Hub keeps the set of connected clients. Publish never blocks on a client:
// a client whose queue is full is dropped.
type Hub struct {
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	snapshot  func(ctx context.Context) ([]telemetry.Record, error)
	onClients func(n int)
	buffer    int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub with a discard logger
func NewHub(options ...func(h *Hub)) *Hub {
	h := Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		buffer:  DefaultClientBuffer,
		clients: make(map[*client]struct{}),
	}

	for _, option := range options {
		option(&h)
	}

	return &h
}

// Publish queues rec for every connected client.
func (h *Hub) Publish(_ context.Context, rec telemetry.Record) error {
	msg, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow client", slog.String("remote", c.remote))
			h.removeLocked(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams records to it
// until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Debug("upgrading connection", slog.String("error", err.Error()))
		return
	}

	c := &client{send: make(chan []byte, h.buffer), conn: conn, remote: conn.RemoteAddr().String()}
	if !h.register(r.Context(), c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	h.logger.Info("client connected", slog.String("remote", c.remote))

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects all clients. Publish fails afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}

func (h *Hub) queueSnapshot(ctx context.Context, c *client) {
	if h.snapshot == nil {
		return
	}

	records, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Warn("loading snapshot", slog.String("error", err.Error()))
		return
	}
	for _, rec := range records {
		msg, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			return
		}
	}
}

// register queues the snapshot and adds c to the fan-out without letting a
// Publish run in between, so no record falls between the two.
func (h *Hub) register(ctx context.Context, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.queueSnapshot(ctx, c)
	h.clients[c] = struct{}{}
	h.notify()
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.notify()
}

func (h *Hub) notify() {
	if h.onClients != nil {
		h.onClients(len(h.clients))
	}
}

// readLoop discards client messages; it exists to process control frames
// and notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read", slog.String("error", err.Error()))
			}
			h.logger.Info("client disconnected", slog.String("remote", c.remote))
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

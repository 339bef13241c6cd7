// Package ws streams a user's link and trade progress to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 512

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// ChannelFunc names the bus channel carrying a user's events.
type ChannelFunc func(userID string) string

// envelope is the frame written to clients.
type envelope struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

// Hub subscribes each connection to its user's bus channel and relays every
// event as a JSON text frame.
type Hub struct {
	bus      domain.SignalBus
	channel  ChannelFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. allowedOrigins restricts the upgrade; empty allows
// any origin.
func NewHub(bus domain.SignalBus, channel ChannelFunc, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		bus:     bus,
		channel: channel,
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run blocks until ctx is done and then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return ctx.Err()
}

// HandleWS upgrades the request and streams the user's events.
// GET /ws?user_id=...
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id query parameter required"}`, http.StatusBadRequest)
		return
	}

	// The request context ends when this handler returns, so the
	// subscription gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.bus.Subscribe(ctx, h.channel(userID))
	if err != nil {
		cancel()
		h.logger.Error("ws: subscribe failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		http.Error(w, `{"error":"subscription unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		cancel: cancel,
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.String("user_id", userID), slog.Int("total_clients", total))

	c.enqueue(envelope{Type: "connected", UserID: userID})
	go c.forward(ctx, events)
	go c.writePump(ctx)
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close()
		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		total := len(c.hub.clients)
		c.hub.mu.Unlock()
		c.hub.logger.Info("ws: client disconnected", slog.String("user_id", c.userID), slog.Int("total_clients", total))
	})
}

func (c *client) enqueue(e envelope) {
	msg, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("ws: dropping message for slow client", slog.String("user_id", c.userID))
	}
}

// forward relays bus payloads until the subscription ends.
func (c *client) forward(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				c.close()
				return
			}
			c.enqueue(envelope{Type: "progress", UserID: c.userID, Payload: data})
		}
	}
}

// readPump discards client frames and keeps the read deadline fresh on
// every pong. It closes the client when the peer goes away.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump writes queued frames and periodic pings.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

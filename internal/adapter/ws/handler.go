// Package ws implements the WebSocket adapter that streams ledger events to
// connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/agentledger/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// writeTimeout bounds a single write so one slow client cannot stall others.
const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection and the event families it wants.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	topics []string // empty means all
}

// wants reports whether an event of eventType should go to this client.
func (c *conn) wants(eventType string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, t := range c.topics {
		if eventType == t || strings.HasPrefix(eventType, t+".") {
			return true
		}
	}
	return false
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	allowedOrigins []string
}

// NewHub creates a hub. allowedOrigins are host patterns accepted for
// cross-origin upgrades; empty accepts same-origin requests only.
func NewHub(allowedOrigins ...string) *Hub {
	return &Hub{
		conns:          make(map[*conn]struct{}),
		allowedOrigins: allowedOrigins,
	}
}

// HandleWS upgrades the request to a WebSocket. The optional "topics" query
// parameter is a comma-separated list of event families, e.g.
// "escrow,acquisition" or "wallet.tier_changed".
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, cancel: cancel, topics: parseTopics(r.URL.Query().Get("topics"))}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "topics", c.topics)

	// Read loop detects disconnects; clients do not send anything meaningful.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.HandleWS(w, r) }

func parseTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Broadcast sends a message to every connected client subscribed to its type.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.wants(msg.Type) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
			_ = c.ws.Close(websocket.StatusPolicyViolation, "write failed")
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}

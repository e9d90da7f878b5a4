package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mindlens/mindlens/internal/lens"
)

var upgrader = websocket.Upgrader{
	// The hub only pushes notifications; origin policy belongs to the route
	// layer in front of it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is a websocket Sink broadcasting changelog events to all connected
// clients. Slow clients are dropped rather than allowed to block a publish.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Publish implements Sink. Marshaling failures and full client buffers are
// logged and otherwise ignored - delivery is best-effort.
func (h *Hub) Publish(_ context.Context, event lens.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal changelog event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			// Client can't keep up - drop it.
			slog.Warn("dropping slow websocket client")
			close(send)
			delete(h.clients, conn)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket", "error", err)
		return
	}

	send := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	slog.Info("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[conn]; ok {
			close(send)
			delete(h.clients, conn)
		}
		h.mu.Unlock()
		conn.Close()
		slog.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	// Reader goroutine: the hub never consumes client messages, but reading
	// is required to notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// ClientCount returns the number of connected clients. For tests and the
// serve command's status output.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

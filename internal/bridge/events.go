package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/requill/requill/internal/export"
)

// Event types pushed to UI clients.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// Event is one message on the event socket.
type Event struct {
	Type       string               `json:"type"`
	ID         string               `json:"id"`
	Method     string               `json:"method,omitempty"`
	URL        string               `json:"url,omitempty"`
	StatusCode int                  `json:"status_code,omitempty"`
	DurationMs int64                `json:"duration_ms,omitempty"`
	Code       string               `json:"code,omitempty"`
	Message    string               `json:"message,omitempty"`
	Response   *export.FullResponse `json:"response,omitempty"`
}

// eventHub fans events out to connected websocket clients.
type eventHub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newEventHub(logger *zap.Logger) *eventHub {
	return &eventHub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// handleEvents upgrades the connection and parks it in the hub until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("event socket accept", zap.Error(err))
		return
	}

	s.hub.add(conn)
	defer s.hub.remove(conn)

	// The socket is push-only; the read loop exists to notice the close.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *eventHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *eventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
	conn.Close(websocket.StatusNormalClosure, "")
}

// broadcast sends an event to every connected client. A client that
// cannot be written to is dropped.
func (h *eventHub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encoding event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			delete(h.conns, conn)
			conn.Close(websocket.StatusAbnormalClosure, "write failed")
		}
		cancel()
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.conns, conn)
	}
}

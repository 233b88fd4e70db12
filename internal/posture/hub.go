package posture

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// Message is the envelope every frame sent to a dashboard client
// carries.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans synthesized threats out to every connected dashboard
// client over a websocket, implementing correlation.OutputPublisher so
// the correlation engine can target it as an outputDestinations[]
// entry of kind "websocket".
type Hub struct {
	broadcast chan Message

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Message

	log logger.Logger
}

// NewHub builds a Hub. Run must be started in its own goroutine for
// broadcasts to be delivered.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		broadcast: make(chan Message, 256),
		clients:   make(map[*websocket.Conn]chan Message),
		log:       log,
	}
}

// Run drains the broadcast channel and fans each message out to every
// connected client, until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for _, out := range h.clients {
				select {
				case out <- msg:
				default:
					// Slow client: drop the frame rather than block the hub.
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements correlation.OutputPublisher.
func (h *Hub) Publish(ctx context.Context, threat *domain.UnifiedThreat) error {
	select {
	case h.broadcast <- Message{Type: "threat.detected", Data: threat}:
	default:
		h.log.Warn("websocket hub broadcast buffer full, dropping threat", "correlationId", threat.CorrelationID)
	}
	return nil
}

// HandleWebSocket upgrades r and registers the connection until it
// disconnects or ctx is canceled.
func (h *Hub) HandleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan Message, 32)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go h.readPump(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames (this stream is server-to-client
// only) but must keep reading so pings/closes are observed.
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount reports the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

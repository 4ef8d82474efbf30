// Package events pushes engine events (camera status changes, confirmed
// violations, issued strikes) to subscribed presentation clients over
// websockets. The engine never blocks on a slow viewer.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the envelope broadcast to subscribers.
type Event struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

const (
	KindCameraStatus = "camera_status"
	KindViolation    = "violation"
	KindStrike       = "strike"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Hub struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades a presentation client and keeps it registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("viewer connected", "total", total)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Viewers only listen; reads just detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast fans the event out to every connected client. Clients that fail
// a write are dropped.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(Event{Kind: kind, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		h.log.Errorw("marshal event", "kind", kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warnw("dropping slow viewer", "error", err)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// ClientCount reports connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

package realtime

import (
	"sync"

	"kindred/internal/models"
)

const (
	FrameChatStarted     = "chat_started"
	FrameMessageReceived = "message_received"
)

// Frame is the envelope pushed to connected clients.
type Frame struct {
	Event   string              `json:"event"`
	Chat    *models.StartChat   `json:"chat,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
}

// EventConn is the transport the hub pushes frames on. *Conn satisfies
// it; tests substitute recorders.
type EventConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub tracks the live connections of each user. A user may hold several
// at once (one per device); all of them are targeted on push. Users
// with no connection are simply not in the map.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[EventConn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		users: make(map[string]map[EventConn]struct{}),
	}
}

func (h *Hub) Register(userID string, conn EventConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[EventConn]struct{})
	}
	h.users[userID][conn] = struct{}{}
}

func (h *Hub) Unregister(userID string, conn EventConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	_ = conn.Close()
}

// Send writes the frame to every live connection of every listed user.
// Write errors are ignored: a broken socket discovers itself on the
// reader side and gets unregistered there.
func (h *Hub) Send(userIDs []string, frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		for conn := range h.users[userID] {
			_ = conn.WriteJSON(frame)
		}
	}
}

package events

import (
	"time"

	"github.com/google/uuid"

	"kindred/internal/models"
)

// Event types handed to the downstream processor.
const (
	TypeChatStarted = "chat.started"
	TypeMessageSent = "chat.message_sent"
	TypeChatRenamed = "chat.renamed"
)

// Event is the envelope written to the bus. Exactly one of the payload
// fields is set, matching Type.
type Event struct {
	Type       string    `json:"type"`
	ChatID     uuid.UUID `json:"chat_id"`
	OccurredAt time.Time `json:"occurred_at"`

	Chat    *models.StartChat   `json:"chat,omitempty"`
	Message *models.ChatMessage `json:"message,omitempty"`
	Rename  *models.SetChatName `json:"rename,omitempty"`
}

func ChatStarted(chat *models.StartChat) Event {
	return Event{Type: TypeChatStarted, ChatID: chat.ID, OccurredAt: time.Now().UTC(), Chat: chat}
}

func MessageSent(msg *models.ChatMessage) Event {
	return Event{Type: TypeMessageSent, ChatID: msg.ChatID, OccurredAt: time.Now().UTC(), Message: msg}
}

func ChatRenamed(rename *models.SetChatName) Event {
	return Event{Type: TypeChatRenamed, ChatID: rename.ChatID, OccurredAt: time.Now().UTC(), Rename: rename}
}

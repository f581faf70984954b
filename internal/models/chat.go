package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a durable conversation with a fixed initial recipient set.
// DisplayName is nil when the client derives a name from the recipients.
type Chat struct {
	ID            uuid.UUID `json:"id"`
	DisplayName   *string   `json:"display_name"`
	Recipients    []string  `json:"recipients"`
	LastMessageAt time.Time `json:"last_message_at"`
	StartedAt     time.Time `json:"started_at"`
}

// ChatSummary is one row of a user's chat list, annotated with the
// unread count computed for that user.
type ChatSummary struct {
	ID            uuid.UUID `json:"id"`
	DisplayName   *string   `json:"display_name"`
	Recipients    []string  `json:"recipients"`
	LastMessageAt time.Time `json:"last_message_at"`
	StartedAt     time.Time `json:"started_at"`
	UnreadCount   int       `json:"unread_count"`
}

// ChatMessage is immutable once stored. The ID is minted by the client
// so that retries collide on the primary key instead of duplicating.
type ChatMessage struct {
	ID            uuid.UUID `json:"id"`
	ChatID        uuid.UUID `json:"chat_id"`
	SenderID      string    `json:"sender_id"`
	Text          string    `json:"text"`
	AttachmentURL *string   `json:"attachment_url"`
	SentAt        time.Time `json:"sent_at"`
}

// UnreadMessage marks one message in one chat as unseen by one recipient.
// The count of these rows is the unread badge; it is never cached.
type UnreadMessage struct {
	ID            int64     `json:"id"`
	ChatID        uuid.UUID `json:"chat_id"`
	RecipientID   string    `json:"recipient_id"`
	MessageSentAt time.Time `json:"message_sent_at"`
}

// UserChat materializes chat membership so recipient resolution does not
// re-read the chat row.
type UserChat struct {
	ChatID uuid.UUID `json:"chat_id"`
	UserID string    `json:"user_id"`
}

// StartChat is the payload of the start-chat operation: the chat to
// create, its full recipient set and the initial message batch.
type StartChat struct {
	ID          uuid.UUID     `json:"id"`
	InitiatorID string        `json:"initiator_id"`
	DisplayName *string       `json:"display_name"`
	Recipients  []string      `json:"recipients"`
	Messages    []ChatMessage `json:"messages"`
	StartedAt   time.Time     `json:"started_at"`
}

// SetChatName asks for a chat rename; the rename itself is applied by
// the downstream event consumer.
type SetChatName struct {
	ChatID uuid.UUID `json:"chat_id"`
	Name   string    `json:"name"`
}

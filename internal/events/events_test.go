package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/models"
)

func TestEventConstructorsStampTypeAndChat(t *testing.T) {
	chat := &models.StartChat{ID: uuid.New(), InitiatorID: "u1", Recipients: []string{"u1", "u2"}}
	msg := &models.ChatMessage{ID: uuid.New(), ChatID: uuid.New(), SenderID: "u1", Text: "hi", SentAt: time.Now().UTC()}
	rename := &models.SetChatName{ChatID: uuid.New(), Name: "new name"}

	started := ChatStarted(chat)
	assert.Equal(t, TypeChatStarted, started.Type)
	assert.Equal(t, chat.ID, started.ChatID)
	assert.NotNil(t, started.Chat)

	sent := MessageSent(msg)
	assert.Equal(t, TypeMessageSent, sent.Type)
	assert.Equal(t, msg.ChatID, sent.ChatID)
	assert.NotNil(t, sent.Message)

	renamed := ChatRenamed(rename)
	assert.Equal(t, TypeChatRenamed, renamed.Type)
	assert.Equal(t, rename.ChatID, renamed.ChatID)
	assert.NotNil(t, renamed.Rename)
}

func TestEventEnvelopeOmitsUnusedPayloads(t *testing.T) {
	msg := &models.ChatMessage{ID: uuid.New(), ChatID: uuid.New(), SenderID: "u1", Text: "hi"}
	raw, err := json.Marshal(MessageSent(msg))
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "message")
	assert.NotContains(t, decoded, "chat")
	assert.NotContains(t, decoded, "rename")
}

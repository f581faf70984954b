package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kindred/internal/events"
	"kindred/internal/logger"
	"kindred/internal/models"
	"kindred/internal/realtime"
	"kindred/internal/repositories"
)

var (
	// ErrUnauthorized covers both "not yours" and "does not exist" so
	// callers cannot probe for chats they are not part of.
	ErrUnauthorized  = errors.New("not authorized for this chat operation")
	ErrNotChatMember = errors.New("user is not a member of this chat")

	// ErrInvalidInput marks a malformed payload, as opposed to an
	// infrastructure failure a client could retry.
	ErrInvalidInput = errors.New("invalid request")

	ErrDuplicateChat    = errors.New("chat already started")
	ErrDuplicateMessage = errors.New("message already sent")
	ErrSenderMismatch   = errors.New("message sender is not the authenticated user")
	ErrNothingUnread    = errors.New("no unread messages to mark")
	ErrChatNotFound     = errors.New("chat not found")
)

// pushTimeout bounds the best-effort stages that run after commit. The
// caller's context is not used there: cancelling a request after its
// transaction committed must not be able to suppress the result, only
// the accelerants.
const pushTimeout = 5 * time.Second

type ChatService interface {
	ListChats(ctx context.Context, callerID, userID string, skip, take int) ([]*models.ChatSummary, error)
	ListMessages(ctx context.Context, callerID string, chatID uuid.UUID, skip, take int) ([]*models.ChatMessage, error)
	StartChat(ctx context.Context, callerID string, chat *models.StartChat) (uuid.UUID, error)
	SendMessage(ctx context.Context, callerID string, msg *models.ChatMessage) error
	MarkRead(ctx context.Context, callerID string, chatID uuid.UUID) error
	RenameChat(ctx context.Context, rename *models.SetChatName) error
	FindExistingChat(ctx context.Context, callerID string, userIDs []string) (uuid.UUID, error)
}

// chatService is the write-and-delivery pipeline: guard, then one store
// transaction, then best-effort push and publish. Once the transaction
// commits the operation has succeeded; nothing downstream can fail it.
type chatService struct {
	log        *logger.Logger
	repo       repositories.ChatRepository
	dispatcher *realtime.Dispatcher
	publisher  events.Publisher
}

func NewChatService(log *logger.Logger, repo repositories.ChatRepository, dispatcher *realtime.Dispatcher, publisher events.Publisher) ChatService {
	return &chatService{
		log:        log.With("service", "ChatService"),
		repo:       repo,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

func (s *chatService) ListChats(ctx context.Context, callerID, userID string, skip, take int) ([]*models.ChatSummary, error) {
	if callerID != userID {
		return nil, ErrUnauthorized
	}
	return s.repo.ListUserChats(ctx, userID, skip, take)
}

func (s *chatService) ListMessages(ctx context.Context, callerID string, chatID uuid.UUID, skip, take int) ([]*models.ChatMessage, error) {
	ok, err := s.repo.IsMember(ctx, chatID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Missing chat and foreign chat answer identically.
		return nil, ErrNotChatMember
	}
	return s.repo.ListMessages(ctx, chatID, skip, take)
}

func (s *chatService) StartChat(ctx context.Context, callerID string, chat *models.StartChat) (uuid.UUID, error) {
	if chat.ID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	if len(chat.Recipients) == 0 {
		return uuid.Nil, fmt.Errorf("%w: recipients are required", ErrInvalidInput)
	}
	if !contains(chat.Recipients, callerID) || !contains(chat.Recipients, chat.InitiatorID) {
		return uuid.Nil, ErrUnauthorized
	}
	if chat.StartedAt.IsZero() {
		chat.StartedAt = time.Now().UTC()
	}
	for i := range chat.Messages {
		if chat.Messages[i].Text == "" {
			return uuid.Nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
		}
		chat.Messages[i].ChatID = chat.ID
		if chat.Messages[i].SentAt.IsZero() {
			chat.Messages[i].SentAt = chat.StartedAt
		}
	}

	if err := s.repo.StartChat(ctx, chat); err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateChat):
			return uuid.Nil, ErrDuplicateChat
		case errors.Is(err, repositories.ErrDuplicateMessage):
			return uuid.Nil, ErrDuplicateMessage
		}
		return uuid.Nil, err
	}

	// Committed. Everything below is best-effort.
	pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	s.dispatcher.Push(pushCtx, chat.Recipients, realtime.Frame{
		Event: realtime.FrameChatStarted,
		Chat:  chat,
	})
	if err := s.publisher.Publish(pushCtx, events.ChatStarted(chat)); err != nil {
		s.log.Error("publish chat started failed", "chat_id", chat.ID, "error", err)
	}
	return chat.ID, nil
}

func (s *chatService) SendMessage(ctx context.Context, callerID string, msg *models.ChatMessage) error {
	if msg.ID == uuid.Nil || msg.ChatID == uuid.Nil {
		return fmt.Errorf("%w: message and chat ids are required", ErrInvalidInput)
	}
	if msg.Text == "" {
		return fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	if msg.SenderID != callerID {
		return ErrSenderMismatch
	}
	ok, err := s.repo.IsMember(ctx, msg.ChatID, callerID)
	if err != nil {
		return err
	}
	if !ok {
		// Non-members cannot write, and missing chats answer the same.
		return ErrNotChatMember
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	members, err := s.repo.InsertMessage(ctx, msg)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateMessage):
			return ErrDuplicateMessage
		case errors.Is(err, repositories.ErrChatNotFound):
			return ErrChatNotFound
		}
		return err
	}

	// All members are targeted, the sender included: their other
	// devices want the echo too.
	pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	s.dispatcher.Push(pushCtx, members, realtime.Frame{
		Event:   realtime.FrameMessageReceived,
		Message: msg,
	})
	if err := s.publisher.Publish(pushCtx, events.MessageSent(msg)); err != nil {
		s.log.Error("publish message sent failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (s *chatService) MarkRead(ctx context.Context, callerID string, chatID uuid.UUID) error {
	deleted, err := s.repo.MarkRead(ctx, chatID, callerID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNothingUnread
	}
	return nil
}

func (s *chatService) RenameChat(ctx context.Context, rename *models.SetChatName) error {
	exists, err := s.repo.ChatExists(ctx, rename.ChatID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrChatNotFound
	}

	// The rename itself is applied by the downstream consumer; this
	// operation only validates and hands the event off.
	pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := s.publisher.Publish(pushCtx, events.ChatRenamed(rename)); err != nil {
		s.log.Error("publish chat renamed failed", "chat_id", rename.ChatID, "error", err)
	}
	return nil
}

func (s *chatService) FindExistingChat(ctx context.Context, callerID string, userIDs []string) (uuid.UUID, error) {
	if !contains(userIDs, callerID) {
		return uuid.Nil, ErrChatNotFound
	}
	chatID, found, err := s.repo.FindChatByRecipients(ctx, userIDs)
	if err != nil {
		return uuid.Nil, err
	}
	if !found {
		return uuid.Nil, ErrChatNotFound
	}
	return chatID, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

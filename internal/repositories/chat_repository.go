package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kindred/internal/models"
)

var (
	// ErrDuplicateChat is returned when the caller-supplied chat id
	// already exists. A retried start-chat request lands here.
	ErrDuplicateChat = errors.New("chat id already exists")
	// ErrDuplicateMessage is the same collision for message ids.
	ErrDuplicateMessage = errors.New("message id already exists")
	// ErrChatNotFound is returned when an operation targets a chat
	// that was never created.
	ErrChatNotFound = errors.New("chat does not exist")
)

type ChatRepository interface {
	// StartChat creates the chat, its initial messages, the unread
	// rows for every recipient except the initiator, and the
	// membership rows — all in one transaction.
	StartChat(ctx context.Context, chat *models.StartChat) error

	// InsertMessage stores the message, fans out unread rows to every
	// member except the sender and bumps the chat's last-message
	// timestamp to the server clock, all in one transaction. Returns
	// the full membership so the caller can push without re-querying.
	InsertMessage(ctx context.Context, msg *models.ChatMessage) ([]string, error)

	// MarkRead deletes every unread row for the (chat, recipient)
	// pair and reports how many were deleted.
	MarkRead(ctx context.Context, chatID uuid.UUID, recipientID string) (int64, error)

	ListUserChats(ctx context.Context, userID string, skip, take int) ([]*models.ChatSummary, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, skip, take int) ([]*models.ChatMessage, error)

	// IsMember reports whether userID belongs to the chat. A chat that
	// does not exist yields false, not an error, so callers cannot
	// tell absent chats from foreign ones.
	IsMember(ctx context.Context, chatID uuid.UUID, userID string) (bool, error)

	ChatExists(ctx context.Context, chatID uuid.UUID) (bool, error)

	// FindChatByRecipients looks for a chat whose membership is
	// exactly the given user set.
	FindChatByRecipients(ctx context.Context, userIDs []string) (uuid.UUID, bool, error)
}

type chatRepository struct {
	DB *sql.DB
}

func NewChatRepository(db *sql.DB) ChatRepository {
	return &chatRepository{DB: db}
}

func (r *chatRepository) StartChat(ctx context.Context, chat *models.StartChat) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin start-chat tx: %w", err)
	}
	defer tx.Rollback()

	const insertChat = `
                INSERT INTO chats (id, display_name, started_at, last_message_at)
                VALUES ($1, $2, $3, $3)
        `
	if _, err := tx.ExecContext(ctx, insertChat, chat.ID, chat.DisplayName, chat.StartedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateChat
		}
		return fmt.Errorf("insert chat: %w", err)
	}

	const insertMessage = `
                INSERT INTO chat_messages (id, chat_id, sender_id, text, attachment_url, sent_at)
                VALUES ($1, $2, $3, $4, $5, $6)
        `
	const insertUnread = `
                INSERT INTO unread_messages (chat_id, recipient_id, message_sent_at)
                VALUES ($1, $2, $3)
        `
	for _, msg := range chat.Messages {
		if _, err := tx.ExecContext(ctx, insertMessage,
			msg.ID, chat.ID, msg.SenderID, msg.Text, msg.AttachmentURL, msg.SentAt); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMessage
			}
			return fmt.Errorf("insert initial message: %w", err)
		}
		for _, recipient := range chat.Recipients {
			if recipient == chat.InitiatorID {
				continue
			}
			if _, err := tx.ExecContext(ctx, insertUnread, chat.ID, recipient, msg.SentAt); err != nil {
				return fmt.Errorf("insert unread row: %w", err)
			}
		}
	}

	const insertMember = `
                INSERT INTO user_chats (chat_id, user_id)
                VALUES ($1, $2)
        `
	for _, recipient := range chat.Recipients {
		if _, err := tx.ExecContext(ctx, insertMember, chat.ID, recipient); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit start-chat tx: %w", err)
	}
	return nil
}

func (r *chatRepository) InsertMessage(ctx context.Context, msg *models.ChatMessage) ([]string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin send-message tx: %w", err)
	}
	defer tx.Rollback()

	const insertMessage = `
                INSERT INTO chat_messages (id, chat_id, sender_id, text, attachment_url, sent_at)
                VALUES ($1, $2, $3, $4, $5, $6)
        `
	if _, err := tx.ExecContext(ctx, insertMessage,
		msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.AttachmentURL, msg.SentAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateMessage
		}
		if isForeignKeyViolation(err) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Fan the unread rows out in a single statement so two concurrent
	// sends cannot lose each other's inserts.
	const fanOutUnread = `
                INSERT INTO unread_messages (chat_id, recipient_id, message_sent_at)
                SELECT uc.chat_id, uc.user_id, $3
                FROM user_chats uc
                WHERE uc.chat_id = $1 AND uc.user_id <> $2
        `
	if _, err := tx.ExecContext(ctx, fanOutUnread, msg.ChatID, msg.SenderID, msg.SentAt); err != nil {
		return nil, fmt.Errorf("insert unread rows: %w", err)
	}

	// Server clock, not the client-stamped send time: list recency
	// must not follow skewed client clocks.
	const touchChat = `
                UPDATE chats SET last_message_at = now() WHERE id = $1
        `
	if _, err := tx.ExecContext(ctx, touchChat, msg.ChatID); err != nil {
		return nil, fmt.Errorf("update last message time: %w", err)
	}

	const selectMembers = `
                SELECT user_id FROM user_chats WHERE chat_id = $1
        `
	rows, err := tx.QueryContext(ctx, selectMembers, msg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit send-message tx: %w", err)
	}
	return members, nil
}

func (r *chatRepository) MarkRead(ctx context.Context, chatID uuid.UUID, recipientID string) (int64, error) {
	const q = `
                DELETE FROM unread_messages WHERE chat_id = $1 AND recipient_id = $2
        `
	res, err := r.DB.ExecContext(ctx, q, chatID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete unread rows: %w", err)
	}
	return res.RowsAffected()
}

func (r *chatRepository) ListUserChats(ctx context.Context, userID string, skip, take int) ([]*models.ChatSummary, error) {
	// seq keeps equal last_message_at rows in a fixed order so OFFSET
	// pages do not duplicate or skip across ties.
	const q = `
                SELECT c.id, c.display_name, c.started_at, c.last_message_at,
                       COALESCE(array_agg(uc.user_id ORDER BY uc.user_id), '{}') AS recipients,
                       (SELECT COUNT(*) FROM unread_messages um
                        WHERE um.chat_id = c.id AND um.recipient_id = $1) AS unread_count
                FROM chats c
                JOIN user_chats uc ON uc.chat_id = c.id
                WHERE c.id IN (SELECT chat_id FROM user_chats WHERE user_id = $1)
                GROUP BY c.id
                ORDER BY c.last_message_at DESC, c.seq DESC
                OFFSET $2 LIMIT $3
        `
	rows, err := r.DB.QueryContext(ctx, q, userID, skip, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.ChatSummary
	for rows.Next() {
		chat := &models.ChatSummary{}
		var recipients pq.StringArray
		if err := rows.Scan(&chat.ID, &chat.DisplayName, &chat.StartedAt,
			&chat.LastMessageAt, &recipients, &chat.UnreadCount); err != nil {
			return nil, err
		}
		chat.Recipients = recipients
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID uuid.UUID, skip, take int) ([]*models.ChatMessage, error) {
	// Oldest first; seq breaks ties between equal client timestamps in
	// insertion order.
	const q = `
                SELECT id, chat_id, sender_id, text, attachment_url, sent_at
                FROM chat_messages
                WHERE chat_id = $1
                ORDER BY sent_at ASC, seq ASC
                OFFSET $2 LIMIT $3
        `
	rows, err := r.DB.QueryContext(ctx, q, chatID, skip, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID,
			&msg.Text, &msg.AttachmentURL, &msg.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (r *chatRepository) IsMember(ctx context.Context, chatID uuid.UUID, userID string) (bool, error) {
	const q = `
                SELECT 1 FROM user_chats WHERE chat_id = $1 AND user_id = $2 LIMIT 1
        `
	var dummy int
	err := r.DB.QueryRowContext(ctx, q, chatID, userID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *chatRepository) ChatExists(ctx context.Context, chatID uuid.UUID) (bool, error) {
	const q = `
                SELECT 1 FROM chats WHERE id = $1
        `
	var dummy int
	err := r.DB.QueryRowContext(ctx, q, chatID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *chatRepository) FindChatByRecipients(ctx context.Context, userIDs []string) (uuid.UUID, bool, error) {
	const q = `
                SELECT uc.chat_id
                FROM user_chats uc
                GROUP BY uc.chat_id
                HAVING COUNT(*) = cardinality($1::text[])
                   AND COUNT(*) FILTER (WHERE uc.user_id = ANY($1)) = COUNT(*)
                LIMIT 1
        `
	var chatID uuid.UUID
	err := r.DB.QueryRowContext(ctx, q, pq.Array(userIDs)).Scan(&chatID)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return chatID, true, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

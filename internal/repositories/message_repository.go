package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID, receiverID int, body string, attachment []byte, attachmentName string) (models.Message, error)
	EditMessage(ctx context.Context, messageID int, body string, attachment []byte, attachmentName string) (models.Message, error)
	MarkMessageDeleted(ctx context.Context, messageID int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, chatID int) ([]models.Message, error)
	LatestMessage(ctx context.Context, chatID int) (*models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, receiver_id, body, attachment, attachment_name, edited, deleted, created_at`

// CreateMessage stores a message and bumps the chat's activity ordering key.
// A new message also clears the chat's read mark and revives a soft-deleted
// chat for both participants.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID, receiverID int, body string, attachment []byte, attachmentName string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, receiver_id, body, attachment, attachment_name)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		chatID, senderID, receiverID, body, attachment, attachmentName).
		StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE chats SET last_activity=NOW(), is_read=FALSE, deleted=FALSE WHERE id=$1`, chatID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// EditMessage replaces body and attachment and sets the edited flag. The id,
// author, chat and creation timestamp are untouched.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, body string, attachment []byte, attachmentName string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET body=$2, attachment=$3, attachment_name=$4, edited=TRUE
        WHERE id=$1 RETURNING `+messageColumns,
		messageID, body, attachment, attachmentName).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkMessageDeleted soft-deletes the message; the row remains fetchable.
func (r *MessageRepo) MarkMessageDeleted(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET deleted=TRUE WHERE id=$1 RETURNING `+messageColumns, messageID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessage retrieves a single message regardless of its deleted flag.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns the non-deleted messages of a chat in creation order.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE chat_id=$1 AND deleted = FALSE
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, chatID)
	return msgs, err
}

// LatestMessage returns the newest visible message of a chat, or nil when the
// chat has none.
func (r *MessageRepo) LatestMessage(ctx context.Context, chatID int) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND deleted = FALSE
        ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

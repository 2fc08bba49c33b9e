package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userID int, friendID int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	ListChats(ctx context.Context, userID int) ([]models.Chat, error)
	MarkChatRead(ctx context.Context, chatID int) (models.Chat, error)
	MarkChatDeleted(ctx context.Context, chatID int) (models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, is_read, deleted, last_activity, created_at`

// CreateOrGetChat creates a chat between two users if it does not already
// exist. Repeated calls for the same pair return the same row.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userID int, friendID int) (models.Chat, error) {
	if userID == friendID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	participants := []int{userID, friendID}
	sort.Ints(participants)
	user1, user2 := participants[0], participants[1]

	var chat models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats WHERE user1_id=$1 AND user2_id=$2`
	if err := r.db.GetContext(ctx, &chat, query, user1, user2); err != nil {
		if err != sql.ErrNoRows {
			return models.Chat{}, err
		}
		if err := r.db.QueryRowxContext(ctx, `INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2) RETURNING `+chatColumns, user1, user2).
			StructScan(&chat); err != nil {
			return models.Chat{}, err
		}
	}
	return chat, nil
}

// GetChat fetches a chat by id regardless of its soft marks.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChats returns non-deleted chats of the user ordered by last activity.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE (user1_id=$1 OR user2_id=$1) AND deleted = FALSE
        ORDER BY last_activity DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// MarkChatRead sets the read mark and returns the updated row.
func (r *ChatRepo) MarkChatRead(ctx context.Context, chatID int) (models.Chat, error) {
	return r.mark(ctx, chatID, `UPDATE chats SET is_read=TRUE WHERE id=$1 RETURNING `+chatColumns)
}

// MarkChatDeleted soft-deletes the chat and returns the updated row.
func (r *ChatRepo) MarkChatDeleted(ctx context.Context, chatID int) (models.Chat, error) {
	return r.mark(ctx, chatID, `UPDATE chats SET deleted=TRUE WHERE id=$1 RETURNING `+chatColumns)
}

func (r *ChatRepo) mark(ctx context.Context, chatID int, query string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.QueryRowxContext(ctx, query, chatID).StructScan(&chat)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

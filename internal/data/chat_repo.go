package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/loomchat/loom-api/internal/domain/model"
)

// ErrChatNotFound is returned when a chat does not exist in the tenant.
var ErrChatNotFound = errors.New("chat not found")

// ChatRepo provides database operations for chats and chat messages.
type ChatRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewChatRepo creates a new ChatRepo.
func NewChatRepo(db *sql.DB, tp TimeProvider) *ChatRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ChatRepo{DB: db, timeProvider: tp}
}

const chatColumns = `id, tenant_id, owner_user_id, title, last_message_at, created_at`

// ListChats lists the chats owned by a user in a tenant, most recent activity first.
func (r *ChatRepo) ListChats(ctx context.Context, tenantID, ownerUserID string) ([]model.Chat, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE tenant_id = $1 AND owner_user_id = $2
		ORDER BY last_message_at DESC
	`, tenantID, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if scanErr := rows.Scan(&c.ID, &c.TenantID, &c.OwnerUserID, &c.Title, &c.LastMessageAt, &c.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan chat: %w", scanErr)
		}
		chats = append(chats, c)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate chats: %w", rowsErr)
	}
	return chats, nil
}

// CreateChat inserts a new chat and returns the stored row.
func (r *ChatRepo) CreateChat(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	if chat == nil {
		return nil, errors.New("chat is required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO chats(id, tenant_id, owner_user_id, title, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+chatColumns,
		uuid.NewString(), chat.TenantID, chat.OwnerUserID, chat.Title, now,
	)

	var created model.Chat
	if err := row.Scan(&created.ID, &created.TenantID, &created.OwnerUserID, &created.Title, &created.LastMessageAt, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &created, nil
}

// GetChat fetches a chat scoped to its tenant.
func (r *ChatRepo) GetChat(ctx context.Context, tenantID, chatID string) (*model.Chat, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, chatID)

	var c model.Chat
	if err := row.Scan(&c.ID, &c.TenantID, &c.OwnerUserID, &c.Title, &c.LastMessageAt, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &c, nil
}

// ListMessages lists the most recent messages in a chat, oldest first.
func (r *ChatRepo) ListMessages(ctx context.Context, chatID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, body, created_at
		FROM (
			SELECT id, chat_id, sender_id, body, created_at
			FROM chat_messages
			WHERE chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if scanErr := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan chat message: %w", scanErr)
		}
		msgs = append(msgs, m)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", rowsErr)
	}
	return msgs, nil
}

// AppendMessage inserts a message and bumps the chat's last_message_at.
func (r *ChatRepo) AppendMessage(ctx context.Context, msg *model.ChatMessage) (*model.ChatMessage, error) {
	if msg == nil {
		return nil, errors.New("message is required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO chat_messages(id, chat_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, chat_id, sender_id, body, created_at
	`, uuid.NewString(), msg.ChatID, msg.SenderID, msg.Body, now)

	var created model.ChatMessage
	if err := row.Scan(&created.ID, &created.ChatID, &created.SenderID, &created.Body, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE chats SET last_message_at = $2 WHERE id = $1
	`, msg.ChatID, now); err != nil {
		return nil, fmt.Errorf("bump chat activity: %w", err)
	}

	return &created, nil
}

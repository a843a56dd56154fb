package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomchat/loom-api/internal/core"
	"github.com/loomchat/loom-api/internal/data"
	"github.com/loomchat/loom-api/internal/domain/model"
	apperrors "github.com/loomchat/loom-api/internal/errors"
)

// ChatServiceOptions groups dependencies for ChatService.
type ChatServiceOptions struct {
	Repo   core.ChatRepository // Required
	Logger *slog.Logger        // Optional
}

// ChatService provides the chat feature's thin CRUD on top of the repo.
type ChatService struct {
	repo   core.ChatRepository
	logger *slog.Logger
}

// NewChatService constructs a new ChatService.
func NewChatService(opts ChatServiceOptions) (*ChatService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ChatRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "chat_service")
	}
	return &ChatService{repo: opts.Repo, logger: logger}, nil
}

// List returns the caller's chats, most recently active first.
func (s *ChatService) List(ctx context.Context, tenantID, userID string) ([]model.Chat, error) {
	chats, err := s.repo.ListChats(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", apperrors.MapDBError(err))
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return chats, nil
}

// Start creates a new chat for the caller.
func (s *ChatService) Start(ctx context.Context, tenantID, userID, title string) (*model.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New chat"
	}

	chat, err := s.repo.CreateChat(ctx, &model.Chat{
		TenantID:    tenantID,
		OwnerUserID: userID,
		Title:       title,
	})
	if err != nil {
		return nil, fmt.Errorf("start chat: %w", apperrors.MapDBError(err))
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "chat started", "chat_id", chat.ID, "tenant", tenantID)
	}
	return chat, nil
}

// Messages lists a chat's messages after checking the caller owns the chat.
func (s *ChatService) Messages(ctx context.Context, tenantID, userID, chatID string, limit int) ([]model.ChatMessage, error) {
	if _, err := s.authorizeChat(ctx, tenantID, userID, chatID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", apperrors.MapDBError(err))
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return msgs, nil
}

// Post appends a message to a chat owned by the caller.
func (s *ChatService) Post(ctx context.Context, tenantID, userID, chatID, body string) (*model.ChatMessage, error) {
	if err := model.ValidateChatMessageBody(body); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if _, err := s.authorizeChat(ctx, tenantID, userID, chatID); err != nil {
		return nil, err
	}

	msg, err := s.repo.AppendMessage(ctx, &model.ChatMessage{
		ChatID:   chatID,
		SenderID: userID,
		Body:     body,
	})
	if err != nil {
		return nil, fmt.Errorf("post message: %w", apperrors.MapDBError(err))
	}
	return msg, nil
}

func (s *ChatService) authorizeChat(ctx context.Context, tenantID, userID, chatID string) (*model.Chat, error) {
	chat, err := s.repo.GetChat(ctx, tenantID, chatID)
	if err != nil {
		if errors.Is(err, data.ErrChatNotFound) {
			return nil, apperrors.NotFound("chat not found")
		}
		return nil, fmt.Errorf("load chat: %w", apperrors.MapDBError(err))
	}
	if chat.OwnerUserID != userID {
		// Hide other tenants' chats rather than acknowledging them.
		return nil, apperrors.NotFound("chat not found")
	}
	return chat, nil
}

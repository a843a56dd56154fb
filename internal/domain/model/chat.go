package model

import (
	"errors"
	"strings"
	"time"
)

// Chat is one conversation owned by a user within a tenant.
type Chat struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	OwnerUserID   string    `json:"ownerUserId"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ChatMessage is a single message inside a chat.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

const maxChatMessageLen = 8000

// ValidateChatMessageBody rejects empty or oversized message bodies.
func ValidateChatMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("message body is required")
	}
	if len(body) > maxChatMessageLen {
		return errors.New("message body exceeds maximum length")
	}
	return nil
}

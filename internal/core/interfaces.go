// Package core defines the ports the loom services depend on. Repositories
// in internal/data and adapters satisfy these; mocks are generated from them.
package core

import (
	"context"
	"time"

	"github.com/loomchat/loom-api/internal/domain/auth"
	"github.com/loomchat/loom-api/internal/domain/model"
)

// OutboxRepository is the durable store behind the SMS outbox queue. All
// mutation is row-scoped; Claim is the only concurrency primitive the queue
// needs (update conditioned on the row's status at update time).
type OutboxRepository interface {
	// Enqueue inserts a new pending job and returns the stored row.
	Enqueue(ctx context.Context, req *model.EnqueueOutboxRequest) (*model.OutboxJob, error)

	// ExpireStaleAuth fails pending auth-context jobs created before the
	// cutoff, recording expired_before_dispatch. Returns rows affected.
	ExpireStaleAuth(ctx context.Context, cutoff time.Time) (int64, error)

	// ReclaimStale returns processing jobs whose claim predates the cutoff
	// to pending, clearing claimed_at/claimed_by. Returns rows affected.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	// ListClaimable lists pending jobs with next_attempt_at <= now, oldest
	// createdAt first.
	ListClaimable(ctx context.Context, now time.Time, limit int) ([]model.OutboxJob, error)

	// Claim attempts a compare-and-swap claim of a single pending job for
	// workerID, incrementing attempt_count. Returns (nil, nil) when the row
	// was no longer pending, i.e. a concurrent puller won the race.
	Claim(ctx context.Context, id, workerID string) (*model.OutboxJob, error)

	// MarkSent records terminal successful delivery.
	MarkSent(ctx context.Context, id string) error

	// Retry returns a job to pending with the given next attempt time and
	// diagnostic text.
	Retry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error

	// MarkExhausted records terminal failure after the attempt ceiling.
	MarkExhausted(ctx context.Context, id, lastError string) error

	// GetByID fetches a single job row.
	GetByID(ctx context.Context, id string) (*model.OutboxJob, error)

	// Stats counts jobs per status.
	Stats(ctx context.Context) (*model.OutboxStats, error)
}

// SessionStore persists server-side sessions keyed by opaque ID.
type SessionStore interface {
	Save(ctx context.Context, sess auth.Session) error
	Get(ctx context.Context, id string) (auth.Session, error)
	Delete(ctx context.Context, id string) error
}

// LoginCodeStore persists short-lived one-time login codes keyed by phone.
type LoginCodeStore interface {
	SaveCode(ctx context.Context, phoneE164, code string, ttl time.Duration) error
	// ConsumeCode fetches and deletes the stored code for phone, returning
	// "" when none exists.
	ConsumeCode(ctx context.Context, phoneE164 string) (string, error)
}

// ChatRepository is the store behind the chat feature's thin CRUD.
type ChatRepository interface {
	ListChats(ctx context.Context, tenantID, ownerUserID string) ([]model.Chat, error)
	CreateChat(ctx context.Context, chat *model.Chat) (*model.Chat, error)
	GetChat(ctx context.Context, tenantID, chatID string) (*model.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]model.ChatMessage, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) (*model.ChatMessage, error)
}

// Package mocks provides mock implementations for testing the loom backend.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// our repository interfaces. The mocks are generated using go:generate
// directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

// Generate mock for OutboxRepository interface from internal/core package.
// This creates MockOutboxRepository with methods for all OutboxRepository interface methods:
// Enqueue, ExpireStaleAuth, ReclaimStale, ListClaimable, Claim, MarkSent, Retry, MarkExhausted, GetByID, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=outbox_repository_mock.go github.com/loomchat/loom-api/internal/core OutboxRepository

// Generate mock for ChatRepository interface from internal/core package.
// This creates MockChatRepository with methods for all ChatRepository interface methods:
// ListChats, CreateChat, GetChat, ListMessages, AppendMessage
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=chat_repository_mock.go github.com/loomchat/loom-api/internal/core ChatRepository

// Package model contains the domain types shared across the loom backend.
package model

import (
	"errors"
	"time"
)

// OutboxStatus represents the delivery state of an outbox job.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the job is waiting to be claimed.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusProcessing indicates a worker currently holds a claim on the job.
	OutboxStatusProcessing OutboxStatus = "processing"
	// OutboxStatusSent indicates the job was delivered. Terminal.
	OutboxStatusSent OutboxStatus = "sent"
	// OutboxStatusFailed indicates the job expired or exhausted its attempts. Terminal.
	OutboxStatusFailed OutboxStatus = "failed"
)

// Valid returns true if the status is one of the recognized outbox states.
func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed:
		return true
	}
	return false
}

// Terminal returns true for states that permit no further mutation.
func (s OutboxStatus) Terminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusFailed
}

// ContextAuth tags time-sensitive one-time-code messages. Pending auth jobs
// older than the configured TTL are failed instead of dispatched.
const ContextAuth = "auth"

// ErrNoJobsClaimable is returned when no pending job is eligible for a claim.
var ErrNoJobsClaimable = errors.New("no outbox jobs claimable")

// Diagnostic strings recorded in last_error by the queue itself.
const (
	ErrTextExpiredBeforeDispatch = "expired_before_dispatch"
	ErrTextMaxAttemptsReached    = "max_attempts_reached"
	ErrTextDeliveryFailed        = "delivery_failed"
)

// OutboxJob is one row of the SMS outbox: a single message awaiting
// at-least-once delivery by an external sender worker.
type OutboxJob struct {
	ID            string       `json:"id"`
	PhoneE164     string       `json:"phoneE164"`
	Message       string       `json:"message"`
	Context       string       `json:"context"`
	Status        OutboxStatus `json:"status"`
	AttemptCount  int          `json:"attemptCount"`
	MaxAttempts   int          `json:"maxAttempts"`
	ClaimedAt     *time.Time   `json:"claimedAt,omitempty"`
	ClaimedBy     *string      `json:"claimedBy,omitempty"`
	NextAttemptAt time.Time    `json:"nextAttemptAt"`
	SentAt        *time.Time   `json:"sentAt,omitempty"`
	LastError     *string      `json:"lastError,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// EnqueueOutboxRequest carries the fields needed to create a pending job.
type EnqueueOutboxRequest struct {
	PhoneE164   string `json:"phoneE164"`
	Message     string `json:"message"`
	Context     string `json:"context"`
	MaxAttempts int    `json:"maxAttempts,omitempty"`
}

// Validate checks required enqueue fields before any store access.
func (r *EnqueueOutboxRequest) Validate() error {
	if r == nil {
		return errors.New("enqueue request is required")
	}
	if r.PhoneE164 == "" {
		return errors.New("phone number is required")
	}
	if r.Message == "" {
		return errors.New("message body is required")
	}
	return nil
}

// PulledJob is the worker-facing projection of a claimed job. Attempt is the
// post-increment attempt count for the claim that produced this batch entry.
type PulledJob struct {
	ID          string `json:"id"`
	PhoneE164   string `json:"phoneE164"`
	Message     string `json:"message"`
	Context     string `json:"context"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
}

// PullResult is the outcome of a single pull cycle.
type PullResult struct {
	Jobs     []PulledJob `json:"jobs"`
	Pulled   int         `json:"pulled"`
	WorkerID string      `json:"workerId"`
}

// AckOutcome reports how an acknowledged delivery attempt was resolved.
type AckOutcome struct {
	Status    OutboxStatus `json:"status"`
	Exhausted bool         `json:"exhausted,omitempty"`
	RetryInMs int64        `json:"retryInMs,omitempty"`
	RetryAt   *time.Time   `json:"retryAt,omitempty"`
}

// OutboxStats counts jobs per state, for operational visibility.
type OutboxStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

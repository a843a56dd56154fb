package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loomchat/loom-api/internal/core"
	"github.com/loomchat/loom-api/internal/data"
	"github.com/loomchat/loom-api/internal/domain/model"
	domainoutbox "github.com/loomchat/loom-api/internal/domain/outbox"
	apperrors "github.com/loomchat/loom-api/internal/errors"
)

const (
	// PullLimitMin and PullLimitMax bound a single pull batch.
	PullLimitMin = 1
	PullLimitMax = 20

	// candidateFactor over-fetches candidates relative to the requested
	// limit so claim races against concurrent pullers can be tolerated.
	candidateFactor = 3

	// maxAckErrorLen truncates worker-supplied diagnostics before storage.
	maxAckErrorLen = 4000
)

// DefaultProcessingTTL is how long a claim may be held before it is
// presumed abandoned.
const DefaultProcessingTTL = 90 * time.Second

// DefaultAuthTTL is how long a pending auth code remains deliverable.
const DefaultAuthTTL = 12 * time.Minute

// OutboxServiceOptions groups dependencies for OutboxService.
type OutboxServiceOptions struct {
	Repo          core.OutboxRepository      // Required: outbox store
	Backoff       domainoutbox.BackoffPolicy // Retry delay policy
	ProcessingTTL time.Duration              // Claim staleness TTL (default 90s)
	AuthTTL       time.Duration              // Auth-context creation TTL (default 12m)
	Clock         data.TimeProvider          // Optional: clock override for tests
	Logger        *slog.Logger               // Optional: structured logger
}

// OutboxService arbitrates ownership and retry timing for SMS outbox jobs.
// It never initiates delivery itself; external sender workers pull claimed
// batches and report outcomes back through Ack. Every call is stateless and
// rehydrates all context from the store.
type OutboxService struct {
	repo          core.OutboxRepository
	backoff       domainoutbox.BackoffPolicy
	processingTTL time.Duration
	authTTL       time.Duration
	clock         data.TimeProvider
	logger        *slog.Logger
}

// NewOutboxService constructs a new OutboxService.
func NewOutboxService(opts OutboxServiceOptions) (*OutboxService, error) {
	if opts.Repo == nil {
		return nil, errors.New("OutboxRepository is required")
	}

	processingTTL := opts.ProcessingTTL
	if processingTTL <= 0 {
		processingTTL = DefaultProcessingTTL
	}
	authTTL := opts.AuthTTL
	if authTTL <= 0 {
		authTTL = DefaultAuthTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "outbox_service")
	}

	return &OutboxService{
		repo:          opts.Repo,
		backoff:       opts.Backoff,
		processingTTL: processingTTL,
		authTTL:       authTTL,
		clock:         clock,
		logger:        logger,
	}, nil
}

// MustNewOutboxService constructs a new OutboxService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewOutboxService(opts OutboxServiceOptions) *OutboxService {
	svc, err := NewOutboxService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create OutboxService: %v", err))
	}
	return svc
}

// Enqueue normalizes the destination number and inserts a pending job.
func (s *OutboxService) Enqueue(ctx context.Context, req *model.EnqueueOutboxRequest) (*model.OutboxJob, error) {
	if req == nil {
		return nil, apperrors.Validation("enqueue request is required")
	}

	phone, ok := domainoutbox.NormalizePhoneE164(req.PhoneE164)
	if !ok {
		return nil, apperrors.ValidationField("phoneE164", "invalid phone number")
	}
	req.PhoneE164 = phone

	job, err := s.repo.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue outbox job: %w", apperrors.MapDBError(err))
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "outbox job enqueued",
			"id", job.ID,
			"context", job.Context,
			"max_attempts", job.MaxAttempts,
		)
	}
	return job, nil
}

// ClampPullLimit clamps a requested batch size into [PullLimitMin, PullLimitMax].
func ClampPullLimit(limit int) int {
	if limit < PullLimitMin {
		return PullLimitMin
	}
	if limit > PullLimitMax {
		return PullLimitMax
	}
	return limit
}

// Pull reconciles overdue state and atomically claims up to limit pending
// jobs for the given worker.
//
// Effects, in order: expire stale auth-context jobs, reclaim stale claims,
// list eligible candidates oldest-first, then claim them one at a time with
// a conditional update. Candidates lost to concurrent pullers are skipped
// silently. An empty batch is a valid, non-error result.
func (s *OutboxService) Pull(ctx context.Context, limit int, workerID string) (*model.PullResult, error) {
	limit = ClampPullLimit(limit)
	worker := domainoutbox.NormalizeWorkerID(workerID)
	now := s.clock.Now()

	expired, err := s.repo.ExpireStaleAuth(ctx, now.Add(-s.authTTL))
	if err != nil {
		return nil, fmt.Errorf("expire stale auth jobs: %w", err)
	}
	reclaimed, err := s.repo.ReclaimStale(ctx, now.Add(-s.processingTTL))
	if err != nil {
		return nil, fmt.Errorf("reclaim stale claims: %w", err)
	}
	if s.logger != nil && (expired > 0 || reclaimed > 0) {
		s.logger.InfoContext(ctx, "outbox reconciled",
			"expired", expired,
			"reclaimed", reclaimed,
			"worker_id", worker,
		)
	}

	candidates, err := s.repo.ListClaimable(ctx, now, limit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("list claimable jobs: %w", err)
	}

	result := &model.PullResult{
		Jobs:     []model.PulledJob{},
		WorkerID: worker,
	}
	for _, candidate := range candidates {
		if len(result.Jobs) >= limit {
			break
		}

		claimed, claimErr := s.repo.Claim(ctx, candidate.ID, worker)
		if claimErr != nil {
			return nil, fmt.Errorf("claim job %s: %w", candidate.ID, claimErr)
		}
		if claimed == nil {
			// Another puller won the race; skip silently.
			continue
		}

		result.Jobs = append(result.Jobs, model.PulledJob{
			ID:          claimed.ID,
			PhoneE164:   claimed.PhoneE164,
			Message:     claimed.Message,
			Context:     claimed.Context,
			Attempt:     claimed.AttemptCount,
			MaxAttempts: claimed.MaxAttempts,
		})
	}
	result.Pulled = len(result.Jobs)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "outbox pull completed",
			"pulled", result.Pulled,
			"candidates", len(candidates),
			"worker_id", worker,
		)
	}
	return result, nil
}

// AckStatusSent and AckStatusFailed are the only statuses a worker may report.
const (
	AckStatusSent   = "sent"
	AckStatusFailed = "failed"
)

// Ack records the outcome of a delivery attempt reported by a worker.
//
// "sent" marks the job terminally delivered. "failed" either exhausts the
// job (attempt ceiling reached) or schedules a retry after the backoff
// delay computed from the job's current attempt count.
func (s *OutboxService) Ack(ctx context.Context, id, status, errorText string) (*model.AckOutcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.ValidationField("id", "missing identifier")
	}

	status = strings.ToLower(strings.TrimSpace(status))
	if status != AckStatusSent && status != AckStatusFailed {
		return nil, apperrors.ValidationField("status", "invalid status, expected sent|failed")
	}

	if len(errorText) > maxAckErrorLen {
		errorText = errorText[:maxAckErrorLen]
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrOutboxJobNotFound) {
			return nil, apperrors.NotFoundf("outbox job %s not found", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "load outbox job")
	}

	if status == AckStatusSent {
		return s.ackSent(ctx, job)
	}
	return s.ackFailed(ctx, job, errorText)
}

func (s *OutboxService) ackSent(ctx context.Context, job *model.OutboxJob) (*model.AckOutcome, error) {
	if err := s.repo.MarkSent(ctx, job.ID); err != nil {
		if errors.Is(err, data.ErrOutboxJobNotFound) {
			return nil, apperrors.NotFoundf("outbox job %s not found", job.ID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "mark job sent")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "outbox job sent",
			"id", job.ID,
			"attempt", job.AttemptCount,
		)
	}
	return &model.AckOutcome{Status: model.OutboxStatusSent}, nil
}

func (s *OutboxService) ackFailed(ctx context.Context, job *model.OutboxJob, errorText string) (*model.AckOutcome, error) {
	// AttemptCount was already incremented by the claim that handed the
	// job to the reporting worker.
	if job.AttemptCount >= job.MaxAttempts {
		lastError := errorText
		if lastError == "" {
			lastError = model.ErrTextMaxAttemptsReached
		}
		if err := s.repo.MarkExhausted(ctx, job.ID, lastError); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "mark job exhausted")
		}

		if s.logger != nil {
			s.logger.WarnContext(ctx, "outbox job exhausted",
				"id", job.ID,
				"attempts", job.AttemptCount,
				"max_attempts", job.MaxAttempts,
			)
		}
		return &model.AckOutcome{Status: model.OutboxStatusFailed, Exhausted: true}, nil
	}

	lastError := errorText
	if lastError == "" {
		lastError = model.ErrTextDeliveryFailed
	}

	delay := s.backoff.Delay(job.AttemptCount)
	retryAt := s.clock.Now().Add(delay).UTC()
	if err := s.repo.Retry(ctx, job.ID, retryAt, lastError); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "schedule job retry")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "outbox job scheduled for retry",
			"id", job.ID,
			"attempt", job.AttemptCount,
			"retry_in", delay,
		)
	}
	return &model.AckOutcome{
		Status:    model.OutboxStatusPending,
		RetryInMs: delay.Milliseconds(),
		RetryAt:   &retryAt,
	}, nil
}

// Stats returns counts of jobs per state.
func (s *OutboxService) Stats(ctx context.Context) (*model.OutboxStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return stats, nil
}

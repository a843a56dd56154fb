package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loomchat/loom-api/internal/domain/model"
)

// ErrOutboxJobNotFound is returned when an outbox job does not exist.
var ErrOutboxJobNotFound = errors.New("outbox job not found")

// DefaultMaxAttempts is the attempt ceiling applied when an enqueue request
// does not override it.
const DefaultMaxAttempts = 8

// OutboxRepoConfig holds configuration options for the outbox repository.
type OutboxRepoConfig struct {
	MaxAttempts  int
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// OutboxRepo provides database operations for the SMS outbox queue.
type OutboxRepo struct {
	DB           *sql.DB
	cfg          OutboxRepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewOutboxRepo creates a new OutboxRepo with the given database connection and configuration.
func NewOutboxRepo(db *sql.DB, cfg OutboxRepoConfig) *OutboxRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &OutboxRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

func (r *OutboxRepo) maxAttempts() int {
	if r.cfg.MaxAttempts > 0 {
		return r.cfg.MaxAttempts
	}
	return DefaultMaxAttempts
}

const outboxColumns = `
  id,
  phone_e164,
  message,
  context,
  status,
  attempt_count,
  max_attempts,
  claimed_at,
  claimed_by,
  next_attempt_at,
  sent_at,
  last_error,
  created_at,
  updated_at
`

type outboxRowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxJob(scanner outboxRowScanner) (*model.OutboxJob, error) {
	job := &model.OutboxJob{}
	var (
		claimedAt, sentAt    sql.NullTime
		claimedBy, lastError sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.PhoneE164,
		&job.Message,
		&job.Context,
		&job.Status,
		&job.AttemptCount,
		&job.MaxAttempts,
		&claimedAt,
		&claimedBy,
		&job.NextAttemptAt,
		&sentAt,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.ClaimedAt = cloneNullableTime(claimedAt)
	job.ClaimedBy = cloneNullableString(claimedBy)
	job.SentAt = cloneNullableTime(sentAt)
	job.LastError = cloneNullableString(lastError)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Enqueue inserts a new pending job with attempt_count 0.
func (r *OutboxRepo) Enqueue(ctx context.Context, req *model.EnqueueOutboxRequest) (*model.OutboxJob, error) {
	if req == nil {
		return nil, errors.New("enqueue request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts()
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO outbox_jobs(id, phone_e164, message, context, status, attempt_count, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5, $6, $6, $6)
		RETURNING `+outboxColumns,
		uuid.NewString(), req.PhoneE164, req.Message, req.Context, maxAttempts, now,
	)

	job, err := scanOutboxJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue outbox job: %w", err)
	}
	return job, nil
}

// ExpireStaleAuth fails pending auth-context jobs created before the cutoff.
// Stale one-time-codes must never be delivered, so these go straight to the
// terminal failed state.
func (r *OutboxRepo) ExpireStaleAuth(ctx context.Context, cutoff time.Time) (int64, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'failed',
		    last_error = $1,
		    updated_at = $2
		WHERE status = 'pending'
		  AND context = $3
		  AND created_at < $4
	`, model.ErrTextExpiredBeforeDispatch, now, model.ContextAuth, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale auth jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale auth rows affected: %w", err)
	}
	return affected, nil
}

// ReclaimStale returns processing jobs whose claim predates the cutoff to
// pending, clearing the claim fields. Protects against a worker crashing
// mid-delivery without ever losing the job.
func (r *OutboxRepo) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'pending',
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $1
		WHERE status = 'processing'
		  AND claimed_at IS NOT NULL
		  AND claimed_at < $2
	`, now, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale claims: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale rows affected: %w", err)
	}
	return affected, nil
}

// ListClaimable lists pending jobs eligible for a claim, oldest first.
func (r *OutboxRepo) ListClaimable(ctx context.Context, now time.Time, limit int) ([]model.OutboxJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_jobs
		WHERE status = 'pending'
		  AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list claimable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.OutboxJob
	for rows.Next() {
		job, scanErr := scanOutboxJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan claimable job: %w", scanErr)
		}
		jobs = append(jobs, *job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate claimable jobs: %w", rowsErr)
	}
	return jobs, nil
}

// Claim attempts to move a single pending job to processing for workerID.
// The update is conditioned on status = 'pending' at update time, so two
// concurrent pullers cannot both win the same job. Returns (nil, nil) when
// the row was no longer pending.
func (r *OutboxRepo) Claim(ctx context.Context, id, workerID string) (*model.OutboxJob, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'processing',
		    claimed_at = $2,
		    claimed_by = $3,
		    attempt_count = attempt_count + 1,
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+outboxColumns,
		id, now, workerID,
	)

	job, err := scanOutboxJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race or the row expired between list and claim.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox job: %w", err)
	}
	return job, nil
}

// MarkSent records terminal successful delivery. Last-write-wins: a second
// ack on an already-sent job overwrites the previous terminal stamp.
func (r *OutboxRepo) MarkSent(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'sent',
		    sent_at = $2,
		    last_error = NULL,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $2
		WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark outbox job sent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sent rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOutboxJobNotFound
	}
	return nil
}

// Retry returns a job to pending with the computed next attempt time.
func (r *OutboxRepo) Retry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'pending',
		    next_attempt_at = $2,
		    last_error = $3,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $4
		WHERE id = $1
	`, id, nextAttemptAt.UTC(), lastError, now)
	if err != nil {
		return fmt.Errorf("retry outbox job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOutboxJobNotFound
	}
	return nil
}

// MarkExhausted records terminal failure once the attempt ceiling is reached.
func (r *OutboxRepo) MarkExhausted(ctx context.Context, id, lastError string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE outbox_jobs
		SET status = 'failed',
		    last_error = $2,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $3
		WHERE id = $1
	`, id, lastError, now)
	if err != nil {
		return fmt.Errorf("mark outbox job exhausted: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark exhausted rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOutboxJobNotFound
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *OutboxRepo) GetByID(ctx context.Context, id string) (*model.OutboxJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_jobs
		WHERE id = $1
	`, id)

	job, err := scanOutboxJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOutboxJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox job: %w", err)
	}
	return job, nil
}

// Stats returns counts of jobs in each state.
func (r *OutboxRepo) Stats(ctx context.Context) (*model.OutboxStats, error) {
	var s model.OutboxStats
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    count(*) FILTER (WHERE status = 'pending')    AS pending,
	    count(*) FILTER (WHERE status = 'processing') AS processing,
	    count(*) FILTER (WHERE status = 'sent')       AS sent,
	    count(*) FILTER (WHERE status = 'failed')     AS failed
	  FROM outbox_jobs
	`).Scan(
		&s.Pending,
		&s.Processing,
		&s.Sent,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get outbox stats: %w", err)
	}
	return &s, nil
}

// Package sender provides the worker that drains the SMS outbox: it pulls
// claimed batches from the outbox service, hands each message to the carrier
// and acks the outcome.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loomchat/loom-api/internal/carrier"
	"github.com/loomchat/loom-api/internal/domain/model"
	"github.com/loomchat/loom-api/internal/service"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 10
)

// RunnerOptions configures the outbox sender runner.
type RunnerOptions struct {
	Outbox *service.OutboxService
	Sender carrier.Sender
	Logger *slog.Logger

	WorkerID     string        // identifies this process's claims; defaults inside Pull
	BatchSize    int           // jobs per pull; clamped by the outbox service
	PollInterval time.Duration // idle sleep between empty pulls; defaults to 2s
	Concurrency  int           // concurrent deliveries per batch; defaults to 1
}

// Runner drains the outbox until its context is cancelled.
type Runner struct {
	outbox       *service.OutboxService
	sender       carrier.Sender
	logger       *slog.Logger
	workerID     string
	batchSize    int
	pollInterval time.Duration
	workers      int
}

// NewRunner creates a new outbox sender runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Outbox == nil {
		return nil, errors.New("OutboxService is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("carrier Sender is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	return &Runner{
		outbox:       opts.Outbox,
		sender:       opts.Sender,
		logger:       logger.With("component", "sender_runner", "carrier", opts.Sender.Name()),
		workerID:     opts.WorkerID,
		batchSize:    batch,
		pollInterval: interval,
		workers:      workers,
	}, nil
}

// Run polls the outbox and delivers until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting outbox sender",
		"batch_size", r.batchSize,
		"poll_interval", r.pollInterval,
		"concurrency", r.workers,
	)

	for ctx.Err() == nil {
		pulled, err := r.runOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.logger.ErrorContext(ctx, "outbox pull failed", "error", err)
			if !r.sleep(ctx) {
				break
			}
			continue
		}
		if pulled == 0 {
			if !r.sleep(ctx) {
				break
			}
		}
	}
	return ctx.Err()
}

// runOnce pulls a single batch and delivers it, returning how many jobs were
// claimed. Delivery failures are acked back as failed, not returned.
func (r *Runner) runOnce(ctx context.Context) (int, error) {
	result, err := r.outbox.Pull(ctx, r.batchSize, r.workerID)
	if err != nil {
		return 0, err
	}
	if result.Pulled == 0 {
		return 0, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for _, job := range result.Jobs {
		group.Go(func() error {
			r.deliver(gctx, job)
			return nil
		})
	}
	_ = group.Wait()
	return result.Pulled, nil
}

func (r *Runner) deliver(ctx context.Context, job model.PulledJob) {
	err := r.sender.Send(ctx, carrier.Message{
		PhoneE164: job.PhoneE164,
		Body:      job.Message,
	})

	status := service.AckStatusSent
	errorText := ""
	if err != nil {
		status = service.AckStatusFailed
		errorText = err.Error()
		r.logger.WarnContext(ctx, "delivery failed",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"error", err,
		)
	}

	outcome, ackErr := r.outbox.Ack(ctx, job.ID, status, errorText)
	if ackErr != nil {
		// A lost ack leaves the job processing until the staleness
		// reclaim returns it to pending.
		r.logger.ErrorContext(ctx, "ack failed", "job_id", job.ID, "error", ackErr)
		return
	}

	if err == nil {
		r.logger.InfoContext(ctx, "sms sent", "job_id", job.ID, "attempt", job.Attempt)
	} else if outcome.Exhausted {
		r.logger.WarnContext(ctx, "sms permanently failed",
			"job_id", job.ID,
			"attempts", job.Attempt,
		)
	}
}

func (r *Runner) sleep(ctx context.Context) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

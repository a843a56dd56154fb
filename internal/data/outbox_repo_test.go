package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom-api/internal/domain/model"
	"github.com/loomchat/loom-api/internal/testutil"
)

func TestOutboxRepo_Integration_EnqueueAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "Your code is 482910",
			Context:   model.ContextAuth,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.OutboxStatusPending, job.Status)
		assert.Equal(t, 0, job.AttemptCount)
		assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
		assert.Nil(t, job.ClaimedAt)
		assert.Nil(t, job.ClaimedBy)
		assert.Nil(t, job.SentAt)
		assert.Nil(t, job.LastError)

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, fetched.ID)
		assert.Equal(t, "+15551230000", fetched.PhoneE164)
		assert.Equal(t, model.ContextAuth, fetched.Context)
	})
}

func TestOutboxRepo_Integration_EnqueueHonorsMaxAttemptsOverride(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{MaxAttempts: 5})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, 5, job.MaxAttempts)

		job, err = repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164:   "+15551230000",
			Message:     "hello",
			MaxAttempts: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, job.MaxAttempts)
	})
}

func TestOutboxRepo_Integration_GetByIDNotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{})

		_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrOutboxJobNotFound)
	})
}

// A claim is a conditional update on status = 'pending', so only one caller
// can win a given job.
func TestOutboxRepo_Integration_ClaimIsExclusive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "hello",
		})
		require.NoError(t, err)

		claimed, err := repo.Claim(context.Background(), job.ID, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, model.OutboxStatusProcessing, claimed.Status)
		assert.Equal(t, 1, claimed.AttemptCount)
		require.NotNil(t, claimed.ClaimedBy)
		assert.Equal(t, "worker-a", *claimed.ClaimedBy)
		assert.NotNil(t, claimed.ClaimedAt)

		// Second claim loses the race.
		lost, err := repo.Claim(context.Background(), job.ID, "worker-b")
		require.NoError(t, err)
		assert.Nil(t, lost)

		// Attempt count only incremented once.
		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched.AttemptCount)
		assert.Equal(t, "worker-a", *fetched.ClaimedBy)
	})
}

func TestOutboxRepo_Integration_ListClaimableOrderingAndEligibility(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewOutboxRepo(db, OutboxRepoConfig{TimeProvider: clock})

		first, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "first",
		})
		require.NoError(t, err)

		clock.AddTime(time.Second)
		second, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230001",
			Message:   "second",
		})
		require.NoError(t, err)

		// A job whose next attempt lies in the future is not eligible.
		clock.AddTime(time.Second)
		future, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230002",
			Message:   "deferred",
		})
		require.NoError(t, err)
		require.NoError(t, repo.Retry(context.Background(), future.ID, clock.Now().Add(time.Hour), "carrier timeout"))

		now := clock.Now()
		jobs, err := repo.ListClaimable(context.Background(), now, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, first.ID, jobs[0].ID)
		assert.Equal(t, second.ID, jobs[1].ID)

		// Limit truncates the candidate batch.
		jobs, err = repo.ListClaimable(context.Background(), now, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, first.ID, jobs[0].ID)

		// The deferred job becomes eligible once its retry time passes.
		jobs, err = repo.ListClaimable(context.Background(), now.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})
}

// A claim held past the staleness cutoff goes back to pending so a crashed
// worker never strands the job.
func TestOutboxRepo_Integration_ReclaimStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewOutboxRepo(db, OutboxRepoConfig{TimeProvider: clock})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "hello",
		})
		require.NoError(t, err)

		claimed, err := repo.Claim(context.Background(), job.ID, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		// A fresh claim survives reclamation.
		reclaimed, err := repo.ReclaimStale(context.Background(), clock.Now().Add(-90*time.Second))
		require.NoError(t, err)
		assert.Zero(t, reclaimed)

		// Once the claim predates the cutoff it is returned to pending.
		clock.AddTime(2 * time.Minute)
		reclaimed, err = repo.ReclaimStale(context.Background(), clock.Now().Add(-90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), reclaimed)

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusPending, fetched.Status)
		assert.Nil(t, fetched.ClaimedAt)
		assert.Nil(t, fetched.ClaimedBy)
		// The spent attempt is kept; reclamation is not a free retry.
		assert.Equal(t, 1, fetched.AttemptCount)
	})
}

func TestOutboxRepo_Integration_ExpireStaleAuth(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewOutboxRepo(db, OutboxRepoConfig{TimeProvider: clock})

		staleAuth, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "Your code is 482910",
			Context:   model.ContextAuth,
		})
		require.NoError(t, err)

		staleOther, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230001",
			Message:   "notification",
			Context:   "notify",
		})
		require.NoError(t, err)

		clock.AddTime(15 * time.Minute)
		freshAuth, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230002",
			Message:   "Your code is 101010",
			Context:   model.ContextAuth,
		})
		require.NoError(t, err)

		expired, err := repo.ExpireStaleAuth(context.Background(), clock.Now().Add(-12*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), expired)

		fetched, err := repo.GetByID(context.Background(), staleAuth.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusFailed, fetched.Status)
		require.NotNil(t, fetched.LastError)
		assert.Equal(t, model.ErrTextExpiredBeforeDispatch, *fetched.LastError)

		// Non-auth jobs age without expiring.
		fetched, err = repo.GetByID(context.Background(), staleOther.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusPending, fetched.Status)

		fetched, err = repo.GetByID(context.Background(), freshAuth.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusPending, fetched.Status)
	})
}

func TestOutboxRepo_Integration_MarkSent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "hello",
		})
		require.NoError(t, err)

		claimed, err := repo.Claim(context.Background(), job.ID, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		require.NoError(t, repo.MarkSent(context.Background(), job.ID))

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusSent, fetched.Status)
		assert.NotNil(t, fetched.SentAt)
		assert.Nil(t, fetched.LastError)
		assert.Nil(t, fetched.ClaimedAt)
		assert.Nil(t, fetched.ClaimedBy)

		require.ErrorIs(t, repo.MarkSent(context.Background(), "00000000-0000-0000-0000-000000000000"), ErrOutboxJobNotFound)
	})
}

func TestOutboxRepo_Integration_RetryAndExhaust(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewOutboxRepo(db, OutboxRepoConfig{TimeProvider: clock})

		job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
			PhoneE164: "+15551230000",
			Message:   "hello",
		})
		require.NoError(t, err)

		claimed, err := repo.Claim(context.Background(), job.ID, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		retryAt := clock.Now().Add(20 * time.Second)
		require.NoError(t, repo.Retry(context.Background(), job.ID, retryAt, "carrier timeout"))

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusPending, fetched.Status)
		assert.True(t, fetched.NextAttemptAt.Equal(retryAt))
		require.NotNil(t, fetched.LastError)
		assert.Equal(t, "carrier timeout", *fetched.LastError)
		assert.Nil(t, fetched.ClaimedBy)

		require.NoError(t, repo.MarkExhausted(context.Background(), job.ID, model.ErrTextMaxAttemptsReached))

		fetched, err = repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OutboxStatusFailed, fetched.Status)
		require.NotNil(t, fetched.LastError)
		assert.Equal(t, model.ErrTextMaxAttemptsReached, *fetched.LastError)

		require.ErrorIs(t, repo.Retry(context.Background(), "00000000-0000-0000-0000-000000000000", retryAt, "x"), ErrOutboxJobNotFound)
		require.ErrorIs(t, repo.MarkExhausted(context.Background(), "00000000-0000-0000-0000-000000000000", "x"), ErrOutboxJobNotFound)
	})
}

func TestOutboxRepo_Integration_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewOutboxRepo(db, OutboxRepoConfig{})

		enqueue := func(msg string) *model.OutboxJob {
			job, err := repo.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
				PhoneE164: "+15551230000",
				Message:   msg,
			})
			require.NoError(t, err)
			return job
		}

		enqueue("stays pending")
		claimedJob := enqueue("claimed")
		sentJob := enqueue("delivered")
		failedJob := enqueue("gives up")

		_, err := repo.Claim(context.Background(), claimedJob.ID, "worker-a")
		require.NoError(t, err)
		require.NoError(t, repo.MarkSent(context.Background(), sentJob.ID))
		require.NoError(t, repo.MarkExhausted(context.Background(), failedJob.ID, model.ErrTextDeliveryFailed))

		stats, err := repo.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Processing)
		assert.Equal(t, 1, stats.Sent)
		assert.Equal(t, 1, stats.Failed)
	})
}

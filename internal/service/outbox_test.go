package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/loomchat/loom-api/internal/data"
	"github.com/loomchat/loom-api/internal/domain/model"
	domainoutbox "github.com/loomchat/loom-api/internal/domain/outbox"
	apperrors "github.com/loomchat/loom-api/internal/errors"
	"github.com/loomchat/loom-api/internal/mocks"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newOutboxServiceWithMock(t *testing.T) (*OutboxService, *mocks.MockOutboxRepository, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockOutboxRepository(ctrl)
	svc := MustNewOutboxService(OutboxServiceOptions{
		Repo:    mockRepo,
		Backoff: domainoutbox.NewBackoffPolicy(5*time.Second, 5*time.Minute),
		Clock:   data.NewFixedTimeProvider(fixedNow),
	})
	return svc, mockRepo, ctrl
}

func TestNewOutboxService_RequiresRepo(t *testing.T) {
	_, err := NewOutboxService(OutboxServiceOptions{})
	require.Error(t, err)
}

func TestClampPullLimit(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero clamps to min", 0, PullLimitMin},
		{"negative clamps to min", -5, PullLimitMin},
		{"in range passes through", 10, 10},
		{"above max clamps to max", 100, PullLimitMax},
		{"exactly max", PullLimitMax, PullLimitMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampPullLimit(tt.in))
		})
	}
}

func TestEnqueue_NormalizesPhone(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.EnqueueOutboxRequest) (*model.OutboxJob, error) {
			assert.Equal(t, "+15551230000", req.PhoneE164)
			return &model.OutboxJob{ID: "job-1", PhoneE164: req.PhoneE164}, nil
		})

	job, err := svc.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
		PhoneE164: "+1 (555) 123-0000",
		Message:   "hello",
		Context:   "chat",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}

func TestEnqueue_InvalidPhone_NoRepoCall(t *testing.T) {
	svc, _, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	_, err := svc.Enqueue(context.Background(), &model.EnqueueOutboxRequest{
		PhoneE164: "not-a-number",
		Message:   "hello",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestPull_ReconcilesBeforeListing(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	authCutoff := fixedNow.Add(-DefaultAuthTTL)
	claimCutoff := fixedNow.Add(-DefaultProcessingTTL)

	gomock.InOrder(
		mockRepo.EXPECT().ExpireStaleAuth(gomock.Any(), authCutoff).Return(int64(2), nil),
		mockRepo.EXPECT().ReclaimStale(gomock.Any(), claimCutoff).Return(int64(1), nil),
		mockRepo.EXPECT().ListClaimable(gomock.Any(), fixedNow, 5*candidateFactor).Return(nil, nil),
	)

	result, err := svc.Pull(context.Background(), 5, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pulled)
	assert.NotNil(t, result.Jobs)
	assert.Equal(t, "worker-a", result.WorkerID)
}

func TestPull_ClaimsUpToLimit(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	candidates := []model.OutboxJob{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}

	mockRepo.EXPECT().ExpireStaleAuth(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ReclaimStale(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ListClaimable(gomock.Any(), fixedNow, 2*candidateFactor).Return(candidates, nil)
	mockRepo.EXPECT().Claim(gomock.Any(), "a", "worker-a").
		Return(&model.OutboxJob{ID: "a", PhoneE164: "+15550001111", Message: "m", AttemptCount: 1, MaxAttempts: 8}, nil)
	mockRepo.EXPECT().Claim(gomock.Any(), "b", "worker-a").
		Return(&model.OutboxJob{ID: "b", PhoneE164: "+15550002222", Message: "m", AttemptCount: 3, MaxAttempts: 8}, nil)

	result, err := svc.Pull(context.Background(), 2, "worker-a")
	require.NoError(t, err)
	require.Equal(t, 2, result.Pulled)
	assert.Equal(t, "a", result.Jobs[0].ID)
	assert.Equal(t, 1, result.Jobs[0].Attempt)
	assert.Equal(t, "b", result.Jobs[1].ID)
	assert.Equal(t, 3, result.Jobs[1].Attempt)
}

func TestPull_SkipsLostClaimRaces(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	candidates := []model.OutboxJob{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	mockRepo.EXPECT().ExpireStaleAuth(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ReclaimStale(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ListClaimable(gomock.Any(), gomock.Any(), gomock.Any()).Return(candidates, nil)
	// "a" and "b" lost to a concurrent puller; only "c" is claimed.
	mockRepo.EXPECT().Claim(gomock.Any(), "a", "sms-gateway").Return(nil, nil)
	mockRepo.EXPECT().Claim(gomock.Any(), "b", "sms-gateway").Return(nil, nil)
	mockRepo.EXPECT().Claim(gomock.Any(), "c", "sms-gateway").
		Return(&model.OutboxJob{ID: "c", AttemptCount: 1, MaxAttempts: 8}, nil)

	result, err := svc.Pull(context.Background(), 2, "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Pulled)
	assert.Equal(t, "c", result.Jobs[0].ID)
	assert.Equal(t, domainoutbox.DefaultWorkerID, result.WorkerID)
}

func TestPull_EmptyQueueIsNotAnError(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().ExpireStaleAuth(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ReclaimStale(gomock.Any(), gomock.Any()).Return(int64(0), nil)
	mockRepo.EXPECT().ListClaimable(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]model.OutboxJob{}, nil)

	result, err := svc.Pull(context.Background(), 10, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pulled)
	assert.NotNil(t, result.Jobs)
}

func TestAck_MissingID(t *testing.T) {
	svc, _, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	_, err := svc.Ack(context.Background(), "  ", AckStatusSent, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAck_InvalidStatus(t *testing.T) {
	svc, _, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	_, err := svc.Ack(context.Background(), "job-1", "delivered", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAck_UnknownJob(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	mockRepo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrOutboxJobNotFound)

	_, err := svc.Ack(context.Background(), "missing", AckStatusSent, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAck_Sent(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	job := &model.OutboxJob{ID: "job-1", Status: model.OutboxStatusProcessing, AttemptCount: 1, MaxAttempts: 8}
	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	mockRepo.EXPECT().MarkSent(gomock.Any(), "job-1").Return(nil)

	outcome, err := svc.Ack(context.Background(), "job-1", "SENT", "")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusSent, outcome.Status)
	assert.False(t, outcome.Exhausted)
}

func TestAck_FailedSchedulesRetryWithBackoff(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	// Third attempt just failed: delay = 5s * 2^(3-1) = 20s.
	job := &model.OutboxJob{ID: "job-1", Status: model.OutboxStatusProcessing, AttemptCount: 3, MaxAttempts: 8}
	wantRetryAt := fixedNow.Add(20 * time.Second)

	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	mockRepo.EXPECT().Retry(gomock.Any(), "job-1", wantRetryAt, "carrier timeout").Return(nil)

	outcome, err := svc.Ack(context.Background(), "job-1", AckStatusFailed, "carrier timeout")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusPending, outcome.Status)
	assert.False(t, outcome.Exhausted)
	assert.Equal(t, int64(20000), outcome.RetryInMs)
	require.NotNil(t, outcome.RetryAt)
	assert.True(t, outcome.RetryAt.Equal(wantRetryAt))
}

func TestAck_FailedDefaultsDiagnostic(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	job := &model.OutboxJob{ID: "job-1", AttemptCount: 1, MaxAttempts: 8}
	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	mockRepo.EXPECT().
		Retry(gomock.Any(), "job-1", gomock.Any(), model.ErrTextDeliveryFailed).
		Return(nil)

	_, err := svc.Ack(context.Background(), "job-1", AckStatusFailed, "")
	require.NoError(t, err)
}

func TestAck_FailedExhaustsAtCeiling(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	job := &model.OutboxJob{ID: "job-1", Status: model.OutboxStatusProcessing, AttemptCount: 8, MaxAttempts: 8}
	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	mockRepo.EXPECT().MarkExhausted(gomock.Any(), "job-1", model.ErrTextMaxAttemptsReached).Return(nil)

	outcome, err := svc.Ack(context.Background(), "job-1", AckStatusFailed, "")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusFailed, outcome.Status)
	assert.True(t, outcome.Exhausted)
	assert.Zero(t, outcome.RetryInMs)
	assert.Nil(t, outcome.RetryAt)
}

func TestAck_TruncatesLongDiagnostics(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	long := make([]byte, maxAckErrorLen+500)
	for i := range long {
		long[i] = 'x'
	}

	job := &model.OutboxJob{ID: "job-1", AttemptCount: 1, MaxAttempts: 8}
	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	mockRepo.EXPECT().
		Retry(gomock.Any(), "job-1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ time.Time, lastError string) error {
			assert.Len(t, lastError, maxAckErrorLen)
			return nil
		})

	_, err := svc.Ack(context.Background(), "job-1", AckStatusFailed, string(long))
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	svc, mockRepo, ctrl := newOutboxServiceWithMock(t)
	defer ctrl.Finish()

	want := &model.OutboxStats{Pending: 3, Processing: 1, Sent: 40, Failed: 2}
	mockRepo.EXPECT().Stats(gomock.Any()).Return(want, nil)

	got, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

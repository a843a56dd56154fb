package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	policy := NewBackoffPolicy(5*time.Second, 5*time.Minute)

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "zero attempts treated as first", attempt: 0, want: 5 * time.Second},
		{name: "negative attempts treated as first", attempt: -3, want: 5 * time.Second},
		{name: "first attempt uses base", attempt: 1, want: 5 * time.Second},
		{name: "second attempt doubles", attempt: 2, want: 10 * time.Second},
		{name: "third attempt doubles again", attempt: 3, want: 20 * time.Second},
		{name: "sixth attempt", attempt: 6, want: 160 * time.Second},
		{name: "seventh attempt hits cap", attempt: 7, want: 5 * time.Minute},
		{name: "far past cap stays capped", attempt: 50, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Delay(tt.attempt))
		})
	}
}

func TestBackoffPolicy_MonotonicUntilCap(t *testing.T) {
	policy := NewBackoffPolicy(time.Second, time.Hour)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := policy.Delay(attempt)
		require.GreaterOrEqual(t, d, prev, "attempt %d regressed", attempt)
		require.LessOrEqual(t, d, time.Hour)
		prev = d
	}

	// Exponent is capped at 10, so delays plateau from attempt 11 on.
	assert.Equal(t, policy.Delay(11), policy.Delay(12))
	assert.Equal(t, policy.Delay(11), policy.Delay(100))
}

func TestNewBackoffPolicy_Defaults(t *testing.T) {
	policy := NewBackoffPolicy(0, 0)
	assert.Equal(t, DefaultBaseDelay, policy.Base())
	assert.Equal(t, DefaultMaxDelay, policy.Max())

	// Max below base is raised to base.
	inverted := NewBackoffPolicy(time.Minute, time.Second)
	assert.Equal(t, time.Minute, inverted.Max())
	assert.Equal(t, time.Minute, inverted.Delay(1))
}

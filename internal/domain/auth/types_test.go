package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "future expiry", expiresAt: now.Add(time.Hour), want: false},
		{name: "exact expiry", expiresAt: now, want: true},
		{name: "past expiry", expiresAt: now.Add(-time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Session{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, s.Expired(now))
		})
	}
}

func TestSession_MatchesBinding(t *testing.T) {
	const ua = "Mozilla/5.0 (test)"
	bound := Session{
		UserAgentHash: HashUserAgent(ua),
		IPPrefix:      "203.0.113",
	}

	assert.True(t, bound.MatchesBinding(ua, "203.0.113"))
	assert.False(t, bound.MatchesBinding("curl/8.0", "203.0.113"))
	assert.False(t, bound.MatchesBinding(ua, "198.51.100"))

	// Sessions without stored binding accept any client.
	legacy := Session{}
	assert.True(t, legacy.MatchesBinding(ua, "203.0.113"))
	assert.True(t, legacy.MatchesBinding("", ""))
}

func TestHashUserAgent(t *testing.T) {
	assert.Empty(t, HashUserAgent(""))
	h := HashUserAgent("agent-a")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashUserAgent("agent-a"))
	assert.NotEqual(t, h, HashUserAgent("agent-b"))
}

package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWorkerID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty falls back to default", input: "", want: DefaultWorkerID},
		{name: "whitespace only falls back to default", input: "   \t ", want: DefaultWorkerID},
		{name: "plain id passes through", input: "termux-1", want: "termux-1"},
		{name: "surrounding whitespace trimmed", input: "  termux-1  ", want: "termux-1"},
		{name: "internal runs collapsed", input: "sms   gateway \t north", want: "sms gateway north"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWorkerID(tt.input))
		})
	}
}

func TestNormalizePhoneE164(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "already canonical", input: "+14155552671", want: "+14155552671", ok: true},
		{name: "spaces and dashes stripped", input: "+1 415-555-2671", want: "+14155552671", ok: true},
		{name: "parentheses stripped", input: "+1 (415) 555.2671", want: "+14155552671", ok: true},
		{name: "double zero prefix", input: "0044 20 7946 0958", want: "+442079460958", ok: true},
		{name: "missing plus rejected", input: "4155552671", ok: false},
		{name: "letters rejected", input: "+1415CALLNOW", ok: false},
		{name: "too short rejected", input: "+1234", ok: false},
		{name: "too long rejected", input: "+12345678901234567", ok: false},
		{name: "empty rejected", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizePhoneE164(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

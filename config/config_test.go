package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:        "single service - http",
			input:       "http",
			expected:    map[ServiceMode]bool{ServiceModeHTTP: true},
			expectError: false,
		},
		{
			name:        "single service - sender",
			input:       "sender",
			expected:    map[ServiceMode]bool{ServiceModeSender: true},
			expectError: false,
		},
		{
			name:        "both services",
			input:       "http,sender",
			expected:    map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSender: true},
			expectError: false,
		},
		{
			name:        "services with spaces",
			input:       " http , sender ",
			expected:    map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSender: true},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,mailer",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got services %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Outbox.MaxAttempts != 8 {
		t.Errorf("MaxAttempts = %d, want 8", cfg.Outbox.MaxAttempts)
	}
	if cfg.Outbox.BaseDelay() != 5*time.Second {
		t.Errorf("BaseDelay = %v, want 5s", cfg.Outbox.BaseDelay())
	}
	if cfg.Outbox.MaxDelay() != 5*time.Minute {
		t.Errorf("MaxDelay = %v, want 5m", cfg.Outbox.MaxDelay())
	}
	if cfg.Outbox.ProcessingTTL != 90*time.Second {
		t.Errorf("ProcessingTTL = %v, want 90s", cfg.Outbox.ProcessingTTL)
	}
	if cfg.Outbox.AuthTTL != 12*time.Minute {
		t.Errorf("AuthTTL = %v, want 12m", cfg.Outbox.AuthTTL)
	}
	if cfg.Carrier.Kind != "console" {
		t.Errorf("Carrier.Kind = %q, want console", cfg.Carrier.Kind)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if !cfg.IsHTTPServerEnabled() {
		t.Error("http service should be enabled by default")
	}
	if cfg.IsSenderEnabled() {
		t.Error("sender service should not be enabled by default")
	}
}

func TestOutboxConfig_SanitizeClampsRanges(t *testing.T) {
	tests := []struct {
		name string
		in   OutboxConfig
		want OutboxConfig
	}{
		{
			name: "base delay below floor",
			in:   OutboxConfig{MaxAttempts: 8, BaseDelayMs: 10, MaxDelayMs: 300000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
			want: OutboxConfig{MaxAttempts: 8, BaseDelayMs: 1000, MaxDelayMs: 300000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
		},
		{
			name: "base delay above ceiling",
			in:   OutboxConfig{MaxAttempts: 8, BaseDelayMs: 120000, MaxDelayMs: 300000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
			want: OutboxConfig{MaxAttempts: 8, BaseDelayMs: 60000, MaxDelayMs: 300000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
		},
		{
			name: "max delay below floor",
			in:   OutboxConfig{MaxAttempts: 8, BaseDelayMs: 5000, MaxDelayMs: 1, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
			want: OutboxConfig{MaxAttempts: 8, BaseDelayMs: 5000, MaxDelayMs: 10000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
		},
		{
			name: "max delay above ceiling",
			in:   OutboxConfig{MaxAttempts: 8, BaseDelayMs: 5000, MaxDelayMs: 9999999, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
			want: OutboxConfig{MaxAttempts: 8, BaseDelayMs: 5000, MaxDelayMs: 3600000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
		},
		{
			name: "max delay never below base",
			in:   OutboxConfig{MaxAttempts: 8, BaseDelayMs: 60000, MaxDelayMs: 10000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
			want: OutboxConfig{MaxAttempts: 8, BaseDelayMs: 60000, MaxDelayMs: 60000, ProcessingTTL: time.Minute, AuthTTL: time.Minute},
		},
		{
			name: "zero attempts and ttls fall back",
			in:   OutboxConfig{BaseDelayMs: 5000, MaxDelayMs: 300000},
			want: OutboxConfig{MaxAttempts: 1, BaseDelayMs: 5000, MaxDelayMs: 300000, ProcessingTTL: 90 * time.Second, AuthTTL: 12 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Sanitize()
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHTTPConfig_AcceptedInternalKeys(t *testing.T) {
	cfg := HTTPConfig{
		InternalAPIKey:         "  primary  ",
		InternalAPIKeysRotated: []string{" old-1 ", "", "old-2"},
	}
	primary, rotated := cfg.AcceptedInternalKeys()
	if primary != "primary" {
		t.Errorf("primary = %q", primary)
	}
	if !reflect.DeepEqual(rotated, []string{"old-1", "old-2"}) {
		t.Errorf("rotated = %v", rotated)
	}
}

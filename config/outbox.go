package config

import "time"

// OutboxConfig contains SMS outbox queue configuration. Every numeric knob
// has a validated range; values outside the range are clamped by Sanitize,
// never rejected, so a bad env var degrades to a safe default instead of
// refusing to boot.
type OutboxConfig struct {
	// MaxAttempts is the delivery attempt ceiling per job.
	MaxAttempts int `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`

	// BaseDelayMs is the backoff base delay in milliseconds (1000-60000).
	BaseDelayMs int `env:"OUTBOX_BASE_DELAY_MS" envDefault:"5000"`

	// MaxDelayMs is the backoff delay cap in milliseconds (10000-3600000).
	MaxDelayMs int `env:"OUTBOX_MAX_DELAY_MS" envDefault:"300000"`

	// ProcessingTTL is how long a processing claim may be held before it is
	// presumed abandoned and reclaimed.
	ProcessingTTL time.Duration `env:"OUTBOX_PROCESSING_TTL" envDefault:"90s"`

	// AuthTTL is how long a pending auth-context job stays deliverable.
	AuthTTL time.Duration `env:"OUTBOX_AUTH_TTL" envDefault:"12m"`
}

const (
	minBaseDelayMs = 1000
	maxBaseDelayMs = 60000
	minMaxDelayMs  = 10000
	maxMaxDelayMs  = 3600000
)

// Sanitize applies guardrails to outbox configuration values.
func (o *OutboxConfig) Sanitize() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.BaseDelayMs < minBaseDelayMs {
		o.BaseDelayMs = minBaseDelayMs
	}
	if o.BaseDelayMs > maxBaseDelayMs {
		o.BaseDelayMs = maxBaseDelayMs
	}
	if o.MaxDelayMs < minMaxDelayMs {
		o.MaxDelayMs = minMaxDelayMs
	}
	if o.MaxDelayMs > maxMaxDelayMs {
		o.MaxDelayMs = maxMaxDelayMs
	}
	if o.MaxDelayMs < o.BaseDelayMs {
		o.MaxDelayMs = o.BaseDelayMs
	}
	if o.ProcessingTTL <= 0 {
		o.ProcessingTTL = 90 * time.Second
	}
	if o.AuthTTL <= 0 {
		o.AuthTTL = 12 * time.Minute
	}
}

// BaseDelay returns the backoff base delay as a duration.
func (o *OutboxConfig) BaseDelay() time.Duration {
	return time.Duration(o.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff delay cap as a duration.
func (o *OutboxConfig) MaxDelay() time.Duration {
	return time.Duration(o.MaxDelayMs) * time.Millisecond
}

// CarrierConfig selects and configures the outbound SMS carrier.
type CarrierConfig struct {
	// Kind selects the carrier: "console" logs messages, "gateway" posts
	// to an HTTP SMS gateway.
	Kind string `env:"CARRIER_KIND" envDefault:"console"`

	// Gateway settings, used when Kind is "gateway".
	GatewayBaseURL       string        `env:"CARRIER_GATEWAY_BASE_URL"       envDefault:""`
	GatewayAPIToken      string        `env:"CARRIER_GATEWAY_API_TOKEN"      envDefault:""`
	GatewaySigningSecret string        `env:"CARRIER_GATEWAY_SIGNING_SECRET" envDefault:""`
	GatewaySenderID      string        `env:"CARRIER_GATEWAY_SENDER_ID"      envDefault:""`
	GatewayTimeout       time.Duration `env:"CARRIER_GATEWAY_TIMEOUT"        envDefault:"10s"`

	// Sender worker settings.
	WorkerID     string        `env:"SENDER_WORKER_ID"     envDefault:""`
	BatchSize    int           `env:"SENDER_BATCH_SIZE"    envDefault:"10"`
	PollInterval time.Duration `env:"SENDER_POLL_INTERVAL" envDefault:"2s"`
	Concurrency  int           `env:"SENDER_CONCURRENCY"   envDefault:"2"`
}

// Sanitize applies guardrails to carrier configuration values.
func (c *CarrierConfig) Sanitize() {
	if c.Kind == "" {
		c.Kind = "console"
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 10 * time.Second
	}
}

// SessionConfig contains session lifetime configuration.
type SessionConfig struct {
	// TTL bounds how long a login survives without re-auth.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.TTL <= 0 {
		s.TTL = 720 * time.Hour
	}
}

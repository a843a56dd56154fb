package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - outbox.go: SMS outbox queue and carrier configuration
//   - services.go: Service mode configuration
type AppConfig struct {
	// IsDev controls development mode behavior. Set DEV=true for dev mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Outbox queue, backoff and carrier configuration
	Outbox  OutboxConfig
	Carrier CarrierConfig

	// Session configuration
	Session SessionConfig

	// Services is the comma-delimited list of service modes to run.
	Services string `env:"SERVICES" envDefault:"http"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Outbox.Sanitize()
	c.Carrier.Sanitize()
	c.Session.Sanitize()
	c.detectDevMode()
}

// detectDevMode also honors APP_ENV=development as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsSenderEnabled returns true if the SMS sender worker is enabled.
func (c *AppConfig) IsSenderEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSender]
}

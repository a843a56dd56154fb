package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// InternalAPIKey is the primary shared secret for worker-facing
	// endpoints. With no key configured those endpoints fail closed.
	InternalAPIKey string `env:"INTERNAL_API_KEY" envDefault:""`

	// InternalAPIKeysRotated lists previously issued keys still accepted
	// during rotation, comma-separated.
	InternalAPIKeysRotated []string `env:"INTERNAL_API_KEYS_ROTATED" envSeparator:","`
}

// AcceptedInternalKeys returns the primary plus rotated keys, trimmed, with
// empties dropped.
func (h *HTTPConfig) AcceptedInternalKeys() (primary string, rotated []string) {
	primary = strings.TrimSpace(h.InternalAPIKey)
	for _, key := range h.InternalAPIKeysRotated {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			rotated = append(rotated, trimmed)
		}
	}
	return primary, rotated
}

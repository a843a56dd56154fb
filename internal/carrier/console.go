package carrier

import (
	"context"
	"log/slog"
)

// ConsoleSender logs messages instead of delivering them. It is the default
// in development so sign-in codes show up in the server log.
type ConsoleSender struct {
	logger *slog.Logger
}

// NewConsoleSender creates a ConsoleSender writing through logger.
func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSender{logger: logger.With("component", "carrier_console")}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "sms delivered to console",
		"phone", msg.PhoneE164,
		"body", msg.Body,
	)
	return nil
}

func (s *ConsoleSender) Name() string { return KindConsole }

// Package carrier abstracts outbound SMS delivery. The sender worker pulls
// claimed outbox batches and hands each message to a Sender; which Sender is
// wired depends on configuration.
package carrier

import (
	"context"
	"fmt"
)

// Message is a single SMS handed to a carrier.
type Message struct {
	PhoneE164 string
	Body      string
}

// Sender delivers one message. A nil error means the carrier accepted the
// message; the outbox marks the job sent. Any error schedules a retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Carrier kinds accepted by configuration.
const (
	KindConsole = "console"
	KindGateway = "gateway"
)

// ValidateKind reports whether kind names a supported carrier.
func ValidateKind(kind string) error {
	switch kind {
	case KindConsole, KindGateway:
		return nil
	}
	return fmt.Errorf("unknown carrier kind %q", kind)
}

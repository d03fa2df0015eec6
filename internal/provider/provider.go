// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/debt-notifier/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// Each provider makes exactly one delivery attempt per call; failed
// messages are reported to the caller and never retried.
type Provider interface {
	// Send delivers an email message through this provider.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}

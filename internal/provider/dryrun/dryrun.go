// Package dryrun implements a Provider that only reports what would be sent.
package dryrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shineum/debt-notifier/internal/email"
)

// Provider simulates delivery: it never touches the network and always succeeds.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a dry-run Provider that writes to w, or os.Stdout when w is nil.
func New(w io.Writer) *Provider {
	if w == nil {
		w = os.Stdout
	}
	return &Provider{writer: w}
}

// Send prints a one-line summary of the message. It always returns nil.
func (p *Provider) Send(_ context.Context, msg *email.Message) error {
	to := strings.Join(msg.To, ", ")

	slog.Debug("dry-run send", "to", to, "subject", msg.Subject)

	// A failed console write does not turn a simulated send into a failure.
	_, _ = fmt.Fprintf(p.writer, "[DRY-RUN] → %s | %s\n", to, msg.Subject)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "dry-run"
}

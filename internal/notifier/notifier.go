// Package notifier runs one notification batch: load the roster, pick the
// recipients, confirm with the operator, sign in once and send one message
// per recipient in sorted order.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shineum/debt-notifier/internal/auth"
	"github.com/shineum/debt-notifier/internal/console"
	"github.com/shineum/debt-notifier/internal/email"
	"github.com/shineum/debt-notifier/internal/message"
	"github.com/shineum/debt-notifier/internal/provider"
	"github.com/shineum/debt-notifier/internal/provider/dryrun"
	"github.com/shineum/debt-notifier/internal/roster"
	"github.com/shineum/debt-notifier/internal/selector"
)

var (
	// ErrNoRecipients is returned when the selection matched nobody.
	ErrNoRecipients = errors.New("no recipients found")

	// ErrDeclined is returned when the operator did not confirm sending.
	ErrDeclined = errors.New("sending declined by operator")
)

// Config is the per-run configuration.
type Config struct {
	InputPath string
	Roster    roster.Options

	// Delay is the pause between two consecutive sends.
	Delay time.Duration

	// DryRun replaces the real sender with one that only prints.
	DryRun bool
}

// SenderFactory builds the mail provider once a token is available.
type SenderFactory func(ctx context.Context, token string) (provider.Provider, error)

// Deps are the collaborators of a Notifier.
type Deps struct {
	Prompter  console.Prompter
	Out       io.Writer
	Auth      auth.Acquirer
	NewSender SenderFactory

	// Sleep waits between sends. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome is the result of one send.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeDelivered {
		return "delivered"
	}
	return "failed"
}

// SendResult is the outcome for one recipient.
type SendResult struct {
	Recipient string
	Outcome   Outcome
	Reason    string
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Results []SendResult
	OK      int
	Failed  int
}

func (s *Summary) record(r SendResult) {
	s.Results = append(s.Results, r)
	if r.Outcome == OutcomeDelivered {
		s.OK++
	} else {
		s.Failed++
	}
}

// Notifier drives a single run.
type Notifier struct {
	cfg  Config
	deps Deps
}

// New creates a Notifier. Out defaults to os.Stdout and Auth to a no-token
// acquirer.
func New(cfg Config, deps Deps) *Notifier {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Auth == nil {
		deps.Auth = auth.NoToken{}
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepWithContext
	}
	return &Notifier{cfg: cfg, deps: deps}
}

// Run executes the batch. It returns ErrNoRecipients or ErrDeclined on a
// clean abort, roster and auth errors unchanged, and ctx.Err() when
// interrupted. Individual send failures are reported in the Summary, not
// as an error.
func (n *Notifier) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	out := n.deps.Out

	table, err := roster.Load(n.cfg.InputPath, n.cfg.Roster)
	if err != nil {
		return sum, err
	}
	slog.Debug("roster loaded", "path", n.cfg.InputPath, "records", table.Len())

	fmt.Fprint(out, "\nStudent records:\n\n")
	console.WriteRecords(out, table.Records())
	fmt.Fprintf(out, "\nTotal records: %d\n", table.Len())

	recipients, err := selector.Select(ctx, out, table, n.deps.Prompter)
	if err != nil {
		return sum, err
	}
	if len(recipients) == 0 {
		fmt.Fprintln(out, "No recipients found.")
		return sum, ErrNoRecipients
	}

	fmt.Fprint(out, "\nRecipients:\n\n")
	console.WriteRecords(out, selected(table, recipients))
	fmt.Fprintf(out, "\nAddresses found: %d\n", len(recipients))

	answer, err := n.deps.Prompter.Ask(ctx, "Proceed with sending? (y/n): ")
	if err != nil {
		return sum, err
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Fprintln(out, "Cancelled.")
		return sum, ErrDeclined
	}

	token, err := n.deps.Auth.Acquire(ctx)
	if err != nil {
		return sum, err
	}

	sender, err := n.sender(ctx, token)
	if err != nil {
		return sum, err
	}
	slog.Info("sending notices", "provider", sender.Name(), "recipients", len(recipients))

	err = n.sendAll(ctx, sender, table, recipients, &sum)
	n.printSummary(sum)
	return sum, err
}

func (n *Notifier) sender(ctx context.Context, token string) (provider.Provider, error) {
	if n.cfg.DryRun {
		return dryrun.New(n.deps.Out), nil
	}
	if n.deps.NewSender == nil {
		return nil, errors.New("no mail provider configured")
	}
	p, err := n.deps.NewSender(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail provider: %w", err)
	}
	return p, nil
}

// sendAll sends strictly in the given order. When several rows share an
// address the first one supplies the message fields.
func (n *Notifier) sendAll(ctx context.Context, sender provider.Provider, table *roster.Table, recipients []string, sum *Summary) error {
	out := n.deps.Out

	for i, addr := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := n.sendOne(ctx, sender, table, addr)
		if result.Outcome == OutcomeFailed && ctx.Err() != nil {
			return ctx.Err()
		}
		sum.record(result)

		if result.Outcome == OutcomeDelivered {
			fmt.Fprintf(out, "Sent: %s\n", addr)
		} else {
			fmt.Fprintf(out, "Failed for %s: %s\n", addr, result.Reason)
		}

		if i < len(recipients)-1 && n.cfg.Delay > 0 {
			if err := n.deps.Sleep(ctx, n.cfg.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Notifier) sendOne(ctx context.Context, sender provider.Provider, table *roster.Table, addr string) SendResult {
	rec, ok := table.FindByEmail(addr)
	if !ok {
		return SendResult{Recipient: addr, Outcome: OutcomeFailed, Reason: "no matching record"}
	}

	subject, body := message.Build(
		strings.TrimSpace(rec.Name),
		strings.TrimSpace(rec.Discipline),
		strings.TrimSpace(rec.Faculty),
	)

	err := sender.Send(ctx, &email.Message{
		To:       []string{addr},
		Subject:  subject,
		HtmlBody: body,
	})
	if err != nil {
		slog.Warn("send failed", "recipient", addr, "provider", sender.Name(), "error", err)
		return SendResult{Recipient: addr, Outcome: OutcomeFailed, Reason: err.Error()}
	}

	slog.Info("message sent", "recipient", addr, "provider", sender.Name())
	return SendResult{Recipient: addr, Outcome: OutcomeDelivered}
}

func (n *Notifier) printSummary(sum Summary) {
	out := n.deps.Out
	fmt.Fprintln(out, "\n===== SUMMARY =====")
	fmt.Fprintf(out, "Delivered: %d\n", sum.OK)
	fmt.Fprintf(out, "Failed:    %d\n", sum.Failed)

	if sum.Failed == 0 {
		return
	}
	fmt.Fprintln(out, "\nFailed recipients:")
	for _, r := range sum.Results {
		if r.Outcome == OutcomeFailed {
			fmt.Fprintf(out, " - %s: %s\n", r.Recipient, r.Reason)
		}
	}
}

// selected returns the rows whose trimmed email is one of recipients.
func selected(table *roster.Table, recipients []string) []roster.StudentRecord {
	want := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		want[r] = true
	}
	return table.Filter(func(r roster.StudentRecord) bool {
		return want[strings.TrimSpace(r.Email)]
	})
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

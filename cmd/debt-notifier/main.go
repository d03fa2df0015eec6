// Package main is the entry point for the debt notifier.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shineum/debt-notifier/internal/auth"
	"github.com/shineum/debt-notifier/internal/config"
	"github.com/shineum/debt-notifier/internal/console"
	"github.com/shineum/debt-notifier/internal/notifier"
	"github.com/shineum/debt-notifier/internal/provider"
	"github.com/shineum/debt-notifier/internal/provider/graph"
	"github.com/shineum/debt-notifier/internal/provider/ses"
	"github.com/shineum/debt-notifier/internal/roster"
	clienttls "github.com/shineum/debt-notifier/internal/tls"
)

// exitInterrupted is the conventional status for a run stopped by SIGINT.
const exitInterrupted = 130

// options are the command-line flags. Only flags given explicitly override
// the loaded configuration.
type options struct {
	configPath string
	envFile    string
	file       string
	dryRun     bool
	delay      time.Duration
	provider   string
	logLevel   string

	set map[string]bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	os.Exit(run(opts, os.Stdin, os.Stdout))
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("debt-notifier", flag.ContinueOnError)
	opts := &options{set: make(map[string]bool)}

	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "path to .env file; ignored when missing")
	fs.StringVar(&opts.file, "file", "", "spreadsheet with student debts (.xlsx or .csv)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "print messages instead of sending them")
	fs.DurationVar(&opts.delay, "delay", 0, "pause between two sends")
	fs.StringVar(&opts.provider, "provider", "", "mail provider: graph or ses")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// apply overrides cfg with the flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.set["file"] {
		cfg.Input.Path = o.file
	}
	if o.set["dry-run"] {
		cfg.Send.DryRun = o.dryRun
	}
	if o.set["delay"] {
		cfg.Send.Delay = o.delay
	}
	if o.set["provider"] {
		cfg.Provider = strings.ToLower(o.provider)
	}
	if o.set["log-level"] {
		cfg.Logging.Level = strings.ToLower(o.logLevel)
	}
}

func run(opts *options, in io.Reader, out io.Writer) int {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		slog.Error("failed to load .env file", "error", err)
		return 1
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	opts.apply(cfg)

	setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	httpClient, err := clienttls.NewHTTPClient(cfg.Auth.CAFile, 0)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n := notifier.New(notifier.Config{
		InputPath: cfg.Input.Path,
		Roster: roster.Options{
			Sheet:   cfg.Input.Sheet,
			Columns: cfg.Input.Columns,
		},
		Delay:  cfg.Send.Delay,
		DryRun: cfg.Send.DryRun,
	}, notifier.Deps{
		Prompter:  console.NewLinePrompter(in, out),
		Out:       out,
		Auth:      newAcquirer(cfg, httpClient, out),
		NewSender: newSenderFactory(cfg, httpClient),
	})

	slog.Debug("starting debt-notifier",
		"input", cfg.Input.Path,
		"provider", cfg.Provider,
		"dry_run", cfg.Send.DryRun,
		"delay", cfg.Send.Delay,
	)

	_, err = n.Run(ctx)
	return exitCode(err, cfg.Input.Path, out)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger on stderr so log lines stay
// out of the operator's console output.
func setupLogger(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newAcquirer returns the device-code authenticator for Graph. SES carries
// its own credentials and needs no token.
func newAcquirer(cfg *config.Config, httpClient *http.Client, out io.Writer) auth.Acquirer {
	if cfg.Provider == config.ProviderSES {
		return auth.NoToken{}
	}
	return auth.New(auth.Config{
		ClientID:      cfg.Auth.ClientID,
		Tenants:       cfg.Tenants(),
		AuthorityHost: cfg.Auth.AuthorityHost,
		Scopes:        cfg.Auth.Scopes,
		HTTPClient:    httpClient,
		Out:           out,
	})
}

// newSenderFactory chooses the email delivery backend based on configuration.
func newSenderFactory(cfg *config.Config, httpClient *http.Client) notifier.SenderFactory {
	if cfg.Provider == config.ProviderSES {
		return func(ctx context.Context, _ string) (provider.Provider, error) {
			slog.Info("using AWS SES provider",
				"region", cfg.SES.Region,
				"sender", cfg.SES.Sender,
			)
			p, err := ses.New(ctx, ses.Config{
				Region:          cfg.SES.Region,
				AccessKeyID:     cfg.SES.AccessKeyID,
				SecretAccessKey: cfg.SES.SecretAccessKey,
				Sender:          cfg.SES.Sender,
				HTTPClient:      httpClient,
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	return func(_ context.Context, token string) (provider.Provider, error) {
		slog.Info("using Microsoft Graph provider", "send_url", cfg.Graph.SendURL)
		return graph.New(graph.Config{
			SendURL:         cfg.Graph.SendURL,
			Timeout:         cfg.Graph.Timeout,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
			HTTPClient:      httpClient,
		}, token), nil
	}
}

// exitCode reports err to the operator and maps it to the process status.
// Choosing not to send is a clean exit.
func exitCode(err error, inputPath string, out io.Writer) int {
	var (
		schemaErr *roster.SchemaError
		authErr   *auth.AuthError
	)

	switch {
	case err == nil:
		return 0
	case errors.Is(err, notifier.ErrNoRecipients), errors.Is(err, notifier.ErrDeclined):
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "\nStopped by operator.")
		return exitInterrupted
	case errors.Is(err, roster.ErrFileNotFound):
		fmt.Fprintf(out, "File not found: %s\n", inputPath)
	case errors.As(err, &schemaErr):
		fmt.Fprintf(out, "Invalid spreadsheet: %v\n", schemaErr)
	case errors.As(err, &authErr):
		fmt.Fprintf(out, "Authorization failed: %v\n", authErr)
	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return 1
}

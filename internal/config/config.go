// Package config provides environment-variable-first configuration loading
// with optional YAML and .env file layers for the debt notifier.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/debt-notifier/internal/auth"
	"github.com/shineum/debt-notifier/internal/provider/graph"
	"github.com/shineum/debt-notifier/internal/roster"
)

// Provider names accepted in Config.Provider.
const (
	ProviderGraph = "graph"
	ProviderSES   = "ses"
)

// defaultClientID is the public client registered for the dean's office.
const defaultClientID = "4e7eafee-f93e-4e78-a003-1e5f3a0835b3"

// Config holds the complete application configuration.
type Config struct {
	Input    InputConfig   `yaml:"input"`
	Auth     AuthConfig    `yaml:"auth"`
	Provider string        `yaml:"provider"`
	Graph    GraphConfig   `yaml:"graph"`
	SES      SESConfig     `yaml:"ses"`
	Send     SendConfig    `yaml:"send"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InputConfig describes the spreadsheet to read.
type InputConfig struct {
	Path    string         `yaml:"path"`
	Sheet   string         `yaml:"sheet"`
	Columns roster.Columns `yaml:"columns"`
}

// AuthConfig holds the device-code sign-in settings.
type AuthConfig struct {
	ClientID        string   `yaml:"client_id"`
	TenantID        string   `yaml:"tenant_id"`
	FallbackTenants []string `yaml:"fallback_tenants"`
	AuthorityHost   string   `yaml:"authority_host"`
	Scopes          []string `yaml:"scopes"`
	CAFile          string   `yaml:"ca_file"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	SendURL         string        `yaml:"send_url"`
	Timeout         time.Duration `yaml:"timeout"`
	SaveToSentItems bool          `yaml:"save_to_sent_items"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// SendConfig controls the send loop.
type SendConfig struct {
	Delay  time.Duration `yaml:"delay"`
	DryRun bool          `yaml:"dry_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Tenants returns the primary tenant followed by the fallbacks.
func (c *Config) Tenants() []string {
	return append([]string{c.Auth.TenantID}, c.Auth.FallbackTenants...)
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input.Path) == "" {
		return errors.New("input path is required")
	}
	if c.Send.Delay < 0 {
		return fmt.Errorf("send delay must not be negative, got %s", c.Send.Delay)
	}

	switch c.Provider {
	case ProviderGraph:
		if c.Auth.ClientID == "" {
			return errors.New("auth client_id is required for the graph provider")
		}
		if len(c.Auth.Scopes) == 0 {
			return errors.New("at least one auth scope is required for the graph provider")
		}
	case ProviderSES:
		if !c.SESConfigured() {
			return errors.New("SES provider selected but SES_REGION and SES_SENDER are required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Input.Path = "student_debt.xlsx"
	c.Input.Columns = roster.DefaultColumns()

	c.Auth.ClientID = defaultClientID
	c.Auth.TenantID = auth.FallbackTenant
	c.Auth.FallbackTenants = []string{auth.FallbackTenant}
	c.Auth.AuthorityHost = auth.DefaultAuthorityHost
	c.Auth.Scopes = []string{"Mail.Send"}

	c.Provider = ProviderGraph

	c.Graph.SendURL = graph.DefaultSendURL
	c.Graph.Timeout = graph.DefaultTimeout
	c.Graph.SaveToSentItems = true

	c.Send.Delay = 400 * time.Millisecond

	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("DEBT_INPUT_PATH"); v != "" {
		c.Input.Path = v
	}
	if v := os.Getenv("DEBT_INPUT_SHEET"); v != "" {
		c.Input.Sheet = v
	}

	if v := os.Getenv("AUTH_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("AUTH_TENANT_ID"); v != "" {
		c.Auth.TenantID = v
	}
	if v := os.Getenv("AUTH_FALLBACK_TENANTS"); v != "" {
		c.Auth.FallbackTenants = SplitList(v)
	}
	if v := os.Getenv("AUTH_AUTHORITY_HOST"); v != "" {
		c.Auth.AuthorityHost = v
	}
	if v := os.Getenv("AUTH_SCOPES"); v != "" {
		c.Auth.Scopes = SplitList(v)
	}
	if v := os.Getenv("AUTH_CA_FILE"); v != "" {
		c.Auth.CAFile = v
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("GRAPH_SEND_URL"); v != "" {
		c.Graph.SendURL = v
	}
	if v := os.Getenv("GRAPH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Graph.Timeout = d
		}
	}
	if v := os.Getenv("GRAPH_SAVE_TO_SENT_ITEMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Graph.SaveToSentItems = b
		}
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("SEND_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Send.Delay = d
		}
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Send.DryRun = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// SplitList splits a comma- or space-separated list, dropping blanks.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

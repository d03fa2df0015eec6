// Package auth obtains the bearer token used to send mail, through the OAuth
// device-code flow against an ordered list of tenants.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultAuthorityHost is the Microsoft identity platform.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// FallbackTenant is the multi-tenant endpoint tried after the primary tenant.
const FallbackTenant = "organizations"

// Acquirer yields the bearer token for a run.
type Acquirer interface {
	Acquire(ctx context.Context) (string, error)
}

// NoToken is the Acquirer for providers that carry their own credentials.
type NoToken struct{}

// Acquire returns an empty token.
func (NoToken) Acquire(context.Context) (string, error) {
	return "", nil
}

// Config holds the settings for an Authenticator.
type Config struct {
	ClientID string

	// Tenants are tried in order; duplicates and blanks are skipped.
	Tenants []string

	AuthorityHost string
	Scopes        []string

	// HTTPClient is used for all identity platform requests when set.
	HTTPClient *http.Client

	// Out receives the verification URL and user code. Defaults to os.Stdout.
	Out io.Writer
}

// Attempt records one failed tenant.
type Attempt struct {
	Tenant    string
	Authority string
	Detail    string
}

// AuthError is returned when every tenant failed.
type AuthError struct {
	Attempts []Attempt
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("could not acquire a token:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n - %s: %s", a.Authority, a.Detail)
	}
	return b.String()
}

// Authenticator runs the device-code flow. Tokens live in memory only and
// are never written to disk.
type Authenticator struct {
	cfg    Config
	tokens map[string]*oauth2.Token
}

// New creates an Authenticator.
func New(cfg Config) *Authenticator {
	if cfg.AuthorityHost == "" {
		cfg.AuthorityHost = DefaultAuthorityHost
	}
	cfg.AuthorityHost = strings.TrimRight(cfg.AuthorityHost, "/")
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Authenticator{cfg: cfg, tokens: make(map[string]*oauth2.Token)}
}

// Acquire tries each tenant in order: first silently from tokens already
// obtained by this Authenticator, then through the device-code flow. It
// returns *AuthError when all tenants fail. Cancelling ctx stops at once.
func (a *Authenticator) Acquire(ctx context.Context) (string, error) {
	var attempts []Attempt

	for _, tenant := range a.tenants() {
		authority := a.cfg.AuthorityHost + "/" + tenant

		if tok, ok := a.silent(authority); ok {
			slog.Debug("using token from this session", "authority", authority)
			return tok.AccessToken, nil
		}

		slog.Info("starting device code sign-in", "authority", authority)
		tok, err := a.deviceFlow(ctx, authority)
		if err == nil {
			a.tokens[authority] = tok
			slog.Info("signed in", "authority", authority)
			return tok.AccessToken, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("sign-in interrupted: %w", ctxErr)
		}

		slog.Warn("device code sign-in failed", "authority", authority, "error", err)
		attempts = append(attempts, Attempt{
			Tenant:    tenant,
			Authority: authority,
			Detail:    "device_code: " + describe(err),
		})
	}

	return "", &AuthError{Attempts: attempts}
}

// tenants returns the configured tenants in order without blanks or
// repeats, defaulting to FallbackTenant.
func (a *Authenticator) tenants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range a.cfg.Tenants {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		out = []string{FallbackTenant}
	}
	return out
}

func (a *Authenticator) silent(authority string) (*oauth2.Token, bool) {
	tok, ok := a.tokens[authority]
	if !ok || !tok.Valid() {
		return nil, false
	}
	return tok, true
}

func (a *Authenticator) oauthConfig(authority string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: a.cfg.ClientID,
		Scopes:   a.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       authority + "/oauth2/v2.0/authorize",
			TokenURL:      authority + "/oauth2/v2.0/token",
			DeviceAuthURL: authority + "/oauth2/v2.0/devicecode",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

func (a *Authenticator) deviceFlow(ctx context.Context, authority string) (*oauth2.Token, error) {
	if a.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	}
	conf := a.oauthConfig(authority)

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, err
	}
	if da.UserCode == "" {
		return nil, errors.New("device code flow initiation failed")
	}

	fmt.Fprintf(a.cfg.Out, "\nOpen %s and enter the code: %s\n\n", da.VerificationURI, da.UserCode)

	return conf.DeviceAccessToken(ctx, da)
}

// oauthErrorBody is the standard OAuth error response.
type oauthErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// describe prefers the identity platform's error_description. Device
// authorization failures carry it only in the raw body.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		var body oauthErrorBody
		if json.Unmarshal(re.Body, &body) == nil {
			if body.Description != "" {
				return body.Description
			}
			if body.Error != "" {
				return body.Error
			}
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	return err.Error()
}

package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shineum/debt-notifier/internal/email"
)

// DefaultSendURL is the sendMail endpoint for the signed-in user.
const DefaultSendURL = "https://graph.microsoft.com/v1.0/me/sendMail"

// DefaultTimeout bounds a single sendMail request.
const DefaultTimeout = 30 * time.Second

// Config holds the configuration for creating a Provider.
type Config struct {
	SendURL         string
	Timeout         time.Duration
	SaveToSentItems bool

	// HTTPClient is used for all requests. A plain client is used when nil.
	HTTPClient *http.Client
}

// Provider sends emails via the Microsoft Graph API using a delegated
// bearer token obtained once per run.
type Provider struct {
	sendURL         string
	token           string
	timeout         time.Duration
	saveToSentItems bool
	httpClient      *http.Client
}

// New creates a Provider that authorizes every request with token.
func New(cfg Config, token string) *Provider {
	p := &Provider{
		sendURL:         cfg.SendURL,
		token:           token,
		timeout:         cfg.Timeout,
		saveToSentItems: cfg.SaveToSentItems,
		httpClient:      cfg.HTTPClient,
	}
	if p.sendURL == "" {
		p.sendURL = DefaultSendURL
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

// Send submits one sendMail request. HTTP 200 and 202 are success; any other
// status is returned as a *SendError. There is no retry.
func (p *Provider) Send(ctx context.Context, msg *email.Message) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg, p.saveToSentItems))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMail request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return newSendError(resp.StatusCode, body)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "msgraph"
}

// SendError is a non-success response from the sendMail endpoint.
type SendError struct {
	StatusCode int
	Detail     string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
}

// newSendError extracts the error detail from a Graph error body, falling
// back to the raw response text.
func newSendError(statusCode int, body []byte) *SendError {
	detail := strings.TrimSpace(string(body))

	var graphErrResp graphErrorResponse
	if err := json.Unmarshal(body, &graphErrResp); err == nil && graphErrResp.Error.Message != "" {
		detail = graphErrResp.Error.Message
		if graphErrResp.Error.Code != "" {
			detail = graphErrResp.Error.Code + ": " + detail
		}
	}

	if detail == "" {
		detail = http.StatusText(statusCode)
	}
	if detail == "" {
		detail = "unexpected status"
	}

	return &SendError{StatusCode: statusCode, Detail: detail}
}

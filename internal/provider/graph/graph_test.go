package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shineum/debt-notifier/internal/email"
)

func TestBuildSendMailRequest(t *testing.T) {
	t.Parallel()

	msg := &email.Message{
		To:       []string{"alice@example.com"},
		Subject:  "Debt notice",
		HtmlBody: "<p>HTML content</p>",
	}

	req := buildSendMailRequest(msg, true)

	if req.Message.Subject != "Debt notice" {
		t.Errorf("Subject: got %q, want %q", req.Message.Subject, "Debt notice")
	}
	if req.Message.Body.ContentType != "HTML" {
		t.Errorf("Body.ContentType: got %q, want %q", req.Message.Body.ContentType, "HTML")
	}
	if req.Message.Body.Content != "<p>HTML content</p>" {
		t.Errorf("Body.Content: got %q, want %q", req.Message.Body.Content, "<p>HTML content</p>")
	}
	if len(req.Message.ToRecipients) != 1 {
		t.Fatalf("ToRecipients count: got %d, want 1", len(req.Message.ToRecipients))
	}
	if req.Message.ToRecipients[0].EmailAddress.Address != "alice@example.com" {
		t.Errorf("ToRecipients[0]: got %q, want %q", req.Message.ToRecipients[0].EmailAddress.Address, "alice@example.com")
	}
	if !req.SaveToSentItems {
		t.Error("SaveToSentItems: got false, want true")
	}
}

func TestBuildSendMailRequest_WireShape(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(&email.Message{
		To:       []string{"user@example.com"},
		Subject:  "S",
		HtmlBody: "B",
	}, true)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("JSON marshal error: %v", err)
	}

	want := `{"message":{"subject":"S","body":{"contentType":"HTML","content":"B"},` +
		`"toRecipients":[{"emailAddress":{"address":"user@example.com"}}]},"saveToSentItems":true}`
	if string(data) != want {
		t.Errorf("JSON:\n got %s\nwant %s", data, want)
	}
}

func TestProvider_Name(t *testing.T) {
	t.Parallel()

	p := New(Config{}, "token")
	if p.Name() != "msgraph" {
		t.Errorf("Name: got %q, want %q", p.Name(), "msgraph")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p := New(Config{}, "token")
	if p.sendURL != DefaultSendURL {
		t.Errorf("sendURL: got %q, want %q", p.sendURL, DefaultSendURL)
	}
	if p.timeout != DefaultTimeout {
		t.Errorf("timeout: got %v, want %v", p.timeout, DefaultTimeout)
	}
	if p.httpClient == nil {
		t.Error("httpClient should not be nil")
	}
}

func TestProvider_SendSuccess(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusAccepted} {
		status := status
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method: got %s, want POST", r.Method)
				}
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("Authorization header: got %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("Content-Type header: got %q, want %q", r.Header.Get("Content-Type"), "application/json")
				}

				var body sendMailRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("failed to decode request body: %v", err)
				}
				if body.Message.Subject != "Test" {
					t.Errorf("Subject in body: got %q, want %q", body.Message.Subject, "Test")
				}
				if !body.SaveToSentItems {
					t.Error("saveToSentItems: got false, want true")
				}

				w.WriteHeader(status)
			}))
			defer server.Close()

			p := New(Config{
				SendURL:         server.URL,
				SaveToSentItems: true,
				HTTPClient:      server.Client(),
			}, "test-token")

			err := p.Send(context.Background(), &email.Message{
				To:       []string{"user@example.com"},
				Subject:  "Test",
				HtmlBody: "<p>Body</p>",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestProvider_SendFailureStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "graph error body",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`,
			wantDetail: "ErrorAccessDenied: Access is denied.",
		},
		{
			name:       "plain text body",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable",
			wantDetail: "upstream unavailable",
		},
		{
			name:       "json without error message",
			status:     http.StatusBadRequest,
			body:       `{"unexpected":true}`,
			wantDetail: `{"unexpected":true}`,
		},
		{
			name:       "empty body",
			status:     http.StatusUnauthorized,
			body:       "",
			wantDetail: "Unauthorized",
		},
		{
			name:       "other 2xx",
			status:     http.StatusNoContent,
			body:       "",
			wantDetail: "No Content",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := New(Config{SendURL: server.URL, HTTPClient: server.Client()}, "token")
			err := p.Send(context.Background(), &email.Message{
				To:       []string{"bad@example.com"},
				Subject:  "Test",
				HtmlBody: "Body",
			})
			if err == nil {
				t.Fatalf("expected error for %d response, got nil", tt.status)
			}

			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("expected *SendError, got %T", err)
			}
			if sendErr.StatusCode != tt.status {
				t.Errorf("StatusCode: got %d, want %d", sendErr.StatusCode, tt.status)
			}
			if sendErr.Detail != tt.wantDetail {
				t.Errorf("Detail: got %q, want %q", sendErr.Detail, tt.wantDetail)
			}
			if !strings.HasPrefix(err.Error(), strconv.Itoa(tt.status)+": ") {
				t.Errorf("Error(): got %q, want status prefix", err.Error())
			}
		})
	}
}

func TestProvider_NoRetryOnFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := New(Config{SendURL: server.URL, HTTPClient: server.Client()}, "token")
	if err := p.Send(context.Background(), &email.Message{To: []string{"a@example.com"}}); err == nil {
		t.Fatal("expected error for 503 response, got nil")
	}

	if calls.Load() != 1 {
		t.Errorf("request count: got %d, want 1", calls.Load())
	}
}

func TestProvider_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := New(Config{
		SendURL:    server.URL,
		Timeout:    50 * time.Millisecond,
		HTTPClient: server.Client(),
	}, "token")

	err := p.Send(context.Background(), &email.Message{To: []string{"a@example.com"}})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

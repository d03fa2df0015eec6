// Package graphtwin is an in-memory stand-in for the Microsoft identity
// platform device-code endpoints and the Graph sendMail endpoint.
//
// Authority host and send URL of a running Twin can be plugged into the
// authenticator and the graph provider in place of the real services.
package graphtwin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const deviceCodeGrant = "urn:ietf:params:oauth:grant-type:device_code"

// Options shapes the twin's behaviour.
type Options struct {
	// FailTenants reject device-code initiation.
	FailTenants []string

	// DenyTenants initiate normally but the operator "declines" sign-in.
	DenyTenants []string

	// PendingPolls is the number of authorization_pending answers before a
	// token is issued.
	PendingPolls int

	// SendStatus overrides the sendMail response per recipient address.
	SendStatus map[string]int
}

// SentMail is one accepted sendMail request.
type SentMail struct {
	Token           string
	To              []string
	Subject         string
	ContentType     string
	Content         string
	SaveToSentItems bool
}

// Twin is a running fake. It is safe for concurrent use.
type Twin struct {
	server *httptest.Server
	opts   Options

	mu             sync.Mutex
	deviceRequests []string
	polls          map[string]int
	sent           []SentMail
	sendRequests   int
}

// New starts a Twin. Call Close when done.
func New(opts Options) *Twin {
	t := &Twin{
		opts:  opts,
		polls: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/{tenant}/oauth2/v2.0", func(r chi.Router) {
		r.Post("/devicecode", t.deviceCode)
		r.Post("/token", t.token)
	})
	r.Post("/v1.0/me/sendMail", t.sendMail)

	t.server = httptest.NewServer(r)
	return t
}

// Close shuts the server down.
func (t *Twin) Close() {
	t.server.Close()
}

// AuthorityHost is the base URL to use instead of https://login.microsoftonline.com.
func (t *Twin) AuthorityHost() string {
	return t.server.URL
}

// SendURL is the sendMail endpoint of the twin.
func (t *Twin) SendURL() string {
	return t.server.URL + "/v1.0/me/sendMail"
}

// Client returns an HTTP client for the twin.
func (t *Twin) Client() *http.Client {
	return t.server.Client()
}

// TokenFor returns the access token the twin issues for tenant.
func TokenFor(tenant string) string {
	return "twin-token-" + tenant
}

// DeviceRequests lists the tenants that requested a device code, in order.
func (t *Twin) DeviceRequests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.deviceRequests...)
}

// Sent returns every accepted message, in arrival order.
func (t *Twin) Sent() []SentMail {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMail(nil), t.sent...)
}

// SendRequests counts sendMail calls, accepted or not.
func (t *Twin) SendRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendRequests
}

func (t *Twin) deviceCode(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_id") == "" {
		oauthError(w, "invalid_request", "client_id is required")
		return
	}

	t.mu.Lock()
	t.deviceRequests = append(t.deviceRequests, tenant)
	t.mu.Unlock()

	if contains(t.opts.FailTenants, tenant) {
		oauthError(w, "invalid_request", fmt.Sprintf("AADSTS90002: Tenant '%s' not found.", tenant))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      "device-" + tenant,
		"user_code":        "TWIN-" + strings.ToUpper(tenant),
		"verification_uri": "https://microsoft.com/devicelogin",
		"expires_in":       900,
		"interval":         1,
		"message":          "To sign in, use a web browser to open the page and enter the code.",
	})
}

func (t *Twin) token(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != deviceCodeGrant {
		oauthError(w, "unsupported_grant_type", "only the device code grant is supported")
		return
	}
	deviceCode := r.PostForm.Get("device_code")
	if deviceCode != "device-"+tenant {
		oauthError(w, "invalid_grant", "unknown device code")
		return
	}

	if contains(t.opts.DenyTenants, tenant) {
		oauthError(w, "access_denied", "AADSTS70000: The user declined the sign-in request.")
		return
	}

	t.mu.Lock()
	t.polls[deviceCode]++
	pending := t.polls[deviceCode] <= t.opts.PendingPolls
	t.mu.Unlock()

	if pending {
		oauthError(w, "authorization_pending", "AADSTS70016: Pending end-user authorization.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": TokenFor(tenant),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        r.PostForm.Get("scope"),
	})
}

type sendMailBody struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []struct {
			EmailAddress struct {
				Address string `json:"address"`
			} `json:"emailAddress"`
		} `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

func (t *Twin) sendMail(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	t.sendRequests++
	t.mu.Unlock()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		graphError(w, http.StatusUnauthorized, "InvalidAuthenticationToken", "Access token is empty.")
		return
	}

	var body sendMailBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		graphError(w, http.StatusBadRequest, "RequestBodyRead", err.Error())
		return
	}

	msg := SentMail{
		Token:           token,
		Subject:         body.Message.Subject,
		ContentType:     body.Message.Body.ContentType,
		Content:         body.Message.Body.Content,
		SaveToSentItems: body.SaveToSentItems,
	}
	for _, rcpt := range body.Message.ToRecipients {
		msg.To = append(msg.To, rcpt.EmailAddress.Address)
	}
	if len(msg.To) == 0 {
		graphError(w, http.StatusBadRequest, "ErrorInvalidRecipients", "At least one recipient is required.")
		return
	}

	if status, ok := t.opts.SendStatus[msg.To[0]]; ok && status != http.StatusAccepted && status != http.StatusOK {
		graphError(w, status, "ErrorInvalidRecipients", "Recipient "+msg.To[0]+" was rejected.")
		return
	}

	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

func oauthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":             code,
		"error_description": description,
	})
}

func graphError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package email defines the outbound message model shared by all providers.
package email

// Message is one outbound debt notice. It is built from exactly one
// student record and is never persisted.
type Message struct {
	To       []string
	Subject  string
	HtmlBody string
}

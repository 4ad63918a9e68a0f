package email

import (
	"context"
	"fmt"
)

// Message holds the fields needed to send an email. Text and HTML are
// alternative renderings of the same content; at least one should be set.
type Message struct {
	To      []string `json:"to"`
	From    string   `json:"from,omitempty"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
}

// Provider defines the interface each email provider must implement.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// SendError is returned when a provider rejects or fails a send.
type SendError struct {
	Provider   string
	StatusCode int // 0 when the failure happened before an HTTP response
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

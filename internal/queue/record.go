// Package queue defines the delivery record handed to the task store and the
// activity log entries written alongside it.
package queue

import (
	"github.com/gsarma/mailqueue/internal/address"
	"github.com/gsarma/mailqueue/internal/email"
)

// DeliveryState is the record's own delivery status. It starts at
// StatePending and only the delivery worker moves it further.
type DeliveryState string

const (
	StatePending DeliveryState = "PENDING"
	StateSuccess DeliveryState = "SUCCESS"
	StateError   DeliveryState = "ERROR"
)

// Valid reports whether s is one of the known delivery states.
func (s DeliveryState) Valid() bool {
	switch s {
	case StatePending, StateSuccess, StateError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s DeliveryState) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// CanTransition reports whether a record in state s may move to next.
// PENDING is the only state with outgoing transitions.
func (s DeliveryState) CanTransition(next DeliveryState) bool {
	return s == StatePending && next.Terminal()
}

// Content is the message part of a stored record.
type Content struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Delivery tracks the worker's progress on a record. Fields other than
// State, Attempts and Error are written by the worker only.
type Delivery struct {
	State     DeliveryState  `json:"state"`
	Attempts  int            `json:"attempts"`
	Error     *string        `json:"error"`
	StartTime *string        `json:"startTime,omitempty"`
	EndTime   *string        `json:"endTime,omitempty"`
	Info      map[string]any `json:"info,omitempty"`
}

// DeliveryRecord is the document stored for one queued email.
// Identity and creation time are assigned by the store.
type DeliveryRecord struct {
	To       []string `json:"to"`
	From     string   `json:"from,omitempty"`
	Message  Content  `json:"message"`
	Delivery Delivery `json:"delivery"`
}

// Build creates a pending record for recipient. recipient must come from a
// valid address.Result. A zero sender means the system default is used at
// delivery time.
func Build(recipient address.Address, subject, text string, sender address.Address) DeliveryRecord {
	return DeliveryRecord{
		To:   []string{recipient.String()},
		From: sender.String(),
		Message: Content{
			Subject: subject,
			Text:    text,
			HTML:    email.RenderHTML(subject, text),
		},
		Delivery: Delivery{
			State:    StatePending,
			Attempts: 0,
		},
	}
}

// Recipient returns the single "to" address.
func (r DeliveryRecord) Recipient() string {
	if len(r.To) == 0 {
		return ""
	}
	return r.To[0]
}

// EmailMessage converts the record into a provider message. defaultFrom is
// used when the record carries no sender.
func (r DeliveryRecord) EmailMessage(defaultFrom string) email.Message {
	from := r.From
	if from == "" {
		from = defaultFrom
	}
	return email.Message{
		To:      append([]string(nil), r.To...),
		From:    from,
		Subject: r.Message.Subject,
		Text:    r.Message.Text,
		HTML:    r.Message.HTML,
	}
}

// Package mailer ties validation, record building, the task store and the
// activity log together. It is the single entry point used by the CLI and
// the HTTP API.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/address"
	"github.com/gsarma/mailqueue/internal/config"
	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

var (
	ErrEnqueue          = errors.New("failed to queue email")
	ErrSend             = errors.New("failed to send email")
	ErrNoDirectProvider = errors.New("no direct-send provider configured")

	errNoStore = fmt.Errorf("%w: task store not initialized", store.ErrUnavailable)
)

// Request is one email to queue or send. Empty Subject or Text fall back to
// the configured defaults.
type Request struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Receipt identifies a queued record.
type Receipt struct {
	ID        uuid.UUID       `json:"id"`
	Recipient address.Address `json:"recipient"`
}

type Service struct {
	store    store.Gateway
	direct   email.Provider
	defaults config.MessageConfig
	log      zerolog.Logger
}

// New creates a Service. gw is required; direct may be nil, in which case
// SendDirect fails with ErrNoDirectProvider.
func New(gw store.Gateway, direct email.Provider, defaults config.MessageConfig, log zerolog.Logger) (*Service, error) {
	if gw == nil {
		return nil, errNoStore
	}
	return &Service{
		store:    gw,
		direct:   direct,
		defaults: defaults,
		log:      log,
	}, nil
}

// Enqueue validates req.To, stores a pending record and logs the outcome.
// Invalid addresses return the validation error without touching the store.
func (s *Service) Enqueue(ctx context.Context, req Request) (Receipt, error) {
	res := address.Validate(req.To)
	if !res.Valid() {
		s.log.Debug().Str("input", req.To).Str("reason", res.Reason).Msg("rejected address")
		return Receipt{}, res.Err
	}

	if s.store == nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrEnqueue, errNoStore)
	}

	rec := s.build(res.Address, req)
	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.log.Error().Err(err).Str("recipient", res.Address.String()).Msg("queue insert failed")
		s.appendLog(ctx, queue.NewLogEntry(res.Address.String(), queue.LogQueueFailed, err))
		return Receipt{}, fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	s.log.Info().Str("id", id.String()).Str("recipient", res.Address.String()).Msg("email queued")
	s.appendLog(ctx, queue.NewLogEntry(res.Address.String(), queue.LogQueued, nil))
	return Receipt{ID: id, Recipient: res.Address}, nil
}

// SendDirect validates req.To and sends through the direct provider right
// away. The outcome is logged; there is no retry.
func (s *Service) SendDirect(ctx context.Context, req Request) (address.Address, error) {
	res := address.Validate(req.To)
	if !res.Valid() {
		return "", res.Err
	}
	if s.direct == nil {
		return "", ErrNoDirectProvider
	}

	msg := s.build(res.Address, req).EmailMessage(s.defaults.Sender.String())
	if err := s.direct.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("recipient", res.Address.String()).Msg("direct send failed")
		s.appendLog(ctx, queue.NewLogEntry(res.Address.String(), queue.LogFailed, err))
		return "", fmt.Errorf("%w: %w", ErrSend, err)
	}

	s.log.Info().Str("recipient", res.Address.String()).Msg("email sent")
	s.appendLog(ctx, queue.NewLogEntry(res.Address.String(), queue.LogSuccess, nil))
	return res.Address, nil
}

// History returns the most recent activity log entries, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]queue.LogEntry, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	entries, err := s.store.QueryLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return entries, nil
}

// Pending returns stored records for inspection.
func (s *Service) Pending(ctx context.Context, f store.Filter) ([]store.Task, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	tasks, err := s.store.QueryPending(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return tasks, nil
}

func (s *Service) build(to address.Address, req Request) queue.DeliveryRecord {
	subject, text := req.Subject, req.Text
	if subject == "" {
		subject = s.defaults.Subject
	}
	if text == "" {
		text = s.defaults.Body
	}
	return queue.Build(to, subject, text, s.defaults.Sender)
}

// appendLog never fails the caller; a lost log row is only reported.
func (s *Service) appendLog(ctx context.Context, e queue.LogEntry) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendLog(ctx, e); err != nil {
		s.log.Warn().Err(err).
			Str("recipient", e.Recipient).
			Str("status", string(e.Status)).
			Msg("could not write activity log")
	}
}

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

// Queue is the part of the task store the worker drives.
type Queue interface {
	ClaimNext(ctx context.Context, lease time.Duration) (store.Task, error)
	Complete(ctx context.Context, id uuid.UUID, out store.Outcome) error
	AppendLog(ctx context.Context, entry queue.LogEntry) error
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
	// SendTimeout bounds one provider call. It must stay below Lease so a
	// slow send cannot outlive its claim; values outside (0, Lease) become
	// Lease/2.
	SendTimeout time.Duration
	// DefaultFrom is used for records stored without a sender.
	DefaultFrom string
	// ProviderName is recorded in delivery.info.
	ProviderName string
}

// Worker polls the task store for pending records and delivers them
// concurrently. Each record gets exactly one attempt.
type Worker struct {
	queue    Queue
	provider email.Provider
	cfg      Config
	log      zerolog.Logger
}

func New(q Queue, provider email.Provider, cfg Config, log zerolog.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.SendTimeout <= 0 || cfg.SendTimeout >= cfg.Lease {
		cfg.SendTimeout = cfg.Lease / 2
	}
	return &Worker{queue: q, provider: provider, cfg: cfg, log: log}
}

// Start spawns Concurrency goroutines that each poll every PollInterval.
// It blocks until ctx is cancelled and in-flight deliveries have finished.
func (w *Worker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain while there is work so a backlog is not paced by the ticker.
			for ctx.Err() == nil && w.processNext(ctx) {
			}
		}
	}
}

// processNext delivers one record. It reports whether a record was claimed.
func (w *Worker) processNext(ctx context.Context) bool {
	task, err := w.queue.ClaimNext(ctx, w.cfg.Lease)
	if err != nil {
		if !errors.Is(err, store.ErrNoTasks) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("claim failed")
		}
		return false
	}

	log := w.log.With().Str("id", task.ID.String()).Str("recipient", task.Recipient()).Logger()
	msg := task.EmailMessage(w.cfg.DefaultFrom)
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	sendErr := w.provider.Send(sendCtx, msg)
	cancel()

	out := store.Outcome{
		State: queue.StateSuccess,
		Info:  map[string]any{"provider": w.cfg.ProviderName, "attempts": task.Delivery.Attempts},
	}
	status := queue.LogSuccess
	if sendErr != nil {
		reason := sendErr.Error()
		out.State = queue.StateError
		out.Error = &reason
		var se *email.SendError
		if errors.As(sendErr, &se) && se.StatusCode != 0 {
			out.Info["statusCode"] = se.StatusCode
		}
		status = queue.LogFailed
		log.Warn().Err(sendErr).Msg("delivery failed")
	} else {
		log.Info().Msg("delivered")
	}

	// The outcome is written even if ctx was cancelled mid-send.
	writeCtx := context.WithoutCancel(ctx)
	if err := w.queue.Complete(writeCtx, task.ID, out); err != nil {
		log.Error().Err(err).Str("state", string(out.State)).Msg("mark complete failed")
	}

	entry := queue.NewLogEntry(task.Recipient(), status, sendErr)
	entry.Sender = msg.From
	if err := w.queue.AppendLog(writeCtx, entry); err != nil {
		log.Warn().Err(err).Msg("could not write activity log")
	}
	return true
}

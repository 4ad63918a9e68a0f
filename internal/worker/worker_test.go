package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
	"github.com/gsarma/mailqueue/internal/worker"
)

// stubQueue implements worker.Queue for worker tests.
type stubQueue struct {
	claimNextFn func(ctx context.Context, lease time.Duration) (store.Task, error)
	completeFn  func(ctx context.Context, id uuid.UUID, out store.Outcome) error
	appendLogFn func(ctx context.Context, e queue.LogEntry) error
}

func (s *stubQueue) ClaimNext(ctx context.Context, lease time.Duration) (store.Task, error) {
	if s.claimNextFn != nil {
		return s.claimNextFn(ctx, lease)
	}
	return store.Task{}, store.ErrNoTasks
}

func (s *stubQueue) Complete(ctx context.Context, id uuid.UUID, out store.Outcome) error {
	if s.completeFn != nil {
		return s.completeFn(ctx, id, out)
	}
	return nil
}

func (s *stubQueue) AppendLog(ctx context.Context, e queue.LogEntry) error {
	if s.appendLogFn != nil {
		return s.appendLogFn(ctx, e)
	}
	return nil
}

// stubProvider implements email.Provider for tests.
type stubProvider struct {
	sendFn func(ctx context.Context, msg email.Message) error
}

func (s *stubProvider) Send(ctx context.Context, msg email.Message) error {
	if s.sendFn != nil {
		return s.sendFn(ctx, msg)
	}
	return nil
}

var testConfig = worker.Config{
	Concurrency:  1,
	PollInterval: 10 * time.Millisecond,
	Lease:        time.Minute,
	DefaultFrom:  "noreply@example.com",
	ProviderName: "stub",
}

// runWorkerUntilDone starts a single-goroutine worker and waits for done to be closed or the test to time out.
func runWorkerUntilDone(t *testing.T, q worker.Queue, p email.Provider, done <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	w := worker.New(q, p, testConfig, zerolog.Nop())
	go w.Start(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for worker to process task")
	}
}

func makeTask(from string) store.Task {
	rec := queue.Build("user@example.com", "Subject", "Body", "")
	rec.From = from
	rec.Delivery.Attempts = 1
	return store.Task{ID: uuid.New(), CreatedAt: time.Now(), DeliveryRecord: rec}
}

// claimOnce hands out task on the first claim and reports an empty queue after.
func claimOnce(task store.Task) func(context.Context, time.Duration) (store.Task, error) {
	var once sync.Once
	return func(context.Context, time.Duration) (store.Task, error) {
		claimed := false
		once.Do(func() { claimed = true })
		if claimed {
			return task, nil
		}
		return store.Task{}, store.ErrNoTasks
	}
}

func TestWorker_NoTasks(t *testing.T) {
	// When nothing is pending the worker should not send or complete.
	var mu sync.Mutex
	completeCalled, sendCalled := false, false
	q := &stubQueue{
		completeFn: func(context.Context, uuid.UUID, store.Outcome) error {
			mu.Lock()
			completeCalled = true
			mu.Unlock()
			return nil
		},
	}
	p := &stubProvider{sendFn: func(context.Context, email.Message) error {
		mu.Lock()
		sendCalled = true
		mu.Unlock()
		return nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker.New(q, p, testConfig, zerolog.Nop()).Start(ctx) // blocks until timeout

	mu.Lock()
	defer mu.Unlock()
	if completeCalled || sendCalled {
		t.Error("nothing should be sent or completed when the queue is empty")
	}
}

func TestWorker_DeliverySucceeds(t *testing.T) {
	task := makeTask("")
	var (
		outcome store.Outcome
		entry   queue.LogEntry
		sent    email.Message
	)
	done := make(chan struct{})

	q := &stubQueue{
		claimNextFn: claimOnce(task),
		completeFn: func(_ context.Context, id uuid.UUID, out store.Outcome) error {
			if id != task.ID {
				t.Errorf("expected id %s, got %s", task.ID, id)
			}
			outcome = out
			return nil
		},
		appendLogFn: func(_ context.Context, e queue.LogEntry) error {
			entry = e
			close(done)
			return nil
		},
	}
	p := &stubProvider{sendFn: func(_ context.Context, msg email.Message) error {
		sent = msg
		return nil
	}}
	runWorkerUntilDone(t, q, p, done)

	if sent.From != "noreply@example.com" {
		t.Errorf("expected default sender, got %q", sent.From)
	}
	if len(sent.To) != 1 || sent.To[0] != "user@example.com" {
		t.Errorf("unexpected recipients: %v", sent.To)
	}
	if outcome.State != queue.StateSuccess || outcome.Error != nil {
		t.Errorf("expected SUCCESS with no error, got %+v", outcome)
	}
	if outcome.Info["provider"] != "stub" {
		t.Errorf("expected provider in info, got %v", outcome.Info)
	}
	if entry.Status != queue.LogSuccess || entry.Sender != "noreply@example.com" || entry.Error != nil {
		t.Errorf("unexpected log entry: %+v", entry)
	}
}

func TestWorker_DeliveryFails(t *testing.T) {
	task := makeTask("sales@example.com")
	sendErr := &email.SendError{Provider: "sendgrid", StatusCode: 401, Err: errors.New("unauthorized")}
	var (
		outcome store.Outcome
		entry   queue.LogEntry
	)
	done := make(chan struct{})

	q := &stubQueue{
		claimNextFn: claimOnce(task),
		completeFn: func(_ context.Context, _ uuid.UUID, out store.Outcome) error {
			outcome = out
			return nil
		},
		appendLogFn: func(_ context.Context, e queue.LogEntry) error {
			entry = e
			close(done)
			return nil
		},
	}
	p := &stubProvider{sendFn: func(context.Context, email.Message) error { return sendErr }}
	runWorkerUntilDone(t, q, p, done)

	if outcome.State != queue.StateError {
		t.Errorf("expected ERROR, got %s", outcome.State)
	}
	if outcome.Error == nil || *outcome.Error != sendErr.Error() {
		t.Errorf("expected error %q, got %v", sendErr.Error(), outcome.Error)
	}
	if outcome.Info["statusCode"] != 401 {
		t.Errorf("expected statusCode 401 in info, got %v", outcome.Info)
	}
	if entry.Status != queue.LogFailed || entry.Sender != "sales@example.com" {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	if entry.Error == nil || *entry.Error != sendErr.Error() {
		t.Errorf("expected log error detail, got %v", entry.Error)
	}
}

func TestWorker_SingleAttempt(t *testing.T) {
	// A failed delivery is completed as ERROR and never claimed or sent again.
	task := makeTask("")
	var (
		mu    sync.Mutex
		sends int
	)
	done := make(chan struct{})
	q := &stubQueue{
		claimNextFn: claimOnce(task),
		appendLogFn: func(context.Context, queue.LogEntry) error {
			close(done)
			return nil
		},
	}
	p := &stubProvider{sendFn: func(context.Context, email.Message) error {
		mu.Lock()
		sends++
		mu.Unlock()
		return errors.New("boom")
	}}
	runWorkerUntilDone(t, q, p, done)
	time.Sleep(5 * testConfig.PollInterval)

	mu.Lock()
	defer mu.Unlock()
	if sends != 1 {
		t.Errorf("expected exactly one send, got %d", sends)
	}
}

func TestWorker_PassesLease(t *testing.T) {
	got := make(chan time.Duration, 1)
	q := &stubQueue{
		claimNextFn: func(_ context.Context, lease time.Duration) (store.Task, error) {
			select {
			case got <- lease:
			default:
			}
			return store.Task{}, store.ErrNoTasks
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go worker.New(q, &stubProvider{}, testConfig, zerolog.Nop()).Start(ctx)

	select {
	case lease := <-got:
		if lease != testConfig.Lease {
			t.Errorf("expected lease %s, got %s", testConfig.Lease, lease)
		}
	case <-ctx.Done():
		t.Fatal("worker never claimed")
	}
}

// Compile-time check: stubQueue satisfies worker.Queue.
var _ worker.Queue = (*stubQueue)(nil)

// Compile-time check: the Postgres store satisfies worker.Queue.
var _ worker.Queue = (*store.Postgres)(nil)

func TestWorker_SendDeadlineWithinLease(t *testing.T) {
	task := makeTask("")
	var (
		hasDeadline bool
		remaining   time.Duration
	)
	done := make(chan struct{})
	q := &stubQueue{
		claimNextFn: claimOnce(task),
		completeFn: func(context.Context, uuid.UUID, store.Outcome) error {
			close(done)
			return nil
		},
	}
	p := &stubProvider{sendFn: func(ctx context.Context, _ email.Message) error {
		var deadline time.Time
		deadline, hasDeadline = ctx.Deadline()
		remaining = time.Until(deadline)
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.New(q, p, testConfig, zerolog.Nop()).Start(ctx)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	if !hasDeadline {
		t.Fatal("provider call must carry a deadline")
	}
	if remaining <= 0 || remaining >= testConfig.Lease {
		t.Errorf("send deadline %v must fall within the %v lease", remaining, testConfig.Lease)
	}
}

func TestWorker_SlowSendFailsBeforeLeaseExpires(t *testing.T) {
	task := makeTask("")
	var outcome store.Outcome
	done := make(chan struct{})
	q := &stubQueue{
		claimNextFn: claimOnce(task),
		completeFn: func(_ context.Context, _ uuid.UUID, out store.Outcome) error {
			outcome = out
			close(done)
			return nil
		},
	}
	p := &stubProvider{sendFn: func(ctx context.Context, _ email.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	cfg := testConfig
	cfg.Lease = 200 * time.Millisecond
	cfg.SendTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.New(q, p, cfg, zerolog.Nop()).Start(ctx)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("slow send was never cut off")
	}
	if outcome.State != queue.StateError {
		t.Errorf("expected ERROR, got %s", outcome.State)
	}
	if outcome.Error == nil || *outcome.Error != context.DeadlineExceeded.Error() {
		t.Errorf("expected deadline error, got %v", outcome.Error)
	}
}

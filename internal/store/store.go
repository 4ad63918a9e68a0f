// Package store persists delivery records and the activity log in PostgreSQL.
//
// Records live in the emails table as a jsonb document whose field names are
// the ones external consumers read (to, from, message.*, delivery.*). The id
// and creation time are columns assigned here, never by callers.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gsarma/mailqueue/internal/queue"
)

const (
	DefaultLogLimit  = 10
	DefaultTaskLimit = 50
	MaxLimit         = 1000

	defaultTimeout = 5 * time.Second
)

var (
	// ErrUnavailable is returned when the database is missing or unreachable.
	ErrUnavailable = errors.New("task store unavailable")
	// ErrNoTasks is returned by ClaimNext when nothing is ready for delivery.
	ErrNoTasks = errors.New("no pending tasks")
	// ErrNotPending is returned by Complete when the record already left PENDING.
	ErrNotPending = errors.New("task is not pending")
)

//go:embed schema.sql
var schemaSQL string

// DB abstracts the database operations used by the store.
// Satisfied by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway is what the enqueue and direct-send paths need from storage.
type Gateway interface {
	Insert(ctx context.Context, rec queue.DeliveryRecord) (uuid.UUID, error)
	AppendLog(ctx context.Context, entry queue.LogEntry) error
	QueryLogs(ctx context.Context, limit int) ([]queue.LogEntry, error)
	QueryPending(ctx context.Context, f Filter) ([]Task, error)
}

// Task is a stored delivery record with its store-assigned identity.
type Task struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	queue.DeliveryRecord
}

// Filter narrows QueryPending. A zero State matches every state.
type Filter struct {
	State queue.DeliveryState
	Limit int
}

// Outcome is the terminal delivery result written by the worker.
type Outcome struct {
	State queue.DeliveryState `json:"state"`
	Error *string             `json:"error"`
	Info  map[string]any      `json:"info,omitempty"`
}

// Postgres implements Gateway and the worker's queue operations.
type Postgres struct {
	db      DB
	timeout time.Duration
}

// New creates a PostgreSQL-backed store.
func New(db DB) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db connection cannot be nil: %w", ErrUnavailable)
	}
	return &Postgres{db: db, timeout: defaultTimeout}, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return wrap("migrate", err)
	}
	return nil
}

const insertTaskSQL = `INSERT INTO emails (id, doc) VALUES ($1, $2)`

// Insert stores rec and returns its new id.
func (p *Postgres) Insert(ctx context.Context, rec queue.DeliveryRecord) (uuid.UUID, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id := uuid.New()
	if _, err := p.db.Exec(ctx, insertTaskSQL, id, string(doc)); err != nil {
		return uuid.Nil, wrap("insert", err)
	}
	return id, nil
}

const appendLogSQL = `INSERT INTO email_logs (id, recipient, status, error, sender) VALUES ($1, $2, $3, $4, $5)`

// AppendLog adds one activity log row. The timestamp is assigned by the database.
func (p *Postgres) AppendLog(ctx context.Context, entry queue.LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var sender *string
	if entry.Sender != "" {
		sender = &entry.Sender
	}
	_, err := p.db.Exec(ctx, appendLogSQL, uuid.New(), entry.Recipient, string(entry.Status), entry.Error, sender)
	if err != nil {
		return wrap("append log", err)
	}
	return nil
}

const queryLogsSQL = `
        SELECT recipient, status, error, sender, "timestamp"
        FROM email_logs
        ORDER BY "timestamp" DESC
        LIMIT $1`

// QueryLogs returns the newest log entries first, at most limit of them.
func (p *Postgres) QueryLogs(ctx context.Context, limit int) ([]queue.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.Query(ctx, queryLogsSQL, clampLimit(limit, DefaultLogLimit))
	if err != nil {
		return nil, wrap("query logs", err)
	}
	defer rows.Close()

	entries := []queue.LogEntry{}
	for rows.Next() {
		var (
			e      queue.LogEntry
			status string
			sender *string
		)
		if err := rows.Scan(&e.Recipient, &status, &e.Error, &sender, &e.Timestamp); err != nil {
			return nil, wrap("scan log", err)
		}
		e.Status = queue.LogStatus(status)
		if sender != nil {
			e.Sender = *sender
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query logs", err)
	}
	return entries, nil
}

const queryTasksSQL = `
        SELECT id, doc, created_at
        FROM emails
        WHERE ($1 = '' OR doc->'delivery'->>'state' = $1)
        ORDER BY created_at DESC
        LIMIT $2`

// QueryPending returns a snapshot of stored records, newest first.
func (p *Postgres) QueryPending(ctx context.Context, f Filter) ([]Task, error) {
	if f.State != "" && !f.State.Valid() {
		return nil, fmt.Errorf("store: unknown delivery state %q", f.State)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.Query(ctx, queryTasksSQL, string(f.State), clampLimit(f.Limit, DefaultTaskLimit))
	if err != nil {
		return nil, wrap("query tasks", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query tasks", err)
	}
	return tasks, nil
}

const claimNextSQL = `
        UPDATE emails SET
            claimed_at = now(),
            doc = jsonb_set(
                jsonb_set(doc, '{delivery,attempts}',
                    to_jsonb(COALESCE((doc->'delivery'->>'attempts')::int, 0) + 1)),
                '{delivery,startTime}', to_jsonb(now()))
        WHERE id = (
            SELECT id FROM emails
            WHERE doc->'delivery'->>'state' = 'PENDING'
              AND (claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $1))
            ORDER BY created_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, doc, created_at`

// ClaimNext leases the oldest pending record for lease, counting the attempt.
// A lease that expires without Complete makes the record claimable again.
func (p *Postgres) ClaimNext(ctx context.Context, lease time.Duration) (Task, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	t, err := scanTask(p.db.QueryRow(ctx, claimNextSQL, lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNoTasks
	}
	return t, err
}

const completeSQL = `
        UPDATE emails SET
            claimed_at = NULL,
            doc = jsonb_set(doc, '{delivery}',
                (doc->'delivery') || $2::jsonb || jsonb_build_object('endTime', now()))
        WHERE id = $1 AND doc->'delivery'->>'state' = 'PENDING'`

// Complete moves a PENDING record to a terminal state.
func (p *Postgres) Complete(ctx context.Context, id uuid.UUID, out Outcome) error {
	if !queue.StatePending.CanTransition(out.State) {
		return fmt.Errorf("store: invalid transition PENDING -> %s", out.State)
	}
	patch, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("store: encode outcome: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tag, err := p.db.Exec(ctx, completeSQL, id, string(patch))
	if err != nil {
		return wrap("complete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: task %s: %w", id, ErrNotPending)
	}
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		t   Task
		doc []byte
	)
	if err := row.Scan(&t.ID, &doc, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, wrap("scan task", err)
	}
	if err := json.Unmarshal(doc, &t.DeliveryRecord); err != nil {
		return Task{}, fmt.Errorf("store: decode task %s: %w", t.ID, err)
	}
	return t, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// wrap tags connection-level failures with ErrUnavailable so callers can
// tell an unreachable database from a rejected statement.
func wrap(op string, err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("store: %s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/gsarma/mailqueue/internal/address"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

var (
	testTaskID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	testNow    = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *store.Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	s, err := store.New(mock)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return mock, s
}

func pendingDoc(t *testing.T, to string) []byte {
	t.Helper()
	rec := queue.Build(address.Address(to), "Subject", "Body", "")
	doc, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return doc
}

func TestNew_NilDB(t *testing.T) {
	_, err := store.New(nil)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS emails").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "stores record and assigns id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO emails").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "timeout is reported as unavailable",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO emails").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(context.DeadlineExceeded)
			},
			wantErr: store.ErrUnavailable,
		},
		{
			name: "statement failure is not unavailable",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO emails").
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("permission denied for table emails"))
			},
			wantErr: errors.New("store: insert: permission denied for table emails"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, s := newMockStore(t)
			tt.setupMock(mock)

			rec := queue.Build("test@example.com", "Hi", "Body", "")
			id, err := s.Insert(context.Background(), rec)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, tt.wantErr) && err.Error() != tt.wantErr.Error() {
					t.Errorf("expected error %q, got %q", tt.wantErr, err)
				}
				if id != uuid.Nil {
					t.Errorf("expected nil id on failure, got %s", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id == uuid.Nil {
				t.Error("expected a non-nil id")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet mock expectations: %v", err)
			}
		})
	}
}

func TestInsert_DistinctIDs(t *testing.T) {
	mock, s := newMockStore(t)
	for range 2 {
		mock.ExpectExec("INSERT INTO emails").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	rec := queue.Build("test@example.com", "Hi", "Body", "")
	a, err := s.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	b, err := s.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if a == b {
		t.Errorf("identical records must get distinct ids, both got %s", a)
	}
}

func TestAppendLog(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectExec("INSERT INTO email_logs").
		WithArgs(pgxmock.AnyArg(), "test@example.com", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := queue.NewLogEntry("test@example.com", queue.LogQueued, nil)
	if err := s.AppendLog(context.Background(), entry); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestQueryLogs(t *testing.T) {
	logColumns := []string{"recipient", "status", "error", "sender", "timestamp"}
	system := queue.SystemSender
	reason := "smtp: connection refused"

	tests := []struct {
		name      string
		limit     int
		wantLimit int
		rows      *pgxmock.Rows
		check     func(t *testing.T, got []queue.LogEntry)
	}{
		{
			name:      "returns rows in store order",
			limit:     5,
			wantLimit: 5,
			rows: pgxmock.NewRows(logColumns).
				AddRow("b@example.com", "failed", &reason, &system, testNow).
				AddRow("a@example.com", "queued", nil, &system, testNow.Add(-time.Minute)),
			check: func(t *testing.T, got []queue.LogEntry) {
				t.Helper()
				if len(got) != 2 {
					t.Fatalf("expected 2 entries, got %d", len(got))
				}
				if got[0].Recipient != "b@example.com" || got[0].Status != queue.LogFailed {
					t.Errorf("unexpected first entry: %+v", got[0])
				}
				if got[0].Error == nil || *got[0].Error != reason {
					t.Errorf("expected error detail %q, got %v", reason, got[0].Error)
				}
				if got[1].Error != nil {
					t.Errorf("expected no error detail, got %q", *got[1].Error)
				}
				if got[1].Sender != queue.SystemSender {
					t.Errorf("expected sender %q, got %q", queue.SystemSender, got[1].Sender)
				}
				if !got[0].Timestamp.After(got[1].Timestamp) {
					t.Error("expected newest entry first")
				}
			},
		},
		{
			name:      "non-positive limit uses default",
			limit:     0,
			wantLimit: store.DefaultLogLimit,
			rows:      pgxmock.NewRows(logColumns),
			check: func(t *testing.T, got []queue.LogEntry) {
				t.Helper()
				if got == nil || len(got) != 0 {
					t.Errorf("expected empty non-nil slice, got %#v", got)
				}
			},
		},
		{
			name:      "limit is capped",
			limit:     1 << 20,
			wantLimit: store.MaxLimit,
			rows:      pgxmock.NewRows(logColumns),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, s := newMockStore(t)
			mock.ExpectQuery("FROM email_logs").
				WithArgs(tt.wantLimit).
				WillReturnRows(tt.rows)

			got, err := s.QueryLogs(context.Background(), tt.limit)
			if err != nil {
				t.Fatalf("QueryLogs: %v", err)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet mock expectations: %v", err)
			}
		})
	}
}

func TestQueryPending(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("FROM emails").
		WithArgs("PENDING", 3).
		WillReturnRows(
			pgxmock.NewRows([]string{"id", "doc", "created_at"}).
				AddRow(testTaskID, pendingDoc(t, "test@example.com"), testNow),
		)

	tasks, err := s.QueryPending(context.Background(), store.Filter{State: queue.StatePending, Limit: 3})
	if err != nil {
		t.Fatalf("QueryPending: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.ID != testTaskID || !got.CreatedAt.Equal(testNow) {
		t.Errorf("unexpected identity: %s %s", got.ID, got.CreatedAt)
	}
	if got.Recipient() != "test@example.com" {
		t.Errorf("expected recipient test@example.com, got %q", got.Recipient())
	}
	if got.Delivery.State != queue.StatePending || got.Delivery.Attempts != 0 {
		t.Errorf("unexpected delivery: %+v", got.Delivery)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestQueryPending_UnknownState(t *testing.T) {
	_, s := newMockStore(t)
	_, err := s.QueryPending(context.Background(), store.Filter{State: "queued"})
	if err == nil || !strings.Contains(err.Error(), "unknown delivery state") {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestClaimNext(t *testing.T) {
	t.Run("returns claimed task", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery("UPDATE emails SET").
			WithArgs(300.0).
			WillReturnRows(
				pgxmock.NewRows([]string{"id", "doc", "created_at"}).
					AddRow(testTaskID, pendingDoc(t, "test@example.com"), testNow),
			)

		task, err := s.ClaimNext(context.Background(), 5*time.Minute)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if task.ID != testTaskID {
			t.Errorf("expected id %s, got %s", testTaskID, task.ID)
		}
	})

	t.Run("empty queue", func(t *testing.T) {
		mock, s := newMockStore(t)
		mock.ExpectQuery("UPDATE emails SET").
			WithArgs(60.0).
			WillReturnError(pgx.ErrNoRows)

		_, err := s.ClaimNext(context.Background(), time.Minute)
		if !errors.Is(err, store.ErrNoTasks) {
			t.Fatalf("expected ErrNoTasks, got %v", err)
		}
	})
}

func TestComplete(t *testing.T) {
	reason := "rejected"
	tests := []struct {
		name      string
		outcome   store.Outcome
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name:    "success",
			outcome: store.Outcome{State: queue.StateSuccess, Info: map[string]any{"provider": "smtp"}},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE emails SET").
					WithArgs(testTaskID, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name:    "error with detail",
			outcome: store.Outcome{State: queue.StateError, Error: &reason},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE emails SET").
					WithArgs(testTaskID, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name:    "already terminal",
			outcome: store.Outcome{State: queue.StateSuccess},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("UPDATE emails SET").
					WithArgs(testTaskID, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			wantErr: store.ErrNotPending,
		},
		{
			name:      "back to pending is rejected",
			outcome:   store.Outcome{State: queue.StatePending},
			setupMock: func(pgxmock.PgxPoolIface) {},
			wantErr:   errors.New("store: invalid transition PENDING -> PENDING"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, s := newMockStore(t)
			tt.setupMock(mock)

			err := s.Complete(context.Background(), testTaskID, tt.outcome)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, tt.wantErr) && err.Error() != tt.wantErr.Error() {
					t.Errorf("expected error %q, got %q", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet mock expectations: %v", err)
			}
		})
	}
}

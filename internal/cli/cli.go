// Package cli implements the mailq terminal frontend: one-shot sends,
// history and queue inspection, and the interactive prompt.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gsarma/mailqueue/internal/address"
	"github.com/gsarma/mailqueue/internal/mailer"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

const (
	ExitOK      = 0
	ExitFailure = 1
)

// Mailer is the service surface the frontend drives.
type Mailer interface {
	Enqueue(ctx context.Context, req mailer.Request) (mailer.Receipt, error)
	SendDirect(ctx context.Context, req mailer.Request) (address.Address, error)
	History(ctx context.Context, limit int) ([]queue.LogEntry, error)
	Pending(ctx context.Context, f store.Filter) ([]store.Task, error)
}

// App writes user-facing output to Out. Diagnostics go to the logger, not here.
type App struct {
	Svc   Mailer
	In    io.Reader
	Out   io.Writer
	Color bool
	// Direct sends through the provider instead of queueing.
	Direct bool
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func (a *App) paint(color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if a.Color {
		msg = color + msg + ansiReset
	}
	fmt.Fprintln(a.Out, msg)
}

// Send processes one address and returns the process exit code.
func (a *App) Send(ctx context.Context, raw string) int {
	if a.submit(ctx, raw) {
		return ExitOK
	}
	return ExitFailure
}

// submit queues or sends raw and reports the outcome. It returns false on
// any failure, including an invalid address.
func (a *App) submit(ctx context.Context, raw string) bool {
	req := mailer.Request{To: raw}

	if a.Direct {
		to, err := a.Svc.SendDirect(ctx, req)
		if err != nil {
			a.reportError(raw, err)
			return false
		}
		a.paint(ansiGreen, "Email sent to %s", to)
		return true
	}

	receipt, err := a.Svc.Enqueue(ctx, req)
	if err != nil {
		a.reportError(raw, err)
		return false
	}
	a.paint(ansiGreen, "Email to %s queued. Tracking ID: %s", receipt.Recipient, receipt.ID)
	return true
}

func (a *App) reportError(raw string, err error) {
	switch {
	case address.IsValidationError(err):
		a.paint(ansiRed, "Invalid email address %q: %v", raw, err)
	case errors.Is(err, store.ErrUnavailable):
		a.paint(ansiRed, "Task store is unavailable, try again later.")
	case errors.Is(err, mailer.ErrNoDirectProvider):
		a.paint(ansiRed, "Direct send is not configured. Run gmail-auth first.")
	default:
		a.paint(ansiRed, "Error: %v", err)
	}
}

// Interactive reads addresses line by line until q, quit, exit or EOF.
// Invalid addresses are reported and the loop continues.
func (a *App) Interactive(ctx context.Context) int {
	a.paint(ansiCyan, "mailq interactive mode. Type q, quit or exit to leave.")
	sc := bufio.NewScanner(a.In)
	for {
		fmt.Fprint(a.Out, "Recipient: ")
		if !sc.Scan() {
			fmt.Fprintln(a.Out)
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "q", "quit", "exit":
			a.paint(ansiYellow, "Bye.")
			return ExitOK
		}
		a.submit(ctx, line)
		if ctx.Err() != nil {
			return ExitFailure
		}
	}
	if err := sc.Err(); err != nil {
		a.paint(ansiRed, "Error reading input: %v", err)
		return ExitFailure
	}
	return ExitOK
}

// History prints the newest activity log entries as a table.
func (a *App) History(ctx context.Context, limit int) int {
	entries, err := a.Svc.History(ctx, limit)
	if err != nil {
		a.reportError("", err)
		return ExitFailure
	}
	if len(entries) == 0 {
		a.paint(ansiYellow, "No activity recorded yet.")
		return ExitOK
	}

	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tRECIPIENT\tSENDER\tERROR")
	for _, e := range entries {
		detail := ""
		if e.Error != nil {
			detail = *e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Status, e.Recipient, e.Sender, detail)
	}
	if err := tw.Flush(); err != nil {
		return ExitFailure
	}
	return ExitOK
}

// Queue dumps stored records as indented JSON.
func (a *App) Queue(ctx context.Context, f store.Filter) int {
	tasks, err := a.Svc.Pending(ctx, f)
	if err != nil {
		a.reportError("", err)
		return ExitFailure
	}
	if len(tasks) == 0 {
		a.paint(ansiYellow, "Queue is empty.")
		return ExitOK
	}
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		a.paint(ansiRed, "Error: %v", err)
		return ExitFailure
	}
	return ExitOK
}

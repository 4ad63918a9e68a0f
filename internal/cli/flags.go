package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

// Command is the action selected by the mailq flags.
type Command int

const (
	CommandInteractive Command = iota
	CommandSend
	CommandHistory
	CommandQueue
)

// Options is the parsed mailq command line.
type Options struct {
	Command   Command
	Recipient string
	Direct    bool
	Limit     int
	Filter    store.Filter
}

// ParseFlags parses the mailq arguments (without the program name).
// An explicitly passed --email, even an empty one, selects CommandSend so the
// address is validated instead of falling through to the prompt.
func ParseFlags(args []string, errOut io.Writer) (Options, error) {
	fs := flag.NewFlagSet("mailq", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		opts       Options
		history    bool
		checkQueue bool
		state      string
	)
	fs.StringVar(&opts.Recipient, "email", "", "recipient address to queue (or send with --direct)")
	fs.StringVar(&opts.Recipient, "recipient", "", "alias for --email")
	fs.BoolVar(&opts.Direct, "direct", false, "send through the provider instead of queueing")
	fs.BoolVar(&history, "history", false, "show recent activity log entries")
	fs.BoolVar(&checkQueue, "check-queue", false, "dump stored delivery records")
	fs.StringVar(&state, "state", "", "with --check-queue: PENDING, SUCCESS or ERROR")
	fs.IntVar(&opts.Limit, "limit", 0, "maximum entries for --history / --check-queue")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	opts.Filter = store.Filter{State: queue.DeliveryState(strings.ToUpper(state)), Limit: opts.Limit}
	if opts.Filter.State != "" && !opts.Filter.State.Valid() {
		return Options{}, fmt.Errorf("unknown --state %q", state)
	}

	recipientSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "email" || f.Name == "recipient" {
			recipientSet = true
		}
	})

	switch {
	case history:
		opts.Command = CommandHistory
	case checkQueue:
		opts.Command = CommandQueue
	case recipientSet:
		opts.Command = CommandSend
	default:
		opts.Command = CommandInteractive
	}
	return opts, nil
}

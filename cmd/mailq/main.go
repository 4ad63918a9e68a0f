// mailq queues emails for the delivery worker or sends them directly.
//
// Usage:
//
//	mailq --email user@example.com            queue one email
//	mailq --email user@example.com --direct   send now through Gmail
//	mailq --history [--limit N]               recent activity
//	mailq --check-queue [--state S] [--limit N]
//	mailq                                     interactive prompt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/cli"
	"github.com/gsarma/mailqueue/internal/config"
	"github.com/gsarma/mailqueue/internal/db"
	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/logger"
	"github.com/gsarma/mailqueue/internal/mailer"
	"github.com/gsarma/mailqueue/internal/providers"
	"github.com/gsarma/mailqueue/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	opts, err := cli.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cli.ExitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitFailure
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error().Err(err).Msg("invalid configuration")
		return cli.ExitFailure
	}
	baseLog, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		boot.Error().Err(err).Msg("invalid LOG_LEVEL")
		return cli.ExitFailure
	}
	log := *baseLog

	if err := cfg.RequireDatabase(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return cli.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := db.Connect(ctx, db.DefaultConfig(cfg.Database.URL))
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return cli.ExitFailure
	}
	defer pool.Close()

	tasks, err := store.New(pool)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise task store")
		return cli.ExitFailure
	}
	if err := tasks.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to apply schema")
		return cli.ExitFailure
	}

	var directProvider email.Provider
	if opts.Direct {
		if err := cfg.RequireGmail(); err != nil {
			log.Error().Err(err).Msg("invalid gmail configuration")
			return cli.ExitFailure
		}
		p, err := providers.Gmail(ctx, cfg.Gmail, cfg.Message.Sender.String())
		if err != nil {
			log.Error().Err(err).Msg("failed to initialise gmail")
			return cli.ExitFailure
		}
		directProvider = p
	}

	svc, err := mailer.New(tasks, directProvider, cfg.Message, logger.Component(log, "mailer"))
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise mailer")
		return cli.ExitFailure
	}
	app := &cli.App{
		Svc:    svc,
		In:     os.Stdin,
		Out:    os.Stdout,
		Color:  isTerminal(os.Stdout) && os.Getenv("NO_COLOR") == "",
		Direct: opts.Direct,
	}

	switch opts.Command {
	case cli.CommandHistory:
		return app.History(ctx, opts.Limit)
	case cli.CommandQueue:
		return app.Queue(ctx, opts.Filter)
	case cli.CommandSend:
		return app.Send(ctx, opts.Recipient)
	default:
		return app.Interactive(ctx)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/api"
	"github.com/gsarma/mailqueue/internal/config"
	"github.com/gsarma/mailqueue/internal/db"
	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/logger"
	"github.com/gsarma/mailqueue/internal/mailer"
	"github.com/gsarma/mailqueue/internal/providers"
	"github.com/gsarma/mailqueue/internal/store"
	"github.com/gsarma/mailqueue/internal/worker"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	baseLog, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid LOG_LEVEL")
	}
	log := *baseLog

	if err := errors.Join(cfg.RequireDatabase(), cfg.RequireServer()); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	runWorker := cfg.Server.Mode != config.ModeAPI
	if runWorker {
		if err := cfg.RequireDelivery(); err != nil {
			log.Fatal().Err(err).Msg("invalid delivery configuration")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, db.DefaultConfig(cfg.Database.URL))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	tasks, err := store.New(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise task store")
	}
	if err := tasks.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	var w *worker.Worker
	if runWorker {
		provider, err := providers.Delivery(ctx, cfg, logger.Component(log, "providers"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise delivery provider")
		}
		w = worker.New(tasks, provider, worker.Config{
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			Lease:        cfg.Worker.Lease,
			DefaultFrom:  cfg.Message.Sender.String(),
			ProviderName: cfg.Delivery.Provider,
		}, logger.Component(log, "worker"))
	}

	switch cfg.Server.Mode {
	case config.ModeWorker:
		log.Info().Msg("starting in worker-only mode")
		w.Start(ctx) // blocks until ctx cancelled
	case config.ModeAPI:
		// API-only: no embedded worker goroutines; scale workers separately.
		log.Info().Msg("starting in api-only mode")
		serve(ctx, cfg, tasks, log)
	default:
		// Default: run both API server and worker in the same process.
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Start(ctx)
		}()
		serve(ctx, cfg, tasks, log)
		<-done
	}
}

func serve(ctx context.Context, cfg *config.Config, tasks store.Gateway, log zerolog.Logger) {
	var direct email.Provider
	if cfg.RequireGmail() == nil {
		p, err := providers.Gmail(ctx, cfg.Gmail, cfg.Message.Sender.String())
		if err != nil {
			log.Warn().Err(err).Msg("direct send disabled")
		} else {
			direct = p
		}
	}
	svc, err := mailer.New(tasks, direct, cfg.Message, logger.Component(log, "mailer"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise mailer")
	}

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger.Component(log, "http")))
	api.RegisterRoutes(router, svc, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

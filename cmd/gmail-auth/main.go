// gmail-auth runs the one-time Gmail consent flow. It serves the redirect
// URL locally, prints the consent link and stores the resulting token
// encrypted at GMAIL_TOKEN_PATH.
//
// Usage:
//
//	go run ./cmd/gmail-auth
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/config"
	"github.com/gsarma/mailqueue/internal/crypto"
	"github.com/gsarma/mailqueue/internal/logger"
	"github.com/gsarma/mailqueue/internal/oauth"
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

	if err := cfg.RequireGmail(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	enc, err := crypto.NewEncryptor(cfg.Gmail.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise encryptor")
	}
	google, err := oauth.LoadGoogleProvider(cfg.Gmail.CredentialsPath, cfg.Gmail.RedirectURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gmail credentials")
	}
	redirect, err := url.Parse(cfg.Gmail.RedirectURL)
	if err != nil || redirect.Host == "" {
		log.Fatal().Str("url", cfg.Gmail.RedirectURL).Msg("GMAIL_REDIRECT_URL must be an absolute URL")
	}

	state, err := oauth.NewState()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate state")
	}

	tokens := oauth.NewTokenFile(cfg.Gmail.TokenPath, enc)
	result := make(chan error, 1)
	mux := http.NewServeMux()
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	mux.Handle(callbackPath, oauth.CallbackHandler(google, state, tokens.Save, result))

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		log.Fatal().Err(err).Str("addr", redirect.Host).Msg("failed to listen for the redirect")
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			result <- err
		}
	}()

	fmt.Println("Open this URL in your browser to authorize Gmail sending:")
	fmt.Println()
	fmt.Println(google.AuthURL(state))
	fmt.Println()
	log.Info().Str("addr", redirect.Host).Msg("waiting for OAuth redirect")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var flowErr error
	select {
	case flowErr = <-result:
	case <-ctx.Done():
		flowErr = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if flowErr != nil {
		log.Fatal().Err(flowErr).Msg("authorization failed")
	}
	log.Info().Str("path", cfg.Gmail.TokenPath).Msg("gmail token saved")
}

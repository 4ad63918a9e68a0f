// Package providers builds the configured email.Provider implementations.
package providers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gsarma/mailqueue/internal/config"
	"github.com/gsarma/mailqueue/internal/crypto"
	"github.com/gsarma/mailqueue/internal/email"
	"github.com/gsarma/mailqueue/internal/oauth"
)

// Delivery constructs the provider the worker sends through, selected by
// DELIVERY_PROVIDER.
func Delivery(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (email.Provider, error) {
	d := cfg.Delivery
	var (
		provider email.Provider
		err      error
	)
	switch d.Provider {
	case "smtp":
		provider = email.NewSMTPProvider(email.SMTPConfig{
			Host:     d.SMTPHost,
			Port:     d.SMTPPort,
			Username: d.SMTPUsername,
			Password: d.SMTPPassword,
		})
	case "sendgrid":
		provider = email.NewSendGridProvider(email.SendGridConfig{
			APIKey:      d.SendGridAPIKey,
			DefaultFrom: cfg.Message.Sender.String(),
		})
	case "gmail":
		provider, err = Gmail(ctx, cfg.Gmail, cfg.Message.Sender.String())
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("providers: unsupported delivery provider %q", d.Provider)
	}

	logger.Info().Str("backend", d.Provider).Msg("email provider initialised")
	return provider, nil
}

// Gmail constructs the Gmail API provider from the client credentials file
// and the encrypted token written by gmail-auth. The token is refreshed and
// saved back as needed.
func Gmail(ctx context.Context, cfg config.GmailConfig, from string) (*email.GmailProvider, error) {
	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("providers: gmail token key: %w", err)
	}
	google, err := oauth.LoadGoogleProvider(cfg.CredentialsPath, cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("providers: gmail credentials: %w", err)
	}
	client, err := oauth.NewGmailClient(ctx, google, oauth.NewTokenFile(cfg.TokenPath, enc))
	if err != nil {
		return nil, fmt.Errorf("providers: gmail token: %w", err)
	}
	return email.NewGmailProvider(client, from), nil
}

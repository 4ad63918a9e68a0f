// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gsarma/mailqueue/internal/address"
)

// Config captures all runtime configuration. Each binary validates only the
// sections it uses (see the Require* methods).
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Message  MessageConfig
	Gmail    GmailConfig
	Delivery DeliveryConfig
	Server   ServerConfig
	Worker   WorkerConfig
}

type AppConfig struct {
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL string
}

// MessageConfig is the content used when a caller does not supply its own.
type MessageConfig struct {
	Sender  address.Address
	Subject string
	Body    string
}

type GmailConfig struct {
	CredentialsPath string
	TokenPath       string
	RedirectURL     string
	EncryptionKey   string
}

// DeliveryConfig selects and configures the provider used by the worker.
type DeliveryConfig struct {
	Provider       string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
}

type ServerConfig struct {
	Port   string
	Mode   string
	APIKey string
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
}

const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeBoth   = "both"
)

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error

	smtpPort, err := getInt("SMTP_PORT", 587)
	errs = append(errs, err)
	concurrency, err := getInt("WORKER_CONCURRENCY", 1)
	errs = append(errs, err)
	poll, err := getDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond)
	errs = append(errs, err)
	lease, err := getDuration("WORKER_LEASE", 5*time.Minute)
	errs = append(errs, err)

	var sender address.Address
	if raw := os.Getenv("SENDER_EMAIL"); raw != "" {
		res := address.Validate(raw)
		if !res.Valid() {
			errs = append(errs, fmt.Errorf("SENDER_EMAIL: %w", res.Err))
		}
		sender = res.Address
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Message: MessageConfig{
			Sender:  sender,
			Subject: getEnv("EMAIL_SUBJECT", "Test E-postası"),
			Body:    getEnv("EMAIL_BODY", "Merhaba Dünya!"),
		},
		Gmail: GmailConfig{
			CredentialsPath: getEnv("GMAIL_CREDENTIALS_PATH", "config/gmail_credentials.json"),
			TokenPath:       getEnv("GMAIL_TOKEN_PATH", "config/gmail_token.enc"),
			RedirectURL:     getEnv("GMAIL_REDIRECT_URL", "http://localhost:9999/callback"),
			EncryptionKey:   os.Getenv("ROOT_ENCRYPTION_KEY"),
		},
		Delivery: DeliveryConfig{
			Provider:       strings.ToLower(getEnv("DELIVERY_PROVIDER", "smtp")),
			SMTPHost:       os.Getenv("SMTP_HOST"),
			SMTPPort:       smtpPort,
			SMTPUsername:   os.Getenv("SMTP_USERNAME"),
			SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		},
		Server: ServerConfig{
			Port:   getEnv("PORT", "8080"),
			Mode:   strings.ToLower(getEnv("MODE", ModeBoth)),
			APIKey: os.Getenv("API_KEY"),
		},
		Worker: WorkerConfig{
			Concurrency:  concurrency,
			PollInterval: poll,
			Lease:        lease,
		},
	}, nil
}

// RequireDatabase checks the settings every binary that touches the task
// store needs.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// RequireGmail checks the settings needed for the Gmail direct-send path.
func (c *Config) RequireGmail() error {
	if c.Gmail.CredentialsPath == "" {
		return errors.New("GMAIL_CREDENTIALS_PATH is required")
	}
	if c.Gmail.EncryptionKey == "" {
		return errors.New("ROOT_ENCRYPTION_KEY is required")
	}
	return nil
}

// RequireDelivery checks the settings of the configured delivery provider.
func (c *Config) RequireDelivery() error {
	d := c.Delivery
	switch d.Provider {
	case "smtp":
		if d.SMTPHost == "" || d.SMTPUsername == "" || d.SMTPPassword == "" {
			return errors.New("SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD are required for smtp delivery")
		}
	case "sendgrid":
		if d.SendGridAPIKey == "" {
			return errors.New("SENDGRID_API_KEY is required for sendgrid delivery")
		}
	case "gmail":
		return c.RequireGmail()
	default:
		return fmt.Errorf("unsupported DELIVERY_PROVIDER: %s", d.Provider)
	}
	if c.Worker.Concurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// RequireServer checks the HTTP server settings.
func (c *Config) RequireServer() error {
	switch c.Server.Mode {
	case ModeAPI, ModeWorker, ModeBoth:
	default:
		return fmt.Errorf("unsupported MODE: %s", c.Server.Mode)
	}
	if c.Server.Mode != ModeWorker && c.Server.APIKey == "" {
		return errors.New("API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

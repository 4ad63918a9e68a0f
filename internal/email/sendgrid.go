package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
	sendGridTimeout  = 30 * time.Second
)

// SendGridConfig holds credentials for the SendGrid API.
type SendGridConfig struct {
	APIKey string `json:"api_key"`
	// DefaultFrom is used when a message carries no sender.
	DefaultFrom string `json:"default_from"`
}

// SendGridProvider sends email via the SendGrid v3 Mail Send API.
type SendGridProvider struct {
	cfg      SendGridConfig
	client   *http.Client
	endpoint string
}

func NewSendGridProvider(cfg SendGridConfig) *SendGridProvider {
	return &SendGridProvider{cfg: cfg, client: &http.Client{Timeout: sendGridTimeout}, endpoint: sendGridEndpoint}
}

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	toList := make([]map[string]string, len(msg.To))
	for i, addr := range msg.To {
		toList[i] = map[string]string{"email": addr}
	}

	from := msg.From
	if from == "" {
		from = p.cfg.DefaultFrom
	}

	// SendGrid requires text/plain to precede text/html.
	var content []map[string]string
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})
	}
	if len(content) == 0 {
		return &SendError{Provider: "sendgrid", Err: errEmptyBody}
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": toList},
		},
		"from":    map[string]string{"email": from},
		"subject": msg.Subject,
		"content": content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &SendError{Provider: "sendgrid", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &SendError{Provider: "sendgrid", StatusCode: resp.StatusCode, Err: errors.New("request rejected")}
	}
	return nil
}

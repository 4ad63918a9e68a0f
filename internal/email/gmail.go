package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const gmailSendEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// GmailProvider sends mail through the Gmail API users.messages.send call.
// The HTTP client must already carry OAuth credentials with the gmail.send
// scope (see internal/oauth); token refresh happens inside that client.
type GmailProvider struct {
	client   *http.Client
	from     string
	endpoint string
}

// NewGmailProvider returns a provider that sends as from. An empty from lets
// Gmail fill in the authenticated account.
func NewGmailProvider(client *http.Client, from string) *GmailProvider {
	return &GmailProvider{client: client, from: from, endpoint: gmailSendEndpoint}
}

func (p *GmailProvider) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = p.from
	}
	raw, err := buildMIME(msg)
	if err != nil {
		return &SendError{Provider: "gmail", Err: err}
	}

	body, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return fmt.Errorf("marshal gmail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gmail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &SendError{Provider: "gmail", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		detail := "request rejected"
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return &SendError{Provider: "gmail", StatusCode: resp.StatusCode, Err: errors.New(detail)}
	}
	return nil
}

package oauth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GmailSendScope is the only scope requested: send mail as the user.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// GoogleProvider holds the OAuth client configuration of a Google Cloud
// "installed" or "web" application.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates a provider from explicit client credentials.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{GmailSendScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// LoadGoogleProvider reads a client credentials JSON file downloaded from the
// Google Cloud console. A non-empty redirectURL overrides the one in the file.
func LoadGoogleProvider(credentialsPath, redirectURL string) (*GoogleProvider, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return &GoogleProvider{config: cfg}, nil
}

func (g *GoogleProvider) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	t, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}
	return t, nil
}

// TokenSource returns a source that refreshes tok when it expires.
func (g *GoogleProvider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return g.config.TokenSource(ctx, tok)
}

package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// Authorizer runs the authorization-code half of an OAuth flow.
type Authorizer interface {
	// AuthURL returns the URL to redirect the user to for consent.
	AuthURL(state string) string
	// Exchange converts an authorization code into a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

package services

import (
	"context"

	"github.com/desertthunder/echo/internal/server"
	"github.com/desertthunder/echo/internal/tasks"
	"golang.org/x/oauth2"
)

// Service defines a playlist provider the CLI can authenticate against and drive through [tasks.Engine].
type Service interface {
	tasks.Library

	// Authenticate performs OAuth or API key authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

var _ Service = (*SpotifyService)(nil)

// OAuthService is a [Service] that authorizes through the browser redirect flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the authorization URL carrying state.
	GetAuthURL(state string) string
	// Exchange trades captured redirect credentials for a token after checking the state.
	Exchange(ctx context.Context, creds *server.Credentials, expectedState string) (*oauth2.Token, error)
	AuthenticateToken(ctx context.Context, token *oauth2.Token)
	SetTokenRefreshCallback(fn func(*oauth2.Token))
}

var _ OAuthService = (*SpotifyService)(nil)

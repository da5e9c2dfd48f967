package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/echo/internal/server"
	"github.com/desertthunder/echo/internal/services"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// Auth performs the OAuth2 authorization code flow for Spotify.
//
// Binds the redirect listener, opens the browser for user authorization, and exchanges the captured code for tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.oauthService()
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, svc, "authorization")
	if err != nil {
		return err
	}
	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: echo playlists\n")
	return nil
}

func (r *Runner) oauthService() (services.OAuthService, error) {
	svc, err := r.service()
	if err != nil {
		return nil, err
	}
	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support browser authorization", shared.ErrServiceUnavailable, svc.Name())
	}
	return oauthSvc, nil
}

// doOAuth captures the redirect on the loopback listener and exchanges the code.
func (r *Runner) doOAuth(ctx context.Context, svc services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	listener, err := server.NewListener(r.config.Server.Addr(), r.logger)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	authURL := svc.GetAuthURL(state)
	r.logger.Infof("waiting for %s redirect on %v", prefix, listener.Addr())

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", authTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	creds, err := listener.Accept(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrAuthFailed, authTimeout)
		}
		return nil, err
	}

	token, err := svc.Exchange(ctx, creds, state)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	return token, nil
}

// withReauth runs fn and, when it fails on an expired token, reauthorizes once and runs it again.
func (r *Runner) withReauth(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, shared.ErrTokenExpired) {
		return err
	}

	svc, ok := r.spotify.(services.OAuthService)
	if !ok {
		return err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...\n")

	token, authErr := r.doOAuth(ctx, svc, "reauthorization")
	if authErr != nil {
		return fmt.Errorf("reauthorization failed: %w", authErr)
	}
	if saveErr := r.saveTokens(token); saveErr != nil {
		r.logger.Warn("failed to save tokens", "error", saveErr)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...\n")
	return fn()
}

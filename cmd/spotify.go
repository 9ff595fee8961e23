package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/toptally/internal/server"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	oauthSrv, err := r.oauthService()
	if err != nil {
		return err
	}

	if err := r.authorize(ctx, oauthSrv, "authorization"); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: toptally ingest run\n")
	return nil
}

// SpotifyMe prints the authenticated user's profile.
func (r *Runner) SpotifyMe(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		if reauthed, authErr := r.handleSpotifyAuthError(ctx, err); reauthed {
			if authErr != nil {
				return authErr
			}
			if user, err = r.spotify.CurrentUser(ctx); err != nil {
				return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
			}
		} else {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlain("User: %s\n", user.DisplayName)
	r.writePlain("ID: %s\n", user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	if user.Country != "" {
		r.writePlain("Country: %s\n", user.Country)
	}
	if user.Product != "" {
		r.writePlain("Plan: %s\n", user.Product)
	}
	return nil
}

func (r *Runner) oauthService() (services.OAuthService, error) {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml or the environment", shared.ErrMissingCredentials)
	}

	if svc, ok := r.spotify.(services.OAuthService); ok {
		return svc, nil
	}

	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	r.spotify = svc
	return svc, nil
}

// authorize runs the browser flow, persists the token and installs it on oauthSrv.
func (r *Runner) authorize(ctx context.Context, oauthSrv services.OAuthService, prefix string) error {
	token, err := r.doOAuth(ctx, oauthSrv, prefix)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	if err := oauthSrv.OAuthenticate(ctx, token); err != nil {
		return fmt.Errorf("failed to authenticate with new tokens: %w", err)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, serverAddr)
		serverErrors <- server.Serve(srvCtx, serverAddr, router, r.logger)
	}()

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped before authorization completed")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	stop()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// handleSpotifyAuthError checks if an error is a token error and triggers reauthorization if needed.
//
// The first return value reports whether reauthorization was attempted.
func (r *Runner) handleSpotifyAuthError(ctx context.Context, err error) (bool, error) {
	if err == nil || !isAuthError(err) {
		return false, err
	}

	r.writePlainln("⚠ Spotify token missing or expired. Starting reauthorization...")

	oauthSrv, ok := r.spotify.(services.OAuthService)
	if !ok {
		return true, fmt.Errorf("%w: spotify service does not support reauthorization", shared.ErrAuthFailed)
	}

	if err := r.authorize(ctx, oauthSrv, "reauthorization"); err != nil {
		return true, fmt.Errorf("reauthorization failed: %w", err)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...")
	return true, nil
}

// ensureAuthenticated checks the stored token with a profile request and reauthorizes when it is unusable.
func (r *Runner) ensureAuthenticated(ctx context.Context) error {
	_, err := r.spotify.CurrentUser(ctx)
	if err == nil {
		return nil
	}
	if reauthed, authErr := r.handleSpotifyAuthError(ctx, err); reauthed {
		return authErr
	}
	return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
}

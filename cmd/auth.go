package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/crossfade/internal/server"
	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// oauthService is satisfied by providers that authenticate through the
// browser-based authorization code flow.
type oauthService interface {
	services.Service
	GetAuthURL(state string) string
	OAuthConfig() *oauth2.Config
	ExchangeOptions() []oauth2.AuthCodeOption
}

// AuthSpotify performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	return r.authOAuthProvider(ctx, "spotify")
}

// AuthTidal performs the OAuth2 + PKCE authentication flow for Tidal.
func (r *Runner) AuthTidal(ctx context.Context, cmd *cli.Command) error {
	return r.authOAuthProvider(ctx, "tidal")
}

func (r *Runner) authOAuthProvider(ctx context.Context, name string) error {
	svc, err := r.resolveService(name)
	if err != nil {
		return err
	}

	oauthSvc, ok := svc.(oauthService)
	if !ok {
		return fmt.Errorf("%w: %s does not use browser authorization", shared.ErrInvalidArgument, svc.Name())
	}

	token, err := r.doOAuth(oauthSvc)
	if err != nil {
		return err
	}

	credentials := map[string]string{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		credentials["expires_in"] = strconv.FormatInt(int64(time.Until(token.Expiry).Seconds()), 10)
	}

	if err := svc.Authenticate(ctx, credentials); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	r.persistSession(svc)
	r.writePlainln("✓ %s authorization successful", svc.Name())

	return nil
}

// AuthQobuz authenticates with Qobuz using account credentials.
func (r *Runner) AuthQobuz(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.resolveService("qobuz")
	if err != nil {
		return err
	}

	err = svc.Authenticate(ctx, map[string]string{
		"email":    cmd.String("email"),
		"password": cmd.String("password"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	r.persistSession(svc)
	r.writePlainln("✓ Qobuz login successful")

	return nil
}

// AuthStatus reports the authentication state of every configured provider.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if len(r.services) == 0 {
		r.writePlain("No services configured. Add credentials to config.toml.\n")
		return nil
	}

	r.writePlainHeader("Authentication Status")
	for name, svc := range r.services {
		if svc.IsAuthenticated(ctx) {
			r.writePlain("✓ %s: authenticated\n", name)
		} else {
			r.writePlain("✗ %s: not authenticated\n", name)
		}
	}

	return nil
}

// AuthDisconnect destroys a provider's in-memory and persisted session.
func (r *Runner) AuthDisconnect(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("service")
	if name == "" {
		return fmt.Errorf("%w: service argument is required", shared.ErrMissingArgument)
	}

	svc, err := r.resolveService(name)
	if err != nil {
		return err
	}

	if d, ok := svc.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}

	if err := services.DeleteSession(r.sessionPath, svc.Name()); err != nil {
		r.logger.Warnf("failed to remove stored session: %v", err)
	}

	r.writePlainln("✓ Disconnected from %s", svc.Name())

	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(oauthSvc oauthService) (*oauth2.Token, error) {
	state := shared.GenerateID()

	authURL := oauthSvc.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSvc.OAuthConfig(), state, oauthSvc.ExchangeOptions()...)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server for %s at %v", oauthSvc.Name(), serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for %s authorization...\n", oauthSvc.Name())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}

package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	registry := map[string]services.Service{}

	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify); err == nil {
			registry[svc.Name()] = svc
		}
	}
	if config.Credentials.Tidal.ClientID != "" {
		if svc, err := services.NewTidalService(config.Credentials.Tidal); err == nil {
			registry[svc.Name()] = svc
		}
	}
	if config.Credentials.Qobuz.AppID != "" {
		if svc, err := services.NewQobuzService(config.Credentials.Qobuz); err == nil {
			registry[svc.Name()] = svc
		}
	}

	sessionPath := services.DefaultSessionPath()
	if sessions, err := services.LoadSessions(sessionPath); err == nil {
		for name, creds := range sessions {
			if svc, ok := registry[name].(interface{ Restore(services.Credentials) }); ok {
				svc.Restore(creds)
			}
		}
	} else {
		logger.Warnf("failed to load sessions: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:      config,
		Services:    registry,
		Logger:      logger,
		SessionPath: sessionPath,
	})

	app := &cli.Command{
		Name:     "crossfade",
		Usage:    "Transfer playlists between Spotify, Tidal & Qobuz",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}

// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config.toml to the current directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the match-cache database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage provider authentication",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.AuthSpotify,
			},
			{
				Name:   "tidal",
				Usage:  "Authenticate with Tidal using OAuth2 + PKCE",
				Action: r.AuthTidal,
			},
			{
				Name:  "qobuz",
				Usage: "Authenticate with Qobuz using email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Qobuz account email",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Qobuz account password",
						Required: true,
					},
				},
				Action: r.AuthQobuz,
			},
			{
				Name:   "status",
				Usage:  "Show which providers hold a usable session",
				Action: r.AuthStatus,
			},
			{
				Name:  "disconnect",
				Usage: "Destroy a provider's stored session",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Action: r.AuthDisconnect,
			},
		},
	}
}

// playlistsCommand lists playlists for a provider
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"ls"},
		Usage:   "List playlists for a provider",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "service",
				Aliases:  []string{"s"},
				Usage:    "Provider to list (spotify, tidal, qobuz)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Playlists,
	}
}

// transferCommand handles playlist transfer operations
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer playlists between services",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Transfer one playlist from a source to a destination provider",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source provider (spotify, tidal, qobuz)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest",
						Usage:    "Destination provider (spotify, tidal, qobuz)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Source playlist ID ('liked' for the saved-tracks library)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the transfer result as JSON",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write a transfer report to this file",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: text, csv, or markdown",
						Value: "text",
					},
				},
				Action: r.TransferRun,
			},
		},
	}
}

// cacheCommand inspects and clears the persistent match cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the track match cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cached match counts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "service",
						Aliases: []string{"s"},
						Usage:   "Limit to one provider",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:  "clear",
				Usage: "Remove cached matches",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "service",
						Aliases: []string{"s"},
						Usage:   "Limit to one provider",
					},
				},
				Action: r.CacheClear,
			},
		},
	}
}

// serveCommand runs the long-lived HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind (overrides config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to bind (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive playlist transfer.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for playlist transfer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source provider (spotify, tidal, qobuz)",
				Value: "spotify",
			},
			&cli.StringFlag{
				Name:  "dest",
				Usage: "Destination provider (spotify, tidal, qobuz)",
				Value: "tidal",
			},
		},
		Action: r.TUI,
	}
}

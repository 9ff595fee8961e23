// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// rootFlags are available to every command.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// spotifyCommand handles Spotify account operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify account operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "me",
				Usage: "Show the authenticated Spotify user",
				Flags: []cli.Flag{
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
				Action: r.SpotifyMe,
			},
		},
	}
}

// ingestCommand handles ingestion runs and their audit log
func ingestCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Snapshot top artists, top tracks and playlist tracks",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Fetch, enrich and append one snapshot of every configured window",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "window",
						Aliases: []string{"w"},
						Usage:   "Window to fetch (long, medium, short); repeatable, defaults to ingest.windows",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of top items per window",
					},
					&cli.BoolFlag{
						Name:  "playlists",
						Usage: "Also snapshot the tracks of your playlists",
					},
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Only snapshot playlists owned by this user ID (default: you)",
					},
					&cli.BoolFlag{
						Name:  "embeds",
						Usage: "Look up oEmbed player markup for each track",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the run summary as JSON",
					},
				},
				Action: r.IngestRun,
			},
			{
				Name:  "runs",
				Usage: "List recent ingestion runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.IngestRuns,
			},
		},
	}
}

// topCommand prints the latest snapshot rows for a window.
func topCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "window",
				Aliases: []string{"w"},
				Usage:   "Window to show (long, medium, short)",
				Value:   "long",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, json, csv, md)",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout; \"-\" writes to {kind}.{ext}",
			},
		}
	}

	return &cli.Command{
		Name:  "top",
		Usage: "Show the latest snapshots",
		Commands: []*cli.Command{
			{Name: "artists", Usage: "Latest top artists", Flags: flags(), Action: r.Top},
			{Name: "tracks", Usage: "Latest top tracks", Flags: flags(), Action: r.Top},
			{Name: "playlist-tracks", Aliases: []string{"playlists"}, Usage: "Latest playlist tracks", Flags: flags(), Action: r.Top},
		},
	}
}

// serveCommand starts the dashboard.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the snapshot dashboard and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for browsing snapshots.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for browsing snapshots",
		Action:  r.TUI,
	}
}

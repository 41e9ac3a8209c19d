// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage: "Create config file if missing, initialize database and run migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recently applied migration after migrating",
			},
		},
		Action: r.Setup,
	}
}

// runCommand starts the daemon.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the submission engine, session watcher and local ingest API",
		Action: r.Run,
	}
}

// watchCommand starts the daemon with the status monitor attached.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Run the daemon with an interactive status monitor",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "Status poll interval",
				Value: time.Second,
			},
		},
		Action: r.Watch,
	}
}

// statusCommand queries a running daemon.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of a running daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// queueCommand handles pending queue operations
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Inspect and manage pending scrobbles",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List pending scrobbles",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, markdown, json)",
						Value:   "text",
					},
				},
				Action: r.QueueList,
			},
			{
				Name:  "add",
				Usage: "Queue a finished play",
				Flags: append(trackFlags(),
					&cli.StringFlag{
						Name:  "started-at",
						Usage: "Playback start time (RFC 3339); defaults to now minus duration",
					},
					&cli.BoolFlag{
						Name:  "recommended",
						Usage: "Mark the track as chosen by a recommendation source",
					},
				),
				Action: r.QueueAdd,
			},
			{
				Name:   "purge",
				Usage:  "Drop pending scrobbles the service would reject",
				Action: r.QueuePurge,
			},
			{
				Name:  "flush",
				Usage: "Submit pending scrobbles now and wait for the queue to drain",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Give up after this long",
						Value: 2 * time.Minute,
					},
				},
				Action: r.QueueFlush,
			},
			{
				Name:  "history",
				Usage: "Show recent submission outcomes",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Number of entries to show",
						Value:   20,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, markdown, json)",
						Value:   "text",
					},
				},
				Action: r.QueueHistory,
			},
		},
	}
}

// nowPlayingCommand sends a one-shot now playing announcement.
func nowPlayingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "nowplaying",
		Aliases: []string{"np"},
		Usage:   "Announce the currently playing track",
		Flags: append(trackFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the service",
				Value: 10 * time.Second,
			},
		),
		Action: r.NowPlaying,
	}
}

// authCommand handles session management
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Last.fm session",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store a session key in the session file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "username",
						Usage: "Last.fm username",
					},
					&cli.StringFlag{
						Name:     "session-key",
						Usage:    "Session key from auth.getSession",
						Required: true,
					},
				},
				Action: r.AuthSet,
			},
			{
				Name:   "status",
				Usage:  "Show which credentials are configured",
				Action: r.AuthStatus,
			},
		},
	}
}

func trackFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "artist",
			Aliases:  []string{"a"},
			Usage:    "Artist name",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "title",
			Aliases:  []string{"t"},
			Usage:    "Track title",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "album",
			Usage: "Album title",
		},
		&cli.IntFlag{
			Name:  "duration",
			Usage: "Track length in seconds",
		},
		&cli.IntFlag{
			Name:  "track-number",
			Usage: "Position on the album",
		},
		&cli.StringFlag{
			Name:  "mbid",
			Usage: "MusicBrainz recording ID",
		},
	}
}

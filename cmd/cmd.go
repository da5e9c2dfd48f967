// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand writes a starter config and prepares the snapshot database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand runs the OAuth2 authorization code flow.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authorize with Spotify through the browser and store the tokens",
		Action: r.Auth,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List the current user's playlists",
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
		Action: r.Playlists,
	}
}

// loadCommand reads a playlist range into a stored snapshot.
func loadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Load a playlist (or the liked tracks) into a snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "playlist-id",
				Aliases: []string{"p"},
				Usage:   "Playlist ID to load; omit for the liked tracks",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Index of the first track to load",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of tracks to load (default: everything after --offset)",
			},
			&cli.BoolFlag{
				Name:  "concurrent",
				Usage: "Fetch all pages at once",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also export the snapshot to this file (.json, .csv, .md or .txt)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the snapshot as JSON",
			},
		},
		Action: r.Load,
	}
}

// compareCommand diffs two playlists.
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare two playlists and show the tracks missing from the second",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "a",
				Usage:    "Source playlist ID (\"" + likedAlias + "\" for the liked tracks)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "b",
				Usage:    "Target playlist ID (\"" + likedAlias + "\" for the liked tracks)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "Load both playlists from Spotify instead of the latest snapshots",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Compare,
	}
}

// findCommand fuzzy-searches playlist names.
func findCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "Find playlists by name",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "name"},
		},
		Action: r.Find,
	}
}

// likedCommand replicates the liked tracks into a public playlist.
func likedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "liked",
		Usage:  "Copy the liked tracks into the public \"SaVeD TrAcKs\" playlist",
		Action: r.Liked,
	}
}

// snapshotsCommand manages stored snapshots.
func snapshotsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "snapshots",
		Aliases: []string{"snap"},
		Usage:   "Manage stored snapshots",
		Action:  r.SnapshotsList,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored snapshots, newest first",
				Action: r.SnapshotsList,
			},
			{
				Name:  "show",
				Usage: "Print a stored snapshot",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SnapshotsShow,
			},
			{
				Name:  "export",
				Usage: "Write a stored snapshot to a file (.json, .csv, .md or .txt)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "path"},
				},
				Action: r.SnapshotsExport,
			},
			{
				Name:  "import",
				Usage: "Store a snapshot from a JSON export",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Action: r.SnapshotsImport,
			},
			{
				Name:  "delete",
				Usage: "Delete a stored snapshot",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.SnapshotsDelete,
			},
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/desertthunder/echo/internal/formatter"
	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/repositories"
	"github.com/desertthunder/echo/internal/services"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/desertthunder/echo/internal/tasks"
	"github.com/urfave/cli/v3"
)

// likedAlias names the liked tracks on the command line.
const likedAlias = "liked"

// fetchID maps a command line playlist reference to the ID the service expects.
func fetchID(ref string) string {
	if ref == likedAlias || ref == models.LikedTracksID {
		return ""
	}
	return ref
}

// Playlists lists the current user's playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.service()
	if err != nil {
		return err
	}

	var playlists []models.Playlist
	err = r.withReauth(ctx, func() error {
		playlists, err = svc.UserPlaylists(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		r.writePlain("   Visibility: %s\n\n", shared.VisibilityString(p.Public))
	}
	return nil
}

// Load reads a playlist range, stores it as a snapshot and optionally exports it.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) error {
	offset := cmd.Int("offset")
	if offset < 0 {
		return fmt.Errorf("%w: --offset must not be negative", shared.ErrInvalidArgument)
	}
	if uint64(offset) > math.MaxUint32 {
		return fmt.Errorf("%w: --offset must be at most %d", shared.ErrInvalidArgument, uint64(math.MaxUint32))
	}

	opts := tasks.LoadOpts{
		PlaylistID: fetchID(cmd.String("playlist-id")),
		Offset:     uint32(offset),
		Concurrent: cmd.Bool("concurrent"),
	}
	if opts.PlaylistID == "" {
		opts.Name = "Liked Tracks"
	}
	if cmd.IsSet("limit") {
		limit := cmd.Int("limit")
		if limit < 0 {
			return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidArgument)
		}
		if uint64(limit) > math.MaxUint32 {
			return fmt.Errorf("%w: --limit must be at most %d", shared.ErrInvalidArgument, uint64(math.MaxUint32))
		}
		l := uint32(limit)
		opts.Limit = &l
	}

	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}

	snap, err := r.loadSnapshot(ctx, repo, opts)
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		format, err := formatter.WriteExport(snap, output)
		if err != nil {
			return err
		}
		r.logger.Info("snapshot exported", "path", output, "format", format)
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap, true)
	}

	r.writePlain("✓ Loaded %d tracks from %s\n", len(snap.Tracks), snap.Name)
	if snap.IsLiked() {
		r.writePlain("  Collection: liked tracks\n")
	} else {
		r.writePlain("  Playlist: %s\n", snap.PlaylistID)
	}
	r.writePlain("  Offset: %d\n", snap.Offset)
	if snap.Total > 0 {
		r.writePlain("  Total: %d\n", snap.Total)
	}
	r.writePlain("  Snapshot: %s\n", snap.ID)
	if output := cmd.String("output"); output != "" {
		r.writePlain("  Exported to: %s\n", output)
	}
	return nil
}

// loadSnapshot loads opts from the service and stores the result.
func (r *Runner) loadSnapshot(ctx context.Context, repo *repositories.SnapshotRepository, opts tasks.LoadOpts) (*models.Snapshot, error) {
	svc, err := r.service()
	if err != nil {
		return nil, err
	}
	if opts.PlaylistID != "" && opts.Name == "" {
		opts.Name = r.playlistName(ctx, svc, opts.PlaylistID)
	}

	progress, done := r.progress()
	var snap *models.Snapshot
	err = r.withReauth(ctx, func() error {
		snap, err = r.engine.Load(ctx, svc.PlaylistFetcher(opts.PlaylistID), opts, progress)
		return err
	})
	done()
	if err != nil {
		return nil, err
	}

	if err := repo.Save(ctx, snap); err != nil {
		return nil, err
	}
	r.logger.Debug("snapshot saved", "id", snap.ID, "playlist", snap.PlaylistID, "tracks", len(snap.Tracks))
	return snap, nil
}

// playlistName looks up the display name of id, falling back to the ID itself.
func (r *Runner) playlistName(ctx context.Context, svc services.Service, id string) string {
	playlists, err := svc.UserPlaylists(ctx)
	if err != nil {
		r.logger.Debug("could not resolve playlist name", "id", id, "error", err)
		return id
	}
	for _, p := range playlists {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

// snapshotFor returns the latest stored snapshot of ref, loading it from the service when fresh is set or nothing is stored.
func (r *Runner) snapshotFor(ctx context.Context, repo *repositories.SnapshotRepository, ref string, fresh bool) (*models.Snapshot, error) {
	id := fetchID(ref)
	if !fresh {
		snap, err := repo.Latest(ctx, id)
		if err == nil {
			r.logger.Debug("using stored snapshot", "id", snap.ID, "playlist", snap.PlaylistID, "created", snap.CreatedAt)
			return snap, nil
		}
		if !errors.Is(err, shared.ErrSnapshotNotFound) {
			return nil, err
		}
	}

	opts := tasks.LoadOpts{PlaylistID: id, Concurrent: true}
	if id == "" {
		opts.Name = "Liked Tracks"
	}
	return r.loadSnapshot(ctx, repo, opts)
}

// Compare diffs playlist b against playlist a.
func (r *Runner) Compare(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}

	fresh := cmd.Bool("fresh")
	a, err := r.snapshotFor(ctx, repo, cmd.String("a"), fresh)
	if err != nil {
		return err
	}
	b, err := r.snapshotFor(ctx, repo, cmd.String("b"), fresh)
	if err != nil {
		return err
	}

	result, err := tasks.Compare(a, b)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"a":            a.PlaylistID,
			"b":            b.PlaylistID,
			"matched":      result.MatchedCount,
			"missing_in_b": result.MissingInB,
			"extra_in_b":   result.ExtraInB,
		}, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s → %s", a.Name, b.Name))
	r.writePlain("Matched: %d of %d\n", result.MatchedCount, len(a.Tracks))

	r.writePlainln("Missing from %s (%d):", b.Name, len(result.MissingInB))
	for _, t := range result.MissingInB {
		r.writePlain("  - %s - %s\n", t.Artist, t.Title)
	}

	r.writePlainln("Only in %s (%d):", b.Name, len(result.ExtraInB))
	for _, t := range result.ExtraInB {
		r.writePlain("  + %s - %s\n", t.Artist, t.Title)
	}
	return nil
}

// Find fuzzy-searches the user's playlists by name.
func (r *Runner) Find(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("name")
	if query == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	svc, err := r.service()
	if err != nil {
		return err
	}

	var playlists []models.Playlist
	err = r.withReauth(ctx, func() error {
		playlists, err = svc.UserPlaylists(ctx)
		return err
	})
	if err != nil {
		return err
	}

	matches, err := tasks.FindPlaylists(playlists, query)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return r.writePlain("%s\n", styles.warn.Render(fmt.Sprintf("No playlists match %q", query)))
	}

	for _, m := range matches {
		r.writePlain("%s %s\n", styles.label.Render("Name:"), styles.highlight(m.Playlist.Name, m.MatchedIndexes))
		if m.Playlist.Description != "" {
			r.writePlain("%s %s\n", styles.label.Render("Desc:"), m.Playlist.Description)
		}
		r.writePlain("%s   %s\n", styles.label.Render("Id:"), m.Playlist.ID)
		r.writePlain("%s\n\n", styles.muted.Render(fmt.Sprintf("%d tracks, %s", m.Playlist.TrackCount, shared.VisibilityString(m.Playlist.Public))))
	}
	return nil
}

// Liked replicates the liked tracks into the public replica playlist.
func (r *Runner) Liked(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.service()
	if err != nil {
		return err
	}

	progress, done := r.progress()
	var result *tasks.ReplicateResult
	err = r.withReauth(ctx, func() error {
		result, err = r.engine.ReplicateLiked(ctx, svc, progress)
		return err
	})
	done()
	if err != nil {
		return err
	}

	if result.Created {
		r.writePlain("✓ Created playlist %s (%s)\n", result.Playlist.Name, result.Playlist.ID)
	}
	r.writePlain("✓ Liked tracks: %d\n", result.Liked)
	r.writePlain("✓ Added to %s: %d\n", result.Playlist.Name, result.Added)
	return nil
}

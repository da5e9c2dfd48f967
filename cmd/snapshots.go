package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/echo/internal/formatter"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/urfave/cli/v3"
)

// SnapshotsList prints a summary of every stored snapshot.
func (r *Runner) SnapshotsList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}

	summaries, err := repo.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return r.writePlain("No snapshots stored. Run 'echo load' first.\n")
	}

	r.writePlain("Found %d snapshots:\n\n", len(summaries))
	for _, s := range summaries {
		r.writePlain("%s  %s\n", s.ID, s.Name)
		r.writePlain("   Playlist: %s\n", s.PlaylistID)
		r.writePlain("   Tracks: %d (offset %d, total %d)\n", s.TrackCount, s.Offset, s.Total)
		r.writePlain("   Created: %s\n\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// SnapshotsShow prints one stored snapshot.
func (r *Runner) SnapshotsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: snapshot id", shared.ErrMissingArgument)
	}

	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}
	snap, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap, true)
	}

	text, err := formatter.ExportToText(snap)
	if err != nil {
		return err
	}
	_, err = r.output.Write(text)
	return err
}

// SnapshotsExport writes a stored snapshot to a file, choosing the format from its extension.
func (r *Runner) SnapshotsExport(ctx context.Context, cmd *cli.Command) error {
	id, path := cmd.StringArg("id"), cmd.StringArg("path")
	if id == "" || path == "" {
		return fmt.Errorf("%w: snapshot id and output path", shared.ErrMissingArgument)
	}

	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}
	snap, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	format, err := formatter.WriteExport(snap, path)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Exported %d tracks as %s to %s\n", len(snap.Tracks), format, path)
}

// SnapshotsImport stores a snapshot read from a JSON export under a new ID.
func (r *Runner) SnapshotsImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: export path", shared.ErrMissingArgument)
	}

	snap, err := formatter.ReadJSONExportFile(path)
	if err != nil {
		return err
	}
	snap.ID = ""

	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}
	if err := repo.Save(ctx, snap); err != nil {
		return err
	}
	return r.writePlain("✓ Imported %d tracks of %s as %s\n", len(snap.Tracks), snap.Name, snap.ID)
}

// SnapshotsDelete removes a stored snapshot.
func (r *Runner) SnapshotsDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: snapshot id", shared.ErrMissingArgument)
	}

	repo, err := r.repository(ctx)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted snapshot %s\n", id)
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/shared"
)

// SnapshotSummary describes a stored snapshot without its tracks.
type SnapshotSummary struct {
	ID         string
	PlaylistID string
	Name       string
	Offset     uint32
	Total      int
	TrackCount int
	CreatedAt  time.Time
}

// SnapshotRepository persists [models.Snapshot] values.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository with the given database connection
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save inserts the snapshot and its tracks, assigning an ID when none is set.
func (r *SnapshotRepository) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == "" {
		snap.ID = shared.GenerateID()
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO snapshots (id, playlist_id, name, start_offset, total, format_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		snap.ID,
		snap.PlaylistID,
		snap.Name,
		snap.Offset,
		snap.Total,
		snap.FormatVersion,
		snap.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_tracks (snapshot_id, position, track_id, uri, title, artist, album, duration, isrc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range snap.Tracks {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, t.ID, t.URI, t.Title, t.Artist, t.Album, t.Duration, t.ISRC); err != nil {
			return fmt.Errorf("failed to insert track %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Get retrieves a snapshot with its tracks by ID.
func (r *SnapshotRepository) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	query := `
		SELECT id, playlist_id, name, start_offset, total, format_version, created_at
		FROM snapshots
		WHERE id = ?
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, id), id)
}

// Latest retrieves the most recent snapshot of a playlist. An empty playlistID means the liked tracks.
func (r *SnapshotRepository) Latest(ctx context.Context, playlistID string) (*models.Snapshot, error) {
	key := models.StoreKey(playlistID)
	query := `
		SELECT id, playlist_id, name, start_offset, total, format_version, created_at
		FROM snapshots
		WHERE playlist_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, key), key)
}

// List retrieves summaries of every stored snapshot, newest first.
func (r *SnapshotRepository) List(ctx context.Context) ([]SnapshotSummary, error) {
	query := `
		SELECT s.id, s.playlist_id, s.name, s.start_offset, s.total, s.created_at, COUNT(t.position)
		FROM snapshots s
		LEFT JOIN snapshot_tracks t ON t.snapshot_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.rowid DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var summaries []SnapshotSummary
	for rows.Next() {
		var s SnapshotSummary
		if err := rows.Scan(&s.ID, &s.PlaylistID, &s.Name, &s.Offset, &s.Total, &s.CreatedAt, &s.TrackCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return summaries, nil
}

// Delete removes a snapshot and its tracks.
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSnapshotNotFound, id)
	}

	return nil
}

// load scans a snapshot row and attaches its tracks.
func (r *SnapshotRepository) load(ctx context.Context, row *sql.Row, key string) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := row.Scan(
		&snap.ID,
		&snap.PlaylistID,
		&snap.Name,
		&snap.Offset,
		&snap.Total,
		&snap.FormatVersion,
		&snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if snap.FormatVersion != models.SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: snapshot %s has format version %d", shared.ErrInvalidInput, snap.ID, snap.FormatVersion)
	}

	tracks, err := r.tracks(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	snap.Tracks = tracks
	return &snap, nil
}

func (r *SnapshotRepository) tracks(ctx context.Context, snapshotID string) ([]models.Track, error) {
	query := `
		SELECT track_id, uri, title, artist, album, duration, isrc
		FROM snapshot_tracks
		WHERE snapshot_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.Track{}
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.URI, &t.Title, &t.Artist, &t.Album, &t.Duration, &t.ISRC); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

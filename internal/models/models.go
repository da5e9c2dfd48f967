package models

import (
	"fmt"
	"time"
)

// LikedTracksID identifies the user's liked tracks collection wherever a playlist ID is expected.
const LikedTracksID = "user_liked_tracks"

// SnapshotFormatVersion is the version written with every persisted or exported snapshot.
const SnapshotFormatVersion = 1

// Playlist represents a Spotify playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	Owner       string `json:"owner,omitempty"`
}

// Track represents a Spotify track.
type Track struct {
	ID       string `json:"id"`
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration"` // Duration in seconds
	ISRC     string `json:"isrc,omitempty"`
}

// Snapshot is a loaded range of a playlist, ordered by playlist position.
type Snapshot struct {
	ID            string    `json:"id"`
	PlaylistID    string    `json:"playlist_id"`
	Name          string    `json:"name"`
	Offset        uint32    `json:"offset"`
	Total         int       `json:"total"`
	FormatVersion int       `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	Tracks        []Track   `json:"tracks"`
}

// NewSnapshot creates a snapshot for playlistID. An empty playlistID refers to the liked tracks.
func NewSnapshot(playlistID, name string, offset uint32, total int, tracks []Track) *Snapshot {
	return &Snapshot{
		PlaylistID:    StoreKey(playlistID),
		Name:          name,
		Offset:        offset,
		Total:         total,
		FormatVersion: SnapshotFormatVersion,
		CreatedAt:     time.Now().UTC(),
		Tracks:        tracks,
	}
}

// Validate checks the snapshot before it is persisted.
func (s *Snapshot) Validate() error {
	if s.PlaylistID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if s.FormatVersion != SnapshotFormatVersion {
		return fmt.Errorf("unsupported snapshot format version %d", s.FormatVersion)
	}
	if s.Total < 0 {
		return fmt.Errorf("total must not be negative")
	}
	return nil
}

// IsLiked reports whether the snapshot holds the liked tracks collection.
func (s *Snapshot) IsLiked() bool {
	return s.PlaylistID == LikedTracksID
}

// StoreKey maps a Spotify playlist ID to the key it is stored under.
func StoreKey(playlistID string) string {
	if playlistID == "" {
		return LikedTracksID
	}
	return playlistID
}

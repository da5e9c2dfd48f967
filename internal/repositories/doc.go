// Package repositories implements SQLite persistence for loaded playlist snapshots.
//
// A snapshot is one loaded range of a playlist (or of the liked tracks, stored under
// [models.LikedTracksID]) together with its tracks in playlist order. Snapshots are written in a
// single transaction and carry the format version they were written with, so a later release can
// refuse or migrate rows it does not understand.
//
// Key Implementations:
//   - [SnapshotRepository] : save, look up the latest per playlist, list and delete snapshots
package repositories

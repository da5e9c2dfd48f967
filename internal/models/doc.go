// Package models defines the domain entities shared by the echo packages.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing Spotify data
//   - [Playlist] : Basic playlist metadata
//   - [Track] : Song metadata with URI and ISRC for matching
//
// 2. Snapshots: A loaded range of a playlist, persisted locally
//   - [Snapshot] : A playlist (or the liked-tracks collection) with its tracks in playlist order
//
// The liked-tracks collection has no Spotify playlist ID; it is stored under [LikedTracksID].
package models

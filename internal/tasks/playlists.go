package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"
)

const (
	ReplicaName        = "SaVeD TrAcKs"
	ReplicaDescription = "A duplicate of my liked tracks made public. Sharing is caring"
)

// Source is a paginated collection that can also report its size.
type Source interface {
	PageFetcher
	Total(ctx context.Context) (int, error)
}

// Library is the part of the playlist service that the playlist operations use.
type Library interface {
	UserPlaylists(ctx context.Context) ([]models.Playlist, error)
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error)
	// PlaylistFetcher reads a playlist; an empty id reads the liked tracks.
	PlaylistFetcher(id string) Source
	PlaylistSender(id string) BatchSender
}

// LoadOpts selects the range of a collection to load.
type LoadOpts struct {
	PlaylistID string  // Empty for the liked tracks
	Name       string  // Display name stored with the snapshot
	Offset     uint32  // First item to load
	Limit      *uint32 // Nil loads everything from Offset to the end
	Concurrent bool
}

// Load reads the requested range of src into a snapshot.
//
// When no limit is given the collection size is fetched first and everything after Offset is loaded.
func (e *Engine) Load(ctx context.Context, src Source, opts LoadOpts, progress chan<- ProgressUpdate) (*models.Snapshot, error) {
	total := 0
	var limit uint32
	if opts.Limit != nil {
		limit = *opts.Limit
	} else {
		e.sendProgress(progress, fetchTotalUpdate(opts.PlaylistID))
		n, err := src.Total(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve size of %s: %w", models.StoreKey(opts.PlaylistID), err)
		}
		total = max(n, 0)
		if uint32(total) > opts.Offset {
			limit = uint32(total) - opts.Offset
		}
	}

	fetch := e.FetchSequential
	if opts.Concurrent {
		fetch = e.FetchConcurrent
	}

	pages, err := fetch(ctx, src, opts.Offset, limit, progress)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, p := range pages {
		count += len(p.Items)
	}
	tracks := make([]models.Track, 0, count)
	for _, p := range pages {
		tracks = append(tracks, p.Items...)
		total = max(total, p.Total)
	}

	name := opts.Name
	if name == "" {
		name = models.StoreKey(opts.PlaylistID)
	}

	e.logger.Info("loaded playlist", "playlist", models.StoreKey(opts.PlaylistID), "tracks", len(tracks), "pages", len(pages))
	return models.NewSnapshot(opts.PlaylistID, name, opts.Offset, total, tracks), nil
}

// LoadPair loads two collections at the same time. The first failure cancels the other load.
func (e *Engine) LoadPair(
	ctx context.Context,
	a, b Source,
	optsA, optsB LoadOpts,
) (*models.Snapshot, *models.Snapshot, error) {
	g, gctx := errgroup.WithContext(ctx)

	var snapA, snapB *models.Snapshot
	g.Go(func() error {
		s, err := e.Load(gctx, a, optsA, nil)
		snapA = s
		return err
	})
	g.Go(func() error {
		s, err := e.Load(gctx, b, optsB, nil)
		snapB = s
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snapA, snapB, nil
}

// ComparisonResult contains track comparison details between two snapshots.
type ComparisonResult struct {
	A            *models.Snapshot
	B            *models.Snapshot
	MatchedCount int            // Tracks found in both
	MissingInB   []models.Track // Tracks in A but not in B
	ExtraInB     []models.Track // Tracks in B but not in A
}

// Compare matches the tracks of a against b by URI, then ISRC, then normalized title and artist.
//
// Each track of b matches at most one track of a, so duplicates are counted.
func Compare(a, b *models.Snapshot) (*ComparisonResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: two snapshots are required", shared.ErrMissingArgument)
	}
	if a.PlaylistID == b.PlaylistID {
		return nil, fmt.Errorf("%w: cannot compare %s with itself", shared.ErrInvalidArgument, a.PlaylistID)
	}

	idx := newTrackIndex(b.Tracks)
	result := &ComparisonResult{A: a, B: b}
	for _, t := range a.Tracks {
		if idx.claim(t) {
			result.MatchedCount++
		} else {
			result.MissingInB = append(result.MissingInB, t)
		}
	}
	result.ExtraInB = idx.unclaimed()
	return result, nil
}

// trackIndex looks tracks up by each identity in order of preference.
type trackIndex struct {
	tracks  []models.Track
	claimed []bool
	byURI   map[string][]int
	byISRC  map[string][]int
	byKey   map[string][]int
}

func newTrackIndex(tracks []models.Track) *trackIndex {
	idx := &trackIndex{
		tracks:  tracks,
		claimed: make([]bool, len(tracks)),
		byURI:   make(map[string][]int),
		byISRC:  make(map[string][]int),
		byKey:   make(map[string][]int),
	}
	for i, t := range tracks {
		if t.URI != "" {
			idx.byURI[t.URI] = append(idx.byURI[t.URI], i)
		}
		if t.ISRC != "" {
			idx.byISRC[t.ISRC] = append(idx.byISRC[t.ISRC], i)
		}
		if key := trackKey(t); key != "" {
			idx.byKey[key] = append(idx.byKey[key], i)
		}
	}
	return idx
}

// claim marks the first unclaimed track equal to t and reports whether one was found.
func (idx *trackIndex) claim(t models.Track) bool {
	lookups := []struct {
		m   map[string][]int
		key string
	}{
		{idx.byURI, t.URI},
		{idx.byISRC, t.ISRC},
		{idx.byKey, trackKey(t)},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		for _, i := range l.m[l.key] {
			if !idx.claimed[i] {
				idx.claimed[i] = true
				return true
			}
		}
	}
	return false
}

// trackKey is empty for untitled tracks so they never match on metadata alone.
func trackKey(t models.Track) string {
	if t.Title == "" {
		return ""
	}
	return shared.NormalizeTrackKey(t.Title, t.Artist)
}

func (idx *trackIndex) unclaimed() []models.Track {
	var out []models.Track
	for i, t := range idx.tracks {
		if !idx.claimed[i] {
			out = append(out, t)
		}
	}
	return out
}

// PlaylistMatch is a fuzzy search hit.
type PlaylistMatch struct {
	Playlist       models.Playlist
	Score          int
	MatchedIndexes []int // Byte offsets in the name that matched the query
}

type playlistNames []models.Playlist

func (p playlistNames) String(i int) string { return p[i].Name }
func (p playlistNames) Len() int            { return len(p) }

// FindPlaylists returns the playlists whose names fuzzily match query, best match first.
func FindPlaylists(playlists []models.Playlist, query string) ([]PlaylistMatch, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	matches := fuzzy.FindFrom(query, playlistNames(playlists))
	out := make([]PlaylistMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, PlaylistMatch{
			Playlist:       playlists[m.Index],
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
	}
	return out, nil
}

// ReplicateResult describes a liked tracks replication.
type ReplicateResult struct {
	Playlist *models.Playlist
	Created  bool // The replica playlist did not exist before
	Liked    int  // Liked tracks loaded
	Added    int  // Tracks appended to the replica
}

// ReplicateLiked copies the liked tracks into the public replica playlist.
//
// The replica is created on first use. Afterwards only liked tracks it does not already hold are appended.
func (e *Engine) ReplicateLiked(ctx context.Context, lib Library, progress chan<- ProgressUpdate) (*ReplicateResult, error) {
	playlists, err := lib.UserPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	likedOpts := LoadOpts{Name: "Liked Tracks", Concurrent: true}
	result := &ReplicateResult{Playlist: findReplica(playlists)}

	var liked, existing *models.Snapshot
	if result.Playlist == nil {
		pl, err := lib.CreatePlaylist(ctx, ReplicaName, ReplicaDescription, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", ReplicaName, err)
		}
		result.Playlist = pl
		result.Created = true
		e.sendProgress(progress, createPlaylistUpdate(pl))

		liked, err = e.Load(ctx, lib.PlaylistFetcher(""), likedOpts, progress)
		if err != nil {
			return nil, err
		}
	} else {
		replicaOpts := LoadOpts{PlaylistID: result.Playlist.ID, Name: ReplicaName, Concurrent: true}
		liked, existing, err = e.LoadPair(ctx, lib.PlaylistFetcher(""), lib.PlaylistFetcher(result.Playlist.ID), likedOpts, replicaOpts)
		if err != nil {
			return nil, err
		}
	}
	result.Liked = len(liked.Tracks)

	uris := missingURIs(liked, existing)
	e.logger.Info("replicating liked tracks", "playlist", result.Playlist.ID, "liked", result.Liked, "missing", len(uris))

	result.Added, err = e.SendBatches(ctx, lib.PlaylistSender(result.Playlist.ID), uris, nil, progress)
	if err != nil {
		return result, err
	}
	return result, nil
}

func findReplica(playlists []models.Playlist) *models.Playlist {
	for i := range playlists {
		if playlists[i].Name == ReplicaName && playlists[i].Description == ReplicaDescription {
			return &playlists[i]
		}
	}
	return nil
}

// missingURIs lists the URIs of src in order, skipping any already present in dst.
func missingURIs(src, dst *models.Snapshot) []string {
	present := make(map[string]struct{})
	if dst != nil {
		for _, t := range dst.Tracks {
			present[t.URI] = struct{}{}
		}
	}

	uris := make([]string, 0, len(src.Tracks))
	for _, t := range src.Tracks {
		if t.URI == "" {
			continue
		}
		if _, ok := present[t.URI]; ok {
			continue
		}
		present[t.URI] = struct{}{}
		uris = append(uris, t.URI)
	}
	return uris
}

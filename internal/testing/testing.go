// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/paging"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/desertthunder/echo/internal/tasks"
)

// MockService is an in-memory test double for [services.Service]
//
// Collections are keyed by playlist ID; the empty key holds the liked tracks.
type MockService struct {
	mu          sync.Mutex
	Playlists   []models.Playlist
	Collections map[string][]models.Track
	Added       map[string][]string // URIs appended per playlist
	Err         error               // Returned by every call when set
}

// NewMockService creates a MockService with the given liked tracks.
func NewMockService(liked []models.Track) *MockService {
	return &MockService{
		Collections: map[string][]models.Track{"": liked},
		Added:       map[string][]string{},
	}
}

// AddPlaylist registers a playlist and its tracks.
func (m *MockService) AddPlaylist(pl models.Playlist, tracks []models.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl.TrackCount = len(tracks)
	m.Playlists = append(m.Playlists, pl)
	m.Collections[pl.ID] = tracks
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.Err
}

func (m *MockService) Name() string { return "mock" }

func (m *MockService) UserPlaylists(ctx context.Context) ([]models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]models.Playlist(nil), m.Playlists...), nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	pl := models.Playlist{ID: fmt.Sprintf("created%d", len(m.Playlists)), Name: name, Description: description, Public: public}
	m.Playlists = append(m.Playlists, pl)
	m.Collections[pl.ID] = nil
	return &pl, nil
}

func (m *MockService) PlaylistFetcher(id string) tasks.Source {
	return &mockCollection{svc: m, id: id}
}

func (m *MockService) PlaylistSender(id string) tasks.BatchSender {
	return tasks.BatchSenderFunc(func(ctx context.Context, items []string, position *uint32) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.Err != nil {
			return m.Err
		}
		m.Added[id] = append(m.Added[id], items...)
		return nil
	})
}

type mockCollection struct {
	svc *MockService
	id  string
}

func (c *mockCollection) tracks() ([]models.Track, error) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if c.svc.Err != nil {
		return nil, c.svc.Err
	}
	tracks, ok := c.svc.Collections[c.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, c.id)
	}
	return tracks, nil
}

func (c *mockCollection) FetchPage(ctx context.Context, w paging.Window) (*tasks.Page, error) {
	tracks, err := c.tracks()
	if err != nil {
		return nil, err
	}
	start := min(int(w.Offset), len(tracks))
	end := min(int(w.End()), len(tracks))
	return &tasks.Page{Window: w, Items: append([]models.Track(nil), tracks[start:end]...), Total: len(tracks)}, nil
}

func (c *mockCollection) Total(ctx context.Context) (int, error) {
	tracks, err := c.tracks()
	return len(tracks), err
}

// Tracks builds n numbered tracks.
func Tracks(n int) []models.Track {
	tracks := make([]models.Track, n)
	for i := range tracks {
		tracks[i] = models.Track{
			ID:     fmt.Sprintf("t%d", i),
			URI:    fmt.Sprintf("spotify:track:t%d", i),
			Title:  fmt.Sprintf("Song %d", i),
			Artist: "Artist",
		}
	}
	return tracks
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

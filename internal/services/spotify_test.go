package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/echo/internal/paging"
	"github.com/desertthunder/echo/internal/server"
	"github.com/desertthunder/echo/internal/shared"
	"golang.org/x/oauth2"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
}

// newTestService returns an authenticated service talking to handler.
func newTestService(t *testing.T, handler http.Handler, opts ...SpotifyOption) *SpotifyService {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := NewSpotifyService(testCredentials, append([]SpotifyOption{WithBaseURL(ts.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := srv.Authenticate(context.Background(), map[string]string{"access_token": "test_access_token"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func trackItems(start, n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		id := fmt.Sprintf("t%d", start+i)
		items[i] = map[string]any{
			"added_at": "2024-01-01T00:00:00Z",
			"track": map[string]any{
				"id":           id,
				"name":         "Song " + id,
				"uri":          "spotify:track:" + id,
				"duration_ms":  185000,
				"artists":      []map[string]any{{"id": "a1", "name": "Artist"}, {"id": "a2", "name": "Feature"}},
				"album":        map[string]any{"id": "al1", "name": "Album"},
				"external_ids": map[string]any{"isrc": "ISRC" + id},
			},
		}
	}
	return items
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			credentials := map[string]string{
				"client_id":     "test_client_id",
				"client_secret": "test_client_secret",
				"redirect_uri":  "http://127.0.0.1:4000/callback",
			}

			srv, err := NewSpotifyService(credentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.config.RedirectURL != "http://127.0.0.1:4000/callback" {
				t.Errorf("unexpected redirect URI %s", srv.config.RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "test_client_secret"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "test_client_id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.config.RedirectURL != DefaultRedirectURI {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})

		t.Run("Rate Limit Option", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials, WithRateLimit(4))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.limiter.Limit() != 4 {
				t.Errorf("expected limit 4, got %v", srv.limiter.Limit())
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.GetAuthURL("test_state")
		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "playlist-modify-public", "user-library-read"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL should contain %q: %s", want, authURL)
			}
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("WithAccessToken", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{"access_token": "test_access_token"})
			if err != nil {
				t.Errorf("expected no error with access token, got %v", err)
			}
			if srv.token == nil || srv.token.AccessToken != "test_access_token" {
				t.Errorf("expected access token to be set, got %+v", srv.token)
			}
		})

		t.Run("Missing Credentials", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Not Authenticated", func(t *testing.T) {
			fresh, _ := NewSpotifyService(testCredentials)
			if _, err := fresh.UserProfile(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})

	t.Run("Exchange", func(t *testing.T) {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse form: %v", err)
			}
			if r.Form.Get("code") != "AUTH123" {
				t.Errorf("unexpected code %q", r.Form.Get("code"))
			}
			writeJSON(t, w, map[string]any{
				"access_token":  "new_access",
				"refresh_token": "new_refresh",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		}))
		defer tokenServer.Close()

		srv, err := NewSpotifyService(testCredentials, WithAuthEndpoints(tokenServer.URL+"/authorize", tokenServer.URL+"/token"))
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("state mismatch", func(t *testing.T) {
			_, err := srv.Exchange(context.Background(), &server.Credentials{AuthCode: "AUTH123", CSRFToken: "other"}, "CSRF456")
			if !errors.Is(err, shared.ErrStateMismatch) {
				t.Errorf("expected ErrStateMismatch, got %v", err)
			}
		})

		t.Run("success", func(t *testing.T) {
			token, err := srv.Exchange(context.Background(), &server.Credentials{AuthCode: "AUTH123", CSRFToken: "CSRF456"}, "CSRF456")
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if token.AccessToken != "new_access" || token.RefreshToken != "new_refresh" {
				t.Errorf("unexpected token %+v", token)
			}
			if srv.token != token {
				t.Error("service should use the exchanged token")
			}
		})
	})

	t.Run("SetTokenRefreshCallback", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("sets callback successfully", func(t *testing.T) {
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) {})
			if srv.onTokenRefresh == nil {
				t.Error("expected callback to be set")
			}
		})

		t.Run("can set nil callback", func(t *testing.T) {
			srv.SetTokenRefreshCallback(nil)
			if srv.onTokenRefresh != nil {
				t.Error("expected callback to be nil")
			}
		})

		t.Run("receives tokens used for requests", func(t *testing.T) {
			svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test_access_token" {
					t.Errorf("unexpected Authorization header %q", got)
				}
				writeJSON(t, w, map[string]any{"id": "u1"})
			}))

			var received []string
			svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
				received = append(received, token.AccessToken)
			})

			if _, err := svc.UserProfile(context.Background()); err != nil {
				t.Fatalf("UserProfile failed: %v", err)
			}
			if len(received) != 1 || received[0] != "test_access_token" {
				t.Errorf("unexpected callback tokens %v", received)
			}
		})
	})

	t.Run("refreshableTokenSource", func(t *testing.T) {
		t.Run("calls callback on first token fetch", func(t *testing.T) {
			var captured *oauth2.Token
			source := &refreshableTokenSource{
				source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
				callback: func(token *oauth2.Token) { captured = token },
			}

			token, err := source.Token()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if captured == nil || captured.AccessToken != "test_token" {
				t.Errorf("expected captured token, got %+v", captured)
			}
			if token.AccessToken != "test_token" {
				t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
			}
		})

		t.Run("calls callback when token changes", func(t *testing.T) {
			callCount := 0
			mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
			source := &refreshableTokenSource{
				source:   mock,
				callback: func(token *oauth2.Token) { callCount++ },
			}

			_, _ = source.Token()
			mock.token = &oauth2.Token{AccessToken: "token2"}
			token2, _ := source.Token()

			if callCount != 2 {
				t.Errorf("expected callback called twice, got %d", callCount)
			}
			if token2.AccessToken != "token2" {
				t.Errorf("expected new token, got %s", token2.AccessToken)
			}
		})

		t.Run("doesn't call callback when token unchanged", func(t *testing.T) {
			callCount := 0
			source := &refreshableTokenSource{
				source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "same_token"}},
				callback: func(token *oauth2.Token) { callCount++ },
			}

			source.Token()
			source.Token()
			source.Token()

			if callCount != 1 {
				t.Errorf("expected callback called once, got %d", callCount)
			}
		})

		t.Run("handles nil callback gracefully", func(t *testing.T) {
			source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}}}
			token, err := source.Token()
			if err != nil || token.AccessToken != "test_token" {
				t.Errorf("token=%v err=%v", token, err)
			}
		})

		t.Run("propagates source errors", func(t *testing.T) {
			source := &refreshableTokenSource{
				source: &mockTokenSource{err: errors.New("token source error")},
				callback: func(token *oauth2.Token) {
					t.Error("callback should not be called on error")
				},
			}

			token, err := source.Token()
			if err == nil || !strings.Contains(err.Error(), "token source error") {
				t.Errorf("expected source error, got %v", err)
			}
			if token != nil {
				t.Error("expected nil token on error")
			}
		})
	})
}

func TestSpotifyService_Reads(t *testing.T) {
	t.Run("playlist fetcher reads a window", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/playlists/pl1/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("offset") != "50" || r.URL.Query().Get("limit") != "33" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			items := trackItems(50, 33)
			items = append(items, map[string]any{"added_at": "2024-01-01T00:00:00Z", "track": nil})
			writeJSON(t, w, map[string]any{"items": items, "total": 83, "limit": 33, "offset": 50})
		}))

		page, err := srv.PlaylistFetcher("pl1").FetchPage(context.Background(), paging.Window{Offset: 50, Limit: 33})
		if err != nil {
			t.Fatalf("FetchPage failed: %v", err)
		}
		if len(page.Items) != 33 {
			t.Fatalf("expected 33 tracks (unavailable item skipped), got %d", len(page.Items))
		}
		if page.Total != 83 || page.Window.Offset != 50 {
			t.Errorf("total=%d window=%v", page.Total, page.Window)
		}

		first := page.Items[0]
		if first.ID != "t50" || first.URI != "spotify:track:t50" || first.Artist != "Artist" ||
			first.Album != "Album" || first.Duration != 185 || first.ISRC != "ISRCt50" {
			t.Errorf("unexpected track mapping %+v", first)
		}
	})

	t.Run("empty id reads liked tracks", func(t *testing.T) {
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			writeJSON(t, w, map[string]any{"items": trackItems(0, 1), "total": 412})
		}))

		total, err := srv.PlaylistFetcher("").Total(context.Background())
		if err != nil {
			t.Fatalf("Total failed: %v", err)
		}
		if total != 412 {
			t.Errorf("expected 412, got %d", total)
		}
	})

	t.Run("user playlists follows pages", func(t *testing.T) {
		var mu sync.Mutex
		var offsets []string
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			offsets = append(offsets, r.URL.Query().Get("offset"))
			mu.Unlock()

			if r.URL.Query().Get("offset") == "0" {
				next := "next"
				writeJSON(t, w, map[string]any{
					"items": []map[string]any{{"id": "p1", "name": "One", "tracks": map[string]any{"total": 3}}},
					"next":  next,
				})
				return
			}
			writeJSON(t, w, map[string]any{
				"items": []map[string]any{{"id": "p2", "name": "Two", "public": true, "owner": map[string]any{"display_name": "me"}}},
			})
		}))

		playlists, err := srv.UserPlaylists(context.Background())
		if err != nil {
			t.Fatalf("UserPlaylists failed: %v", err)
		}
		if len(playlists) != 2 || playlists[0].TrackCount != 3 || !playlists[1].Public || playlists[1].Owner != "me" {
			t.Errorf("unexpected playlists %+v", playlists)
		}
		if strings.Join(offsets, ",") != "0,50" {
			t.Errorf("unexpected offsets %v", offsets)
		}
	})

	t.Run("status errors", func(t *testing.T) {
		tt := []struct {
			name   string
			status int
			want   error
		}{
			{"unauthorized", http.StatusUnauthorized, shared.ErrTokenExpired},
			{"not found", http.StatusNotFound, shared.ErrPlaylistNotFound},
			{"server error", http.StatusInternalServerError, shared.ErrAPIRequest},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tc.status)
					writeJSON(t, w, map[string]any{"error": map[string]any{"status": tc.status, "message": "nope"}})
				}))

				_, err := srv.Playlist(context.Background(), "pl1")
				if !errors.Is(err, tc.want) {
					t.Errorf("expected %v, got %v", tc.want, err)
				}
				if err != nil && !strings.Contains(err.Error(), "nope") {
					t.Errorf("error should carry API message: %v", err)
				}
			})
		}

		if !IsAuthError(fmt.Errorf("wrapped: %w", shared.ErrTokenExpired)) {
			t.Error("IsAuthError should detect expired tokens")
		}
	})
}

func TestSpotifyService_Writes(t *testing.T) {
	t.Run("add items with position", func(t *testing.T) {
		var got addItemsRequest
		var raw map[string]any
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/playlists/pl1/tracks" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			raw = nil
			if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			got.URIs = nil
			for _, u := range raw["uris"].([]any) {
				got.URIs = append(got.URIs, u.(string))
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"snapshot_id": "s1"})
		}))

		pos := uint32(110)
		if err := srv.PlaylistSender("pl1").SendBatch(context.Background(), []string{"spotify:track:a", "spotify:track:b"}, &pos); err != nil {
			t.Fatalf("SendBatch failed: %v", err)
		}
		if len(got.URIs) != 2 || got.URIs[1] != "spotify:track:b" {
			t.Errorf("unexpected uris %v", got.URIs)
		}
		if raw["position"] != float64(110) {
			t.Errorf("expected position 110, got %v", raw["position"])
		}

		if err := srv.AddItems(context.Background(), "pl1", []string{"spotify:track:a"}, nil); err != nil {
			t.Fatalf("AddItems failed: %v", err)
		}
		if _, ok := raw["position"]; ok {
			t.Error("position should be omitted when appending")
		}
	})

	t.Run("configured batch limit", func(t *testing.T) {
		var posts int
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posts++
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"snapshot_id": "s1"})
		}), WithBatchLimit(10))

		err := srv.AddItems(context.Background(), "pl1", make([]string, 11), nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput above the configured limit, got %v", err)
		}
		if err := srv.AddItems(context.Background(), "pl1", make([]string, 10), nil); err != nil {
			t.Errorf("expected a full batch to be accepted, got %v", err)
		}
		if posts != 1 {
			t.Errorf("expected 1 request, got %d", posts)
		}

		capped, _ := NewSpotifyService(testCredentials, WithBatchLimit(150))
		if capped.batchLimit != paging.DefaultBatchLimit {
			t.Errorf("limit above the API maximum should be ignored, got %d", capped.batchLimit)
		}
	})

	t.Run("add items rejects oversized batches", func(t *testing.T) {
		srv, _ := NewSpotifyService(testCredentials)
		err := srv.AddItems(context.Background(), "pl1", make([]string, paging.DefaultBatchLimit+1), nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("create playlist for current user", func(t *testing.T) {
		var body createPlaylistRequest
		profileCalls := 0
		srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/me":
				profileCalls++
				writeJSON(t, w, map[string]any{"id": "u1"})
			case "/users/u1/playlists":
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("failed to decode body: %v", err)
				}
				w.WriteHeader(http.StatusCreated)
				writeJSON(t, w, map[string]any{"id": "new", "name": body.Name, "description": body.Description, "public": body.Public})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))

		for range 2 {
			pl, err := srv.CreatePlaylist(context.Background(), "SaVeD TrAcKs", "desc", true)
			if err != nil {
				t.Fatalf("CreatePlaylist failed: %v", err)
			}
			if pl.ID != "new" || !pl.Public || pl.Description != "desc" {
				t.Errorf("unexpected playlist %+v", pl)
			}
		}
		if profileCalls != 1 {
			t.Errorf("profile should be cached, fetched %d times", profileCalls)
		}
	})
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

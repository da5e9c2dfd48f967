// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/paging"
	"github.com/desertthunder/echo/internal/server"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/desertthunder/echo/internal/tasks"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	DefaultRedirectURI = "http://127.0.0.1:3000/callback"
)

// Scopes requested during authorization.
var Scopes = []string{
	"user-library-read",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type trackTotal struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a simplified playlist object.
type SpotifyPlaylist struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       Owner      `json:"owner"`
	Public      bool       `json:"public"`
	Tracks      trackTotal `json:"tracks"`
	URI         string     `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist or the user's library.
//
// Track is nil for items that are no longer available.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of playlist items or saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifyPlaylistTrack `json:"items"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifyPlaylist `json:"items"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type addItemsRequest struct {
	URIs     []string `json:"uris"`
	Position *uint32  `json:"position,omitempty"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and provides methods for playlist and track operations.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	httpClient     *http.Client
	credentials    map[string]string
	baseURL        string
	limiter        *rate.Limiter
	pageLimit      uint32
	batchLimit     int
	logger         *log.Logger
	onTokenRefresh func(*oauth2.Token)

	mu   sync.Mutex
	user *SpotifyUser
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL points the service at a different API root.
func WithBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = u }
}

// WithAuthEndpoints overrides the OAuth2 authorization and token URLs.
func WithAuthEndpoints(authURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		s.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
}

// WithRateLimit paces API requests. Zero or less disables pacing.
func WithRateLimit(requestsPerSecond float64) SpotifyOption {
	return func(s *SpotifyService) {
		if requestsPerSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithPageLimit sets the page size used when listing playlists.
func WithPageLimit(limit uint32) SpotifyOption {
	return func(s *SpotifyService) {
		if limit > 0 {
			s.pageLimit = limit
		}
	}
}

// WithBatchLimit caps the number of items a single [SpotifyService.AddItems] call accepts.
// Values outside (0, [paging.DefaultBatchLimit]] keep the API maximum.
func WithBatchLimit(limit int) SpotifyOption {
	return func(s *SpotifyService) {
		if limit > 0 && limit <= paging.DefaultBatchLimit {
			s.batchLimit = limit
		}
	}
}

// WithServiceLogger sets the logger for request tracing.
func WithServiceLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		credentials: credentials,
		baseURL:     spotifyBaseURL,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		pageLimit:   paging.DefaultPageLimit,
		batchLimit:  paging.DefaultBatchLimit,
		logger:      shared.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// SetTokenRefreshCallback registers fn to receive every new token. A nil fn stops notifications.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

// tokenChanged forwards a token to the registered callback, if any.
func (s *SpotifyService) tokenChanged(token *oauth2.Token) {
	s.mu.Lock()
	fn := s.onTokenRefresh
	s.mu.Unlock()
	if fn != nil {
		fn(token)
	}
}

// Authenticate performs OAuth2 authentication with Spotify.
//
// Expects an "access_token" and/or "refresh_token", or an "auth_code" to exchange, in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	access, refresh := credentials["access_token"], credentials["refresh_token"]
	if access != "" || refresh != "" {
		s.AuthenticateToken(ctx, &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"})
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		if _, err := s.exchange(ctx, authCode); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("%w: missing access_token, refresh_token or auth_code", shared.ErrMissingCredentials)
}

// AuthenticateToken uses a previously stored token.
func (s *SpotifyService) AuthenticateToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.tokenChanged,
	}
	s.httpClient = oauth2.NewClient(ctx, source)
}

// Exchange trades the authorization code captured by the redirect listener for a token.
//
// The captured state must equal expectedState, the value sent with the authorization URL.
func (s *SpotifyService) Exchange(ctx context.Context, creds *server.Credentials, expectedState string) (*oauth2.Token, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: no credentials captured", shared.ErrAuthFailed)
	}
	if creds.CSRFToken != expectedState {
		return nil, shared.ErrStateMismatch
	}
	return s.exchange(ctx, creds.AuthCode)
}

func (s *SpotifyService) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.AuthenticateToken(ctx, token)
	return token, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	s.logger.Debug("spotify request", "method", method, "endpoint", endpoint)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(method, endpoint, resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func responseError(method, endpoint string, resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var body apiError
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}

	sentinel := shared.ErrAPIRequest
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		sentinel = shared.ErrTokenExpired
	case http.StatusNotFound:
		sentinel = shared.ErrPlaylistNotFound
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", sentinel, method, endpoint, resp.StatusCode, msg)
}

func windowQuery(w paging.Window) string {
	q := url.Values{}
	q.Set("limit", strconv.FormatUint(uint64(w.Limit), 10))
	q.Set("offset", strconv.FormatUint(uint64(w.Offset), 10))
	return q.Encode()
}

// UserProfile retrieves the current authenticated user's profile. The result is cached.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	s.mu.Lock()
	cached := s.user
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return &user, nil
}

// PlaylistsPage retrieves one window of the current user's playlists.
func (s *SpotifyService) PlaylistsPage(ctx context.Context, w paging.Window) (*SpotifyPaginatedPlaylists, error) {
	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, http.MethodGet, "/me/playlists?"+windowQuery(w), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// UserPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) UserPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var all []models.Playlist
	w := paging.Window{Offset: 0, Limit: s.pageLimit}

	for {
		response, err := s.PlaylistsPage(ctx, w)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			all = append(all, toModelPlaylist(sp))
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		w.Offset += w.Limit
	}

	return all, nil
}

// Playlist retrieves a playlist's metadata by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	q := url.Values{}
	q.Set("fields", "id,name,description,public,uri,owner(id,display_name),tracks(total)")
	endpoint := fmt.Sprintf("/playlists/%s?%s", url.PathEscape(playlistID), q.Encode())

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &playlist); err != nil {
		return nil, err
	}

	pl := toModelPlaylist(playlist)
	return &pl, nil
}

// PlaylistItems retrieves one window of a playlist's tracks.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string, w paging.Window) (*SpotifyPaginatedTracks, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), windowQuery(w))

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// SavedTracks retrieves one window of the user's liked tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, w paging.Window) (*SpotifyPaginatedTracks, error) {
	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, "/me/tracks?"+windowQuery(w), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// CollectionTotal returns the number of items in a playlist, or in the liked tracks when playlistID is empty.
func (s *SpotifyService) CollectionTotal(ctx context.Context, playlistID string) (int, error) {
	probe := paging.Window{Offset: 0, Limit: 1}

	var (
		response *SpotifyPaginatedTracks
		err      error
	)
	if playlistID == "" {
		response, err = s.SavedTracks(ctx, probe)
	} else {
		response, err = s.PlaylistItems(ctx, playlistID, probe)
	}
	if err != nil {
		return 0, err
	}
	return response.Total, nil
}

// CreatePlaylist creates a playlist owned by the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	body := createPlaylistRequest{Name: name, Description: description, Public: public}

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, err
	}

	pl := toModelPlaylist(playlist)
	return &pl, nil
}

// AddItems adds up to the configured batch limit of item URIs to a playlist.
//
// A nil position appends; otherwise the items are inserted starting at that zero-based index.
func (s *SpotifyService) AddItems(ctx context.Context, playlistID string, uris []string, position *uint32) error {
	if len(uris) == 0 {
		return fmt.Errorf("%w: no items to add", shared.ErrInvalidInput)
	}
	if len(uris) > s.batchLimit {
		return fmt.Errorf("%w: at most %d items per request, got %d", shared.ErrInvalidInput, s.batchLimit, len(uris))
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPost, endpoint, addItemsRequest{URIs: uris, Position: position}, nil)
}

// PlaylistFetcher returns a page source over a playlist, or over the liked tracks when id is empty.
func (s *SpotifyService) PlaylistFetcher(id string) tasks.Source {
	return &collection{svc: s, playlistID: id}
}

// PlaylistSender returns a batch sender writing into the playlist id.
func (s *SpotifyService) PlaylistSender(id string) tasks.BatchSender {
	return tasks.BatchSenderFunc(func(ctx context.Context, items []string, position *uint32) error {
		return s.AddItems(ctx, id, items, position)
	})
}

// collection adapts a playlist or the liked tracks to [tasks.Source].
type collection struct {
	svc        *SpotifyService
	playlistID string
}

func (c *collection) FetchPage(ctx context.Context, w paging.Window) (*tasks.Page, error) {
	var (
		response *SpotifyPaginatedTracks
		err      error
	)
	if c.playlistID == "" {
		response, err = c.svc.SavedTracks(ctx, w)
	} else {
		response, err = c.svc.PlaylistItems(ctx, c.playlistID, w)
	}
	if err != nil {
		return nil, err
	}

	page := &tasks.Page{Window: w, Total: response.Total, Items: make([]models.Track, 0, len(response.Items))}
	for _, item := range response.Items {
		if item.Track == nil {
			c.svc.logger.Debug("skipping unavailable item", "playlist", models.StoreKey(c.playlistID), "window", w)
			continue
		}
		page.Items = append(page.Items, toModelTrack(*item.Track))
	}
	return page, nil
}

func (c *collection) Total(ctx context.Context) (int, error) {
	return c.svc.CollectionTotal(ctx, c.playlistID)
}

func toModelPlaylist(sp SpotifyPlaylist) models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
		Owner:       sp.Owner.DisplayName,
	}
}

func toModelTrack(st SpotifyTrack) models.Track {
	track := models.Track{
		ID:       st.ID,
		URI:      st.URI,
		Title:    st.Name,
		Album:    st.Album.Name,
		Duration: st.DurationMS / 1000,
		ISRC:     st.ExternalIDs.ISRC,
	}
	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}
	return track
}

// IsAuthError reports whether err means the user has to authorize again.
func IsAuthError(err error) bool {
	return errors.Is(err, shared.ErrTokenExpired) || errors.Is(err, shared.ErrNotAuthenticated)
}

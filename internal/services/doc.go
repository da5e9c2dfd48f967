// Package services implements the Spotify Web API client behind the playlist operations in package tasks.
//
// # Service Interface
//
// [Service] is what the CLI drives: authentication plus the [tasks.Library] capabilities (list and
// create playlists, read a collection page by page, append batches of items).
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] refreshes expired tokens using the refresh token. Every token it hands out is
// passed through [refreshableTokenSource], which reports changed tokens to the callback registered
// with [SpotifyService.SetTokenRefreshCallback] so the CLI can persist them.
//
// Requests are paced client-side by a [rate.Limiter] shared by every goroutine using the service,
// so concurrent page fetches stay under the configured request rate.
//
// # Adapters
//
//   - [SpotifyService.PlaylistFetcher] : a [tasks.Source] over a playlist, or over the liked tracks when the id is empty
//   - [SpotifyService.PlaylistSender] : a [tasks.BatchSender] appending or inserting into a playlist
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : the API answered 401, reauthorization needed
//   - [shared.ErrStateMismatch] : the redirect carried an unexpected state token
//   - [shared.ErrPlaylistNotFound] : the API answered 404
//   - [shared.ErrAPIRequest] : any other non-2xx response or transport failure
package services

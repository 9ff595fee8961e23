// Package services defines the [Service] interface for the Spotify Web API and implements it with [SpotifyService].
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] refreshes expired tokens using the refresh token; every new token is reported through
// the callback registered with [SpotifyService.SetTokenRefreshCallback] so the CLI can persist it.
//
// Requests are spaced by a [rate.Limiter] configured with [SpotifyService.SetRateLimit].
//
// # OAuth Service Extension
//
// The [OAuthService] interface extends Service for the authorization code flow run by the CLI.
//
// # Embeds
//
// [OEmbedClient] implements [Embedder] against the public oEmbed endpoint and parses the iframe source out of
// the returned markup.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : 401 response or failed refresh, reauthorization needed
//   - [shared.ErrRateLimited] : 429 response
//   - [shared.ErrAPIRequest] : any other failed request
//   - [shared.ErrEmbedLookupFailed] : oEmbed lookup failed
package services

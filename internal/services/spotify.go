// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultRedirectURI = "http://127.0.0.1:3000/callback"
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	PreviewURL string          `json:"preview_url"`
	URI        string          `json:"uri"`
	IsLocal    bool            `json:"is_local"`
}

// ArtistNames joins the credited artists' names with ", ".
func (t SpotifyTrack) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// PrimaryArtist returns the first credited artist, or a zero value for tracks without artists.
func (t SpotifyTrack) PrimaryArtist() SpotifyArtist {
	if len(t.Artists) == 0 {
		return SpotifyArtist{}
	}
	return t.Artists[0]
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for items that were removed from the catalog.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// ImageSet maps Spotify's size-descending image list onto large, medium and small slots.
func ImageSet(images []SpotifyImage) models.Images {
	var set models.Images
	slots := []*string{&set.Large, &set.Medium, &set.Small}
	for i, img := range images {
		if i >= len(slots) {
			break
		}
		*slots[i] = img.URL
	}
	return set
}

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and a [rate.Limiter] to space requests.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	httpClient     *http.Client
	credentials    map[string]string
	baseURL        string
	limiter        *rate.Limiter
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-top-read",
			"playlist-read-private",
			"playlist-read-collaborative",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		credentials: credentials,
		baseURL:     spotifyBaseURL,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}, nil
}

// SetBaseURL points the service at a different API root, such as a test server.
func (s *SpotifyService) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimSuffix(baseURL, "/")
}

// SetRateLimit spaces requests to at most rps per second. Non-positive values disable limiting.
func (s *SpotifyService) SetRateLimit(rps float64) {
	if rps <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// SetTokenRefreshCallback registers a function called whenever the client obtains a new access token.
func (s *SpotifyService) SetTokenRefreshCallback(callback func(*oauth2.Token)) {
	s.onTokenRefresh = callback
}

// Authenticate performs OAuth2 authentication with Spotify. Expects either an "access_token" or "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		return s.OAuthenticate(ctx, &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		})
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// OAuthenticate installs a token obtained elsewhere (config file, callback handler).
//
// The HTTP client refreshes the token when it expires and reports new tokens to the refresh callback.
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidCredentials)
	}

	s.token = token
	source := &refreshableTokenSource{
		source: s.config.TokenSource(ctx, token),
		callback: func(t *oauth2.Token) {
			s.token = t
			if s.onTokenRefresh != nil {
				s.onTokenRefresh(t)
			}
		},
		last: token.AccessToken,
	}
	s.httpClient = oauth2.NewClient(ctx, source)
	return nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the underlying OAuth2 configuration for callback handlers.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated GET against the Spotify API and decodes the JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh failed: %v", shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (retry after %q)", shared.ErrRateLimited, endpoint, resp.Header.Get("Retry-After"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", shared.ErrAPIRequest, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	return q
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopArtists retrieves one page of the user's top artists.
func (s *SpotifyService) TopArtists(ctx context.Context, window models.Window, limit, offset int) (*Page[SpotifyArtist], error) {
	q := pageQuery(limit, offset)
	q.Set("time_range", window.UpstreamValue())

	var page Page[SpotifyArtist]
	if err := s.doRequest(ctx, "/me/top/artists", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopTracks retrieves one page of the user's top tracks.
func (s *SpotifyService) TopTracks(ctx context.Context, window models.Window, limit, offset int) (*Page[SpotifyTrack], error) {
	q := pageQuery(limit, offset)
	q.Set("time_range", window.UpstreamValue())

	var page Page[SpotifyTrack]
	if err := s.doRequest(ctx, "/me/top/tracks", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Artist retrieves an artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*SpotifyArtist, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}

	var artist SpotifyArtist
	if err := s.doRequest(ctx, "/artists/"+url.PathEscape(artistID), nil, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*Page[SpotifySimplePlaylist], error) {
	var page Page[SpotifySimplePlaylist]
	if err := s.doRequest(ctx, "/me/playlists", pageQuery(limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistTracks retrieves one page of a playlist's items.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*Page[SpotifyPlaylistTrack], error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var page Page[SpotifyPlaylistTrack]
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := s.doRequest(ctx, endpoint, pageQuery(limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports each new access token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

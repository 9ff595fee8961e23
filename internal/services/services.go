package services

import (
	"context"

	"github.com/desertthunder/toptally/internal/models"
	"golang.org/x/oauth2"
)

// Service defines the subset of the Spotify Web API needed to snapshot a listener's top items.
type Service interface {
	// Authenticate configures the client from an "access_token" or exchanges an "auth_code".
	Authenticate(ctx context.Context, credentials map[string]string) error

	// CurrentUser retrieves the authenticated user's profile.
	CurrentUser(ctx context.Context) (*SpotifyUser, error)

	// TopArtists retrieves one page of the user's top artists for a window.
	TopArtists(ctx context.Context, window models.Window, limit, offset int) (*Page[SpotifyArtist], error)

	// TopTracks retrieves one page of the user's top tracks for a window.
	TopTracks(ctx context.Context, window models.Window, limit, offset int) (*Page[SpotifyTrack], error)

	// Artist retrieves a single artist by ID.
	Artist(ctx context.Context, artistID string) (*SpotifyArtist, error)

	// UserPlaylists retrieves one page of the current user's playlists.
	UserPlaylists(ctx context.Context, limit, offset int) (*Page[SpotifySimplePlaylist], error)

	// PlaylistTracks retrieves one page of a playlist's items.
	PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*Page[SpotifyPlaylistTrack], error)

	// Name returns the name of the service
	Name() string
}

// OAuthService extends [Service] with the authorization code flow used by the CLI.
type OAuthService interface {
	Service

	GetAuthURL(state string) string
	GetOAuthConfig() *oauth2.Config
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
	SetTokenRefreshCallback(callback func(*oauth2.Token))
}

// Embedder looks up embeddable player markup for a Spotify URI.
type Embedder interface {
	Embed(ctx context.Context, uri string) (*models.Embed, error)
}

// Page is one offset-paginated response from the Spotify Web API.
type Page[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
)

// MockService is an in-memory test double for [services.Service].
//
// Top items, artists and playlists are served from the exported maps with offset pagination.
// Fail* maps inject errors: FailTopArtists and FailTopTracks fail a window once Offset reaches the key's offset.
type MockService struct {
	User          services.SpotifyUser
	TopArtistsBy  map[models.Window][]services.SpotifyArtist
	TopTracksBy   map[models.Window][]services.SpotifyTrack
	ArtistsByID   map[string]services.SpotifyArtist
	Playlists     []services.SpotifySimplePlaylist
	PlaylistItems map[string][]services.SpotifyPlaylistTrack

	FailTopArtists map[models.Window]Failure
	FailTopTracks  map[models.Window]Failure
	FailArtist     map[string]error
	FailPlaylist   map[string]error

	mu          sync.Mutex
	artistCalls map[string]int
	calls       []string
}

// Failure makes a paginated call fail once the requested offset is at least AtOffset.
type Failure struct {
	AtOffset int
	Err      error
}

func (m *MockService) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns every call made in order, formatted as "method:arg@offset".
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// ArtistCalls returns how many times Artist was called for id.
func (m *MockService) ArtistCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artistCalls[id]
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (m *MockService) CurrentUser(ctx context.Context) (*services.SpotifyUser, error) {
	m.record("me")
	user := m.User
	return &user, nil
}

func (m *MockService) TopArtists(ctx context.Context, window models.Window, limit, offset int) (*services.Page[services.SpotifyArtist], error) {
	m.record(fmt.Sprintf("top_artists:%s@%d", window, offset))
	if f, ok := m.FailTopArtists[window]; ok && offset >= f.AtOffset {
		return nil, f.Err
	}
	return Paged(m.TopArtistsBy[window], limit, offset), nil
}

func (m *MockService) TopTracks(ctx context.Context, window models.Window, limit, offset int) (*services.Page[services.SpotifyTrack], error) {
	m.record(fmt.Sprintf("top_tracks:%s@%d", window, offset))
	if f, ok := m.FailTopTracks[window]; ok && offset >= f.AtOffset {
		return nil, f.Err
	}
	return Paged(m.TopTracksBy[window], limit, offset), nil
}

func (m *MockService) Artist(ctx context.Context, artistID string) (*services.SpotifyArtist, error) {
	m.record("artist:" + artistID)
	m.mu.Lock()
	if m.artistCalls == nil {
		m.artistCalls = map[string]int{}
	}
	m.artistCalls[artistID]++
	m.mu.Unlock()

	if err, ok := m.FailArtist[artistID]; ok {
		return nil, err
	}
	artist, ok := m.ArtistsByID[artistID]
	if !ok {
		return nil, fmt.Errorf("%w: artist %s not found", shared.ErrAPIRequest, artistID)
	}
	return &artist, nil
}

func (m *MockService) UserPlaylists(ctx context.Context, limit, offset int) (*services.Page[services.SpotifySimplePlaylist], error) {
	m.record(fmt.Sprintf("playlists@%d", offset))
	return Paged(m.Playlists, limit, offset), nil
}

func (m *MockService) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*services.Page[services.SpotifyPlaylistTrack], error) {
	m.record(fmt.Sprintf("playlist_tracks:%s@%d", playlistID, offset))
	if err, ok := m.FailPlaylist[playlistID]; ok {
		return nil, err
	}
	return Paged(m.PlaylistItems[playlistID], limit, offset), nil
}

func (m *MockService) Name() string { return "mock" }

// Paged slices items into a single Spotify-style page.
func Paged[T any](items []T, limit, offset int) *services.Page[T] {
	page := &services.Page[T]{Items: []T{}, Total: len(items), Limit: limit, Offset: offset}
	if offset >= len(items) {
		return page
	}
	end := min(offset+limit, len(items))
	page.Items = append(page.Items, items[offset:end]...)
	if end < len(items) {
		next := fmt.Sprintf("offset=%d", end)
		page.Next = &next
	}
	return page
}

// MockEmbedder is a test double for [services.Embedder] keyed by URI.
type MockEmbedder struct {
	Embeds map[string]models.Embed
	Err    error

	mu    sync.Mutex
	calls int
}

func (m *MockEmbedder) Embed(ctx context.Context, uri string) (*models.Embed, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	embed, ok := m.Embeds[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrEmbedLookupFailed, uri)
	}
	return &embed, nil
}

// Calls returns how many lookups were made.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NewSpotifyServer serves a [MockService] over HTTP with the Spotify Web API's routes and JSON shapes.
//
// Requests without a bearer token get 401. The server is closed with the test.
func NewSpotifyServer(t *testing.T, mock *MockService) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	page := func(r *http.Request) (int, int) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 20
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		return limit, offset
	}
	window := func(r *http.Request) models.Window {
		w, err := models.ParseWindow(r.URL.Query().Get("time_range"))
		if err != nil {
			return models.WindowMedium
		}
		return w
	}

	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		user, err := mock.CurrentUser(r.Context())
		respond(w, user, err)
	})
	mux.HandleFunc("GET /me/top/artists", func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		result, err := mock.TopArtists(r.Context(), window(r), limit, offset)
		respond(w, result, err)
	})
	mux.HandleFunc("GET /me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		result, err := mock.TopTracks(r.Context(), window(r), limit, offset)
		respond(w, result, err)
	})
	mux.HandleFunc("GET /artists/{id}", func(w http.ResponseWriter, r *http.Request) {
		result, err := mock.Artist(r.Context(), r.PathValue("id"))
		respond(w, result, err)
	})
	mux.HandleFunc("GET /me/playlists", func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		result, err := mock.UserPlaylists(r.Context(), limit, offset)
		respond(w, result, err)
	})
	mux.HandleFunc("GET /playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
		limit, offset := page(r)
		result, err := mock.PlaylistTracks(r.Context(), r.PathValue("id"), limit, offset)
		respond(w, result, err)
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, `{"error":{"status":401,"message":"No token provided"}}`, http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func respond(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, shared.ErrTokenExpired):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, shared.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
	}
	if err != nil {
		fmt.Fprintf(w, `{"error":{"message":%q}}`, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
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

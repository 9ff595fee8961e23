package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
)

// ArtistLookup is the single-artist endpoint used to resolve genres.
type ArtistLookup interface {
	Artist(ctx context.Context, artistID string) (*services.SpotifyArtist, error)
}

// GenreCache maps artist IDs to genre lists for the lifetime of one run.
//
// An entry, once stored, is never removed or replaced. Empty lists are valid entries.
type GenreCache struct {
	mu     sync.Mutex
	genres map[string][]string
}

// NewGenreCache creates an empty cache.
func NewGenreCache() *GenreCache {
	return &GenreCache{genres: make(map[string][]string)}
}

// Get returns the cached genres for id and whether an entry exists.
func (c *GenreCache) Get(id string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.genres[id]
	return slices.Clone(g), ok
}

// Put stores genres for id unless an entry already exists. It reports whether the value was stored.
func (c *GenreCache) Put(id string, genres []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.genres[id]; ok {
		return false
	}
	if genres == nil {
		genres = []string{}
	}
	c.genres[id] = slices.Clone(genres)
	return true
}

// Len returns the number of cached artists.
func (c *GenreCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.genres)
}

// GenreResolver resolves an artist's genres through a [GenreCache], looking each artist up at most once.
//
// The images from each lookup are kept too, for records that carry the artist's pictures.
type GenreResolver struct {
	lookup ArtistLookup
	cache  *GenreCache
	logger *log.Logger

	mu      sync.Mutex
	lookups int
	images  map[string]models.Images
}

// NewGenreResolver creates a resolver backed by cache. A nil cache gets a fresh one.
func NewGenreResolver(lookup ArtistLookup, cache *GenreCache, logger *log.Logger) *GenreResolver {
	if cache == nil {
		cache = NewGenreCache()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &GenreResolver{lookup: lookup, cache: cache, logger: logger, images: make(map[string]models.Images)}
}

// Resolve returns the genres for artistID, never failing.
//
// A failed lookup caches an empty list and logs a warning, so the artist is not retried in this run.
// An empty artistID (local files) resolves to an empty list without a lookup.
func (r *GenreResolver) Resolve(ctx context.Context, artistID string) []string {
	if artistID == "" {
		return []string{}
	}

	// held across the lookup so concurrent callers for the same id wait for the first
	r.mu.Lock()
	defer r.mu.Unlock()

	if genres, ok := r.cache.Get(artistID); ok {
		return genres
	}

	r.lookups++
	genres := []string{}
	artist, err := r.lookup.Artist(ctx, artistID)
	if err != nil {
		r.logger.Warn("genre lookup failed", "artist_id", artistID,
			"error", fmt.Errorf("%w: %s: %v", shared.ErrGenreLookupFailed, artistID, err))
	} else {
		if artist.Genres != nil {
			genres = artist.Genres
		}
		r.images[artistID] = services.ImageSet(artist.Images)
	}

	r.cache.Put(artistID, genres)
	return slices.Clone(genres)
}

// Seed caches an artist payload already in hand so later resolves skip the lookup.
//
// An artist already cached keeps its first genres and images.
func (r *GenreResolver) Seed(artist services.SpotifyArtist) {
	if artist.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache.Put(artist.ID, artist.Genres) {
		r.images[artist.ID] = services.ImageSet(artist.Images)
	}
}

// ArtistImages returns the images seen for artistID, empty when none were.
func (r *GenreResolver) ArtistImages(artistID string) models.Images {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.images[artistID]
}

// Lookups returns how many direct artist lookups have been made.
func (r *GenreResolver) Lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// Cache returns the resolver's cache.
func (r *GenreResolver) Cache() *GenreCache {
	return r.cache
}

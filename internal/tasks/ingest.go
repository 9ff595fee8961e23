package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
)

// SnapshotWriter appends one run's records to the snapshot tables.
type SnapshotWriter interface {
	AppendArtists(records []models.ArtistRecord, fetchedAt time.Time) (int, error)
	AppendTracks(records []models.TrackRecord, fetchedAt time.Time) (int, error)
	AppendPlaylistTracks(records []models.PlaylistTrackRecord, fetchedAt time.Time) (int, error)
}

// RunRecorder stores the audit row of a run.
type RunRecorder interface {
	Create(run *models.IngestRun) error
	Finish(run *models.IngestRun) error
}

// RunOptions configures a single ingestion run.
type RunOptions struct {
	Windows       []models.Window // Windows to fetch; empty means all
	Limit         int             // Top items per window; values below 1 mean 1
	Playlists     bool            // Also snapshot the tracks of the user's playlists
	PlaylistOwner string          // Owner ID filter for playlists; empty means the current user
	Embeds        bool            // Look up oEmbed markup per track
}

// RunResult contains everything a run fetched and wrote.
type RunResult struct {
	Run            *models.IngestRun
	Artists        []models.ArtistRecord
	Tracks         []models.TrackRecord
	PlaylistTracks []models.PlaylistTrackRecord
	FetchErrors    []error
	GenreLookups   int
}

// Ingestor runs the fetch → enrich → append pipeline.
type Ingestor struct {
	spotify   services.Service
	embedder  services.Embedder
	snapshots SnapshotWriter
	runs      RunRecorder
	logger    *log.Logger
	clock     func() time.Time
}

// NewIngestor creates an Ingestor. embedder and runs may be nil.
func NewIngestor(spotify services.Service, embedder services.Embedder, snapshots SnapshotWriter, runs RunRecorder, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Ingestor{
		spotify:   spotify,
		embedder:  embedder,
		snapshots: snapshots,
		runs:      runs,
		logger:    logger,
		clock:     time.Now,
	}
}

// SetClock replaces the time source used to stamp runs.
func (i *Ingestor) SetClock(clock func() time.Time) {
	i.clock = clock
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (i *Ingestor) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Run performs one ingestion run.
//
// The snapshot timestamp is captured once at the start; every record written carries it and the run's ID.
// Fetch failures are collected and make the run partial. A write failure stops the run,
// marks it failed and is returned together with the partial result.
func (i *Ingestor) Run(ctx context.Context, opts RunOptions, progress chan<- ProgressUpdate) (*RunResult, error) {
	if i.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if i.snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot store not initialized", shared.ErrServiceUnavailable)
	}

	windows := distinctWindows(opts.Windows)
	if len(windows) == 0 {
		windows = models.Windows
	}

	fetchedAt := i.clock().UTC().Truncate(time.Microsecond)
	run := &models.IngestRun{
		ID:        shared.GenerateID(),
		StartedAt: fetchedAt,
		Status:    models.RunRunning,
	}
	if i.runs != nil {
		if err := i.runs.Create(run); err != nil {
			return nil, fmt.Errorf("%w: failed to record run: %v", shared.ErrWriteFailed, err)
		}
	}

	result := &RunResult{Run: run}
	logger := shared.WithLogger(i.logger, "run_id", run.ID)
	i.sendProgress(progress, startRunUpdate(run))

	resolver := NewGenreResolver(i.spotify, NewGenreCache(), logger)
	embeds := newEmbedCache(i.embedder, opts.Embeds, logger)

	fetchFailed := func(phase Phase, err error) {
		logger.Warn("fetch failed", "phase", phase, "error", err)
		result.FetchErrors = append(result.FetchErrors, err)
		run.Errors = append(run.Errors, err.Error())
		i.sendProgress(progress, fetchFailedUpdate(phase, err))
	}

	step := 0
	artistResults := FetchRanked(ctx, windows, opts.Limit, func(ctx context.Context, w models.Window, limit, offset int) ([]services.SpotifyArtist, error) {
		if offset == 0 {
			step++
			i.sendProgress(progress, fetchWindowUpdate(FetchArtists, step, len(windows), w))
		}
		page, err := i.spotify.TopArtists(ctx, w, limit, offset)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
	for _, wr := range artistResults {
		if wr.Err != nil {
			fetchFailed(FetchArtists, wr.Err)
			continue
		}
		for _, ranked := range wr.Items {
			a := ranked.Item
			resolver.Seed(a)
			result.Artists = append(result.Artists, models.ArtistRecord{
				ID:        a.ID,
				Name:      a.Name,
				Genres:    nonNil(a.Genres),
				Window:    wr.Window,
				Rank:      ranked.Rank,
				Images:    services.ImageSet(a.Images),
				FetchedAt: fetchedAt,
				RunID:     run.ID,
			})
		}
	}

	step = 0
	trackResults := FetchRanked(ctx, windows, opts.Limit, func(ctx context.Context, w models.Window, limit, offset int) ([]services.SpotifyTrack, error) {
		if offset == 0 {
			step++
			i.sendProgress(progress, fetchWindowUpdate(FetchTracks, step, len(windows), w))
		}
		page, err := i.spotify.TopTracks(ctx, w, limit, offset)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
	for _, wr := range trackResults {
		if wr.Err != nil {
			fetchFailed(FetchTracks, wr.Err)
			continue
		}
		for n, ranked := range wr.Items {
			t := ranked.Item
			i.sendProgress(progress, enrichTrackUpdate(n+1, len(wr.Items), t.Name))

			primary := t.PrimaryArtist()
			result.Tracks = append(result.Tracks, models.TrackRecord{
				ID:              t.ID,
				Name:            t.Name,
				ArtistName:      t.ArtistNames(),
				PrimaryArtistID: primary.ID,
				Genres:          resolver.Resolve(ctx, primary.ID),
				Window:          wr.Window,
				Rank:            ranked.Rank,
				Explicit:        t.Explicit,
				PreviewURL:      t.PreviewURL,
				URI:             t.URI,
				Images:          services.ImageSet(t.Album.Images),
				Embed:           embeds.lookup(ctx, t.URI),
				FetchedAt:       fetchedAt,
				RunID:           run.ID,
			})
		}
	}

	if opts.Playlists {
		result.PlaylistTracks = i.fetchPlaylistTracks(ctx, opts.PlaylistOwner, resolver, embeds, fetchFailed, progress)
		for n := range result.PlaylistTracks {
			result.PlaylistTracks[n].FetchedAt = fetchedAt
			result.PlaylistTracks[n].RunID = run.ID
		}
	}

	result.GenreLookups = resolver.Lookups()

	if err := i.write(result, fetchedAt, opts.Playlists, progress); err != nil {
		run.Status = models.RunFailed
		run.Errors = append(run.Errors, err.Error())
		i.finish(run, logger, progress)
		return result, err
	}

	run.Status = models.RunSucceeded
	if len(result.FetchErrors) > 0 {
		run.Status = models.RunPartial
	}
	i.finish(run, logger, progress)

	return result, nil
}

// fetchPlaylistTracks walks the playlists owned by owner (default: the current user) and maps their tracks.
//
// Items without a catalog track are skipped. A failed playlist is reported and skipped.
func (i *Ingestor) fetchPlaylistTracks(ctx context.Context, owner string, resolver *GenreResolver, embeds *embedCache,
	fetchFailed func(Phase, error), progress chan<- ProgressUpdate) []models.PlaylistTrackRecord {
	if owner == "" {
		user, err := i.spotify.CurrentUser(ctx)
		if err != nil {
			fetchFailed(FetchPlaylists, fmt.Errorf("%w: current user: %v", shared.ErrFetchFailed, err))
			return nil
		}
		owner = user.ID
	}

	playlists, err := Paginate(ctx, MaxTopLimit, 0, func(ctx context.Context, limit, offset int) ([]services.SpotifySimplePlaylist, error) {
		page, err := i.spotify.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
	if err != nil {
		fetchFailed(FetchPlaylists, fmt.Errorf("%w: playlists: %v", shared.ErrFetchFailed, err))
		return nil
	}

	owned := playlists[:0:0]
	for _, pl := range playlists {
		if pl.Owner.ID == owner {
			owned = append(owned, pl)
		}
	}

	var records []models.PlaylistTrackRecord
	for n, pl := range owned {
		i.sendProgress(progress, fetchPlaylistUpdate(n+1, len(owned), pl.Name))

		items, err := Paginate(ctx, MaxPlaylistLimit, 0, func(ctx context.Context, limit, offset int) ([]services.SpotifyPlaylistTrack, error) {
			page, err := i.spotify.PlaylistTracks(ctx, pl.ID, limit, offset)
			if err != nil {
				return nil, err
			}
			return page.Items, nil
		})
		if err != nil {
			fetchFailed(FetchPlaylists, fmt.Errorf("%w: playlist %s: %v", shared.ErrFetchFailed, pl.ID, err))
			continue
		}

		for _, item := range items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			t := item.Track
			primary := t.PrimaryArtist()
			records = append(records, models.PlaylistTrackRecord{
				ID:           t.ID,
				Name:         t.Name,
				ArtistName:   primary.Name,
				ArtistID:     primary.ID,
				Genres:       resolver.Resolve(ctx, primary.ID),
				ArtistImages: resolver.ArtistImages(primary.ID),
				Explicit:     t.Explicit,
				Popularity:   t.Popularity,
				DurationMS:   t.DurationMS,
				PreviewURL:   t.PreviewURL,
				Album:        t.Album.Name,
				AddedAt:      item.AddedAt,
				URI:          t.URI,
				PlaylistID:   pl.ID,
				PlaylistName: pl.Name,
				Embed:        embeds.lookup(ctx, t.URI),
			})
		}
	}

	return records
}

// write appends each kind in turn, stopping at the first failure.
func (i *Ingestor) write(result *RunResult, fetchedAt time.Time, playlists bool, progress chan<- ProgressUpdate) error {
	run := result.Run
	total := 2
	if playlists {
		total = 3
	}

	i.sendProgress(progress, writeSnapshotUpdate(1, total, models.KindArtists, len(result.Artists)))
	n, err := i.snapshots.AppendArtists(result.Artists, fetchedAt)
	run.ArtistsWritten = n
	if err != nil {
		return err
	}

	i.sendProgress(progress, writeSnapshotUpdate(2, total, models.KindTracks, len(result.Tracks)))
	n, err = i.snapshots.AppendTracks(result.Tracks, fetchedAt)
	run.TracksWritten = n
	if err != nil {
		return err
	}

	if playlists {
		i.sendProgress(progress, writeSnapshotUpdate(3, total, models.KindPlaylistTracks, len(result.PlaylistTracks)))
		n, err = i.snapshots.AppendPlaylistTracks(result.PlaylistTracks, fetchedAt)
		run.PlaylistTracksWritten = n
		if err != nil {
			return err
		}
	}

	return nil
}

func (i *Ingestor) finish(run *models.IngestRun, logger *log.Logger, progress chan<- ProgressUpdate) {
	finished := i.clock().UTC().Truncate(time.Microsecond)
	run.FinishedAt = &finished

	if i.runs != nil {
		if err := i.runs.Finish(run); err != nil {
			logger.Warn("failed to record run result", "error", err)
		}
	}

	logger.Info("run finished", "status", run.Status,
		"artists", run.ArtistsWritten, "tracks", run.TracksWritten, "playlist_tracks", run.PlaylistTracksWritten)
	i.sendProgress(progress, finishRunUpdate(run))
}

// embedCache memoizes embed lookups by URI for one run. Failures resolve to an empty embed.
type embedCache struct {
	embedder services.Embedder
	enabled  bool
	logger   *log.Logger
	embeds   map[string]models.Embed
}

func newEmbedCache(embedder services.Embedder, enabled bool, logger *log.Logger) *embedCache {
	return &embedCache{
		embedder: embedder,
		enabled:  enabled && embedder != nil,
		logger:   logger,
		embeds:   make(map[string]models.Embed),
	}
}

func (c *embedCache) lookup(ctx context.Context, uri string) models.Embed {
	if !c.enabled || uri == "" {
		return models.Embed{}
	}
	if embed, ok := c.embeds[uri]; ok {
		return embed
	}

	var embed models.Embed
	found, err := c.embedder.Embed(ctx, uri)
	switch {
	case err != nil:
		if !errors.Is(err, shared.ErrEmbedLookupFailed) {
			err = fmt.Errorf("%w: %s: %v", shared.ErrEmbedLookupFailed, uri, err)
		}
		c.logger.Warn("embed lookup failed", "uri", uri, "error", err)
	case found != nil:
		embed = *found
	}

	c.embeds[uri] = embed
	return embed
}

func distinctWindows(windows []models.Window) []models.Window {
	seen := make(map[models.Window]bool, len(windows))
	out := make([]models.Window, 0, len(windows))
	for _, w := range windows {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

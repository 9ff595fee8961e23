package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
	tu "github.com/desertthunder/toptally/internal/testing"
)

var runTime = time.Date(2024, 6, 1, 8, 30, 0, 123456789, time.UTC)

func fixedClock() time.Time { return runTime }

func setupStore(t *testing.T) (*repositories.SnapshotRepository, *repositories.RunRepository) {
	t.Helper()

	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repositories.NewSnapshotRepository(db), repositories.NewRunRepository(db)
}

func newTestIngestor(spotify services.Service, embedder services.Embedder, snapshots SnapshotWriter, runs RunRecorder) *Ingestor {
	ing := NewIngestor(spotify, embedder, snapshots, runs, shared.NewLogger(io.Discard))
	ing.SetClock(fixedClock)
	return ing
}

func track(id, name string, artists ...services.SpotifyArtist) services.SpotifyTrack {
	return services.SpotifyTrack{ID: id, Name: name, Artists: artists, URI: "spotify:track:" + id}
}

// failingWriter fails the append for one kind.
type failingWriter struct {
	*repositories.SnapshotRepository
	failTracks bool
}

func (w *failingWriter) AppendTracks(records []models.TrackRecord, fetchedAt time.Time) (int, error) {
	if w.failTracks {
		return 0, errors.New("disk full")
	}
	return w.SnapshotRepository.AppendTracks(records, fetchedAt)
}

func TestIngestorRun(t *testing.T) {
	t.Run("ranks per window end to end", func(t *testing.T) {
		snapshots, runs := setupStore(t)
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{
				models.WindowLong:  {{ID: "a1", Name: "One"}, {ID: "a2", Name: "Two"}},
				models.WindowShort: {{ID: "a3", Name: "Three"}},
			},
		}

		result, err := newTestIngestor(mock, nil, snapshots, runs).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowLong, models.WindowShort},
			Limit:   2,
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		ranks := map[string]int{}
		windows := map[string]models.Window{}
		for _, a := range result.Artists {
			ranks[a.ID] = a.Rank
			windows[a.ID] = a.Window
		}
		if ranks["a1"] != 1 || ranks["a2"] != 2 || ranks["a3"] != 1 {
			t.Errorf("unexpected ranks %v", ranks)
		}
		if windows["a1"] != models.WindowLong || windows["a3"] != models.WindowShort {
			t.Errorf("unexpected windows %v", windows)
		}

		long, err := snapshots.LatestArtists(repositories.Query{Window: models.WindowLong})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(long) != 2 || long[0].ID != "a1" || long[1].ID != "a2" {
			t.Errorf("unexpected stored long artists %+v", long)
		}

		short, err := snapshots.LatestArtists(repositories.Query{Window: models.WindowShort})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(short) != 1 || short[0].ID != "a3" || short[0].Rank != 1 {
			t.Errorf("unexpected stored short artists %+v", short)
		}

		if result.Run.Status != models.RunSucceeded || result.Run.ArtistsWritten != 3 {
			t.Errorf("unexpected run %+v", result.Run)
		}
		stored, err := runs.Get(result.Run.ID)
		if err != nil {
			t.Fatalf("run not recorded: %v", err)
		}
		if stored.Status != models.RunSucceeded || stored.FinishedAt == nil {
			t.Errorf("unexpected stored run %+v", stored)
		}
	})

	t.Run("every record shares one timestamp and run id", func(t *testing.T) {
		snapshots, runs := setupStore(t)
		a1 := services.SpotifyArtist{ID: "a1", Name: "One"}
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{models.WindowShort: {a1}},
			TopTracksBy: map[models.Window][]services.SpotifyTrack{
				models.WindowShort:  {track("t1", "Song", a1)},
				models.WindowMedium: {track("t2", "Other", a1)},
			},
		}

		ticks := 0
		ing := newTestIngestor(mock, nil, snapshots, runs)
		ing.SetClock(func() time.Time {
			ticks++
			return runTime.Add(time.Duration(ticks) * time.Hour)
		})

		result, err := ing.Run(context.Background(), RunOptions{Limit: 10}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		stamp := result.Run.StartedAt
		if stamp.Nanosecond()%1000 != 0 {
			t.Errorf("expected microsecond precision, got %v", stamp)
		}
		for _, a := range result.Artists {
			if !a.FetchedAt.Equal(stamp) || a.RunID != result.Run.ID {
				t.Errorf("artist %s stamped %v/%s", a.ID, a.FetchedAt, a.RunID)
			}
		}
		for _, tr := range result.Tracks {
			if !tr.FetchedAt.Equal(stamp) || tr.RunID != result.Run.ID {
				t.Errorf("track %s stamped %v/%s", tr.ID, tr.FetchedAt, tr.RunID)
			}
		}

		stored, err := snapshots.LatestTracks(repositories.Query{Window: models.WindowMedium})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(stored) != 1 || !stored[0].FetchedAt.Equal(stamp) {
			t.Errorf("unexpected stored tracks %+v", stored)
		}
	})

	t.Run("genres resolved once per artist and seeded from top artists", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		top := services.SpotifyArtist{ID: "top", Name: "Top", Genres: []string{"shoegaze"}}
		other := services.SpotifyArtist{ID: "other", Name: "Other"}
		feat := services.SpotifyArtist{ID: "feat", Name: "Feat"}
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{models.WindowShort: {top}},
			TopTracksBy: map[models.Window][]services.SpotifyTrack{
				models.WindowShort: {
					track("t1", "A", top),
					track("t2", "B", other, feat),
					track("t3", "C", other),
				},
				models.WindowLong: {track("t2", "B", other, feat)},
			},
			ArtistsByID: map[string]services.SpotifyArtist{
				"other": {ID: "other", Genres: []string{"dream pop"}},
			},
		}

		result, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort, models.WindowLong},
			Limit:   50,
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if mock.ArtistCalls("top") != 0 {
			t.Errorf("expected seeded artist not to be looked up")
		}
		if mock.ArtistCalls("other") != 1 {
			t.Errorf("expected one lookup for other, got %d", mock.ArtistCalls("other"))
		}
		if mock.ArtistCalls("feat") != 0 {
			t.Error("expected only the primary artist to be resolved")
		}
		if result.GenreLookups != 1 {
			t.Errorf("expected 1 genre lookup, got %d", result.GenreLookups)
		}

		byID := map[string]models.TrackRecord{}
		for _, tr := range result.Tracks {
			byID[tr.ID] = tr
		}
		if byID["t1"].Genres[0] != "shoegaze" || byID["t3"].Genres[0] != "dream pop" {
			t.Errorf("unexpected genres %v / %v", byID["t1"].Genres, byID["t3"].Genres)
		}
		if byID["t2"].ArtistName != "Other, Feat" || byID["t2"].PrimaryArtistID != "other" {
			t.Errorf("unexpected artist fields %+v", byID["t2"])
		}
	})

	t.Run("failed genre lookup keeps the track", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		ghost := services.SpotifyArtist{ID: "ghost", Name: "Ghost"}
		mock := &tu.MockService{
			TopTracksBy: map[models.Window][]services.SpotifyTrack{
				models.WindowShort: {track("t1", "A", ghost), track("t2", "B", ghost)},
			},
			FailArtist: map[string]error{"ghost": errors.New("boom")},
		}

		result, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort},
			Limit:   10,
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if len(result.Tracks) != 2 || result.Run.TracksWritten != 2 {
			t.Fatalf("expected both tracks kept, got %d", len(result.Tracks))
		}
		for _, tr := range result.Tracks {
			if tr.Genres == nil || len(tr.Genres) != 0 {
				t.Errorf("expected empty genres, got %#v", tr.Genres)
			}
		}
		if mock.ArtistCalls("ghost") != 1 {
			t.Errorf("expected failed lookup not to be retried, got %d", mock.ArtistCalls("ghost"))
		}
		if result.Run.Status != models.RunSucceeded {
			t.Errorf("genre failures should not make the run partial, got %s", result.Run.Status)
		}
	})

	t.Run("fetch failure isolates the window", func(t *testing.T) {
		snapshots, runs := setupStore(t)
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{
				models.WindowLong:  {{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
				models.WindowShort: {{ID: "a4"}},
			},
			FailTopArtists: map[models.Window]tu.Failure{
				models.WindowLong: {AtOffset: 2, Err: errors.New("502 bad gateway")},
			},
		}

		result, err := newTestIngestor(mock, nil, snapshots, runs).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowLong, models.WindowShort},
			Limit:   5,
		}, nil)
		if err != nil {
			t.Fatalf("fetch failures must not fail the run: %v", err)
		}

		if len(result.FetchErrors) != 1 || !errors.Is(result.FetchErrors[0], shared.ErrFetchFailed) {
			t.Errorf("expected one ErrFetchFailed, got %v", result.FetchErrors)
		}
		if len(result.Artists) != 1 || result.Artists[0].ID != "a4" {
			t.Errorf("expected only the short window, got %+v", result.Artists)
		}
		if result.Run.Status != models.RunPartial || len(result.Run.Errors) != 1 {
			t.Errorf("expected partial run with one error, got %+v", result.Run)
		}

		stored, err := runs.Get(result.Run.ID)
		if err != nil {
			t.Fatalf("get run failed: %v", err)
		}
		if stored.Status != models.RunPartial {
			t.Errorf("expected stored partial status, got %s", stored.Status)
		}
	})

	t.Run("write failure fails the run", func(t *testing.T) {
		snapshots, runs := setupStore(t)
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{models.WindowShort: {{ID: "a1"}}},
			TopTracksBy:  map[models.Window][]services.SpotifyTrack{models.WindowShort: {track("t1", "A")}},
		}
		writer := &failingWriter{SnapshotRepository: snapshots, failTracks: true}

		result, err := newTestIngestor(mock, nil, writer, runs).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort},
			Limit:   10,
		}, nil)
		if err == nil {
			t.Fatal("expected write failure to be returned")
		}
		if result == nil || result.Run.Status != models.RunFailed {
			t.Fatalf("expected failed run, got %+v", result)
		}
		if result.Run.ArtistsWritten != 1 || result.Run.TracksWritten != 0 {
			t.Errorf("unexpected counts %+v", result.Run)
		}

		stored, err := runs.Get(result.Run.ID)
		if err != nil {
			t.Fatalf("get run failed: %v", err)
		}
		if stored.Status != models.RunFailed || len(stored.Errors) == 0 {
			t.Errorf("expected failed run recorded with error, got %+v", stored)
		}
	})

	t.Run("playlists filtered by owner", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		artist := services.SpotifyArtist{
			ID: "pa", Name: "Playlist Artist", Genres: []string{"folk"},
			Images: []services.SpotifyImage{{URL: "pa-l.jpg"}, {URL: "pa-m.jpg"}, {URL: "pa-s.jpg"}},
		}
		songA := track("pt1", "Alpha", artist)
		songA.Album = services.SpotifyAlbum{Name: "LP"}
		songA.DurationMS = 2000

		mock := &tu.MockService{
			User: services.SpotifyUser{ID: "me"},
			Playlists: []services.SpotifySimplePlaylist{
				{ID: "mine", Name: "Mine", Owner: services.Owner{ID: "me"}},
				{ID: "theirs", Name: "Theirs", Owner: services.Owner{ID: "someone"}},
				{ID: "broken", Name: "Broken", Owner: services.Owner{ID: "me"}},
			},
			PlaylistItems: map[string][]services.SpotifyPlaylistTrack{
				"mine": {
					{AddedAt: "2024-01-02T00:00:00Z", Track: &songA},
					{AddedAt: "2024-01-03T00:00:00Z", Track: nil},
					{AddedAt: "2024-01-04T00:00:00Z", IsLocal: true, Track: &services.SpotifyTrack{Name: "local.mp3"}},
				},
				"theirs": {{Track: &services.SpotifyTrack{ID: "nope"}}},
			},
			ArtistsByID:  map[string]services.SpotifyArtist{"pa": artist},
			FailPlaylist: map[string]error{"broken": errors.New("404")},
		}

		result, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{
			Windows:   []models.Window{models.WindowShort},
			Limit:     10,
			Playlists: true,
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if len(result.PlaylistTracks) != 1 {
			t.Fatalf("expected 1 playlist track, got %+v", result.PlaylistTracks)
		}
		pt := result.PlaylistTracks[0]
		if pt.PlaylistID != "mine" || pt.ArtistName != "Playlist Artist" || pt.Album != "LP" || pt.DurationMS != 2000 {
			t.Errorf("unexpected record %+v", pt)
		}
		if pt.Genres[0] != "folk" || pt.AddedAt != "2024-01-02T00:00:00Z" {
			t.Errorf("unexpected enrichment %+v", pt)
		}
		if pt.ArtistImages != (models.Images{Large: "pa-l.jpg", Medium: "pa-m.jpg", Small: "pa-s.jpg"}) {
			t.Errorf("expected artist images from the lookup, got %+v", pt.ArtistImages)
		}
		if !pt.FetchedAt.Equal(result.Run.StartedAt) || pt.RunID != result.Run.ID {
			t.Errorf("playlist track not stamped: %+v", pt)
		}
		if result.Run.PlaylistTracksWritten != 1 || result.Run.Status != models.RunPartial {
			t.Errorf("unexpected run %+v", result.Run)
		}

		stored, err := snapshots.LatestPlaylistTracks(repositories.Query{})
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(stored) != 1 || stored[0].ArtistImages.Large != "pa-l.jpg" {
			t.Errorf("expected 1 stored playlist track with artist images, got %+v", stored)
		}
	})

	t.Run("explicit playlist owner skips the profile lookup", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		mock := &tu.MockService{
			Playlists: []services.SpotifySimplePlaylist{{ID: "p", Name: "P", Owner: services.Owner{ID: "curator"}}},
			PlaylistItems: map[string][]services.SpotifyPlaylistTrack{
				"p": {{Track: &services.SpotifyTrack{ID: "x", Name: "X"}}},
			},
		}

		result, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{
			Windows:       []models.Window{models.WindowShort},
			Playlists:     true,
			PlaylistOwner: "curator",
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if len(result.PlaylistTracks) != 1 {
			t.Errorf("expected curator playlist, got %+v", result.PlaylistTracks)
		}
		for _, c := range mock.Calls() {
			if c == "me" {
				t.Error("expected no profile lookup")
			}
		}
	})

	t.Run("embeds looked up once per uri and degrade on failure", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		a := services.SpotifyArtist{ID: "a"}
		mock := &tu.MockService{
			TopTracksBy: map[models.Window][]services.SpotifyTrack{
				models.WindowShort: {track("t1", "A", a), track("t2", "B", a)},
				models.WindowLong:  {track("t1", "A", a)},
			},
			ArtistsByID: map[string]services.SpotifyArtist{"a": a},
		}
		embedder := &tu.MockEmbedder{Embeds: map[string]models.Embed{
			"spotify:track:t1": {HTML: "<iframe>", IframeURL: "https://open.spotify.com/embed/track/t1"},
		}}

		result, err := newTestIngestor(mock, embedder, snapshots, nil).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort, models.WindowLong},
			Limit:   10,
			Embeds:  true,
		}, nil)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if embedder.Calls() != 2 {
			t.Errorf("expected 2 embed lookups, got %d", embedder.Calls())
		}
		for _, tr := range result.Tracks {
			switch tr.ID {
			case "t1":
				if tr.Embed.IframeURL == "" {
					t.Errorf("expected embed for t1 in %s", tr.Window)
				}
			case "t2":
				if !tr.Embed.Empty() {
					t.Errorf("expected empty embed for t2, got %+v", tr.Embed)
				}
			}
		}
		if len(result.Tracks) != 3 {
			t.Errorf("expected all tracks kept, got %d", len(result.Tracks))
		}
	})

	t.Run("embeds disabled", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		mock := &tu.MockService{
			TopTracksBy: map[models.Window][]services.SpotifyTrack{models.WindowShort: {track("t1", "A")}},
		}
		embedder := &tu.MockEmbedder{}

		if _, err := newTestIngestor(mock, embedder, snapshots, nil).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort},
		}, nil); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if embedder.Calls() != 0 {
			t.Errorf("expected no embed lookups, got %d", embedder.Calls())
		}
	})

	t.Run("reports progress", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		mock := &tu.MockService{
			TopArtistsBy: map[models.Window][]services.SpotifyArtist{models.WindowShort: {{ID: "a1"}}},
		}
		progress := make(chan ProgressUpdate, 64)

		result, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{
			Windows: []models.Window{models.WindowShort},
		}, progress)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		close(progress)

		var updates []ProgressUpdate
		for u := range progress {
			updates = append(updates, u)
		}
		if len(updates) == 0 || updates[0].Phase != StartRun || updates[len(updates)-1].Phase != FinishRun {
			t.Fatalf("unexpected updates %v", updates)
		}
		if last := updates[len(updates)-1]; last.Message != FinishMessage(result.Run) {
			t.Errorf("finish update %q differs from FinishMessage %q", last.Message, FinishMessage(result.Run))
		}
	})

	t.Run("full progress channel does not block", func(t *testing.T) {
		snapshots, _ := setupStore(t)
		mock := &tu.MockService{}
		progress := make(chan ProgressUpdate)

		done := make(chan error, 1)
		go func() {
			_, err := newTestIngestor(mock, nil, snapshots, nil).Run(context.Background(), RunOptions{}, progress)
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("run blocked on progress channel")
		}
	})

	t.Run("requires services", func(t *testing.T) {
		snapshots, _ := setupStore(t)

		if _, err := NewIngestor(nil, nil, snapshots, nil, nil).Run(context.Background(), RunOptions{}, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if _, err := NewIngestor(&tu.MockService{}, nil, nil, nil, nil).Run(context.Background(), RunOptions{}, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tc := map[Phase]string{
		StartRun:       "start_run",
		FetchArtists:   "fetch_artists",
		FetchTracks:    "fetch_tracks",
		ResolveGenres:  "resolve_genres",
		FetchPlaylists: "fetch_playlists",
		WriteSnapshots: "write_snapshots",
		FinishRun:      "finish_run",
		Phase(99):      "",
	}
	for phase, want := range tc {
		if phase.String() != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(phase), phase.String(), want)
		}
	}
}

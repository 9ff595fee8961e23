package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

const trackColumns = `run_id, track_id, name, artist, primary_artist_id, genres, time_range, rank, explicit, preview_url, uri,
	image_large, image_medium, image_small, embed_html, embed_thumbnail_url, embed_iframe_url, fetched_at`

// AppendTracks inserts one top_tracks row per record, in order.
//
// Returns the number of rows written. Every record must carry fetchedAt.
func (r *SnapshotRepository) AppendTracks(records []models.TrackRecord, fetchedAt time.Time) (int, error) {
	if err := checkFetchedAt(len(records), fetchedAt, func(i int) time.Time { return records[i].FetchedAt }); err != nil {
		return 0, err
	}

	query := r.db.Rebind(`
		INSERT INTO top_tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i, t := range records {
		genres, err := encodeGenres(t.Genres)
		if err != nil {
			return i, fmt.Errorf("%w: track %s: %v", shared.ErrWriteFailed, t.ID, err)
		}

		_, err = r.db.Exec(query,
			t.RunID,
			t.ID,
			t.Name,
			t.ArtistName,
			t.PrimaryArtistID,
			genres,
			string(t.Window),
			t.Rank,
			t.Explicit,
			nullString(t.PreviewURL),
			nullString(t.URI),
			nullString(t.Images.Large),
			nullString(t.Images.Medium),
			nullString(t.Images.Small),
			nullString(t.Embed.HTML),
			nullString(t.Embed.ThumbnailURL),
			nullString(t.Embed.IframeURL),
			toMicros(fetchedAt),
		)
		if err != nil {
			return i, fmt.Errorf("%w: track %s: %v", shared.ErrWriteFailed, t.ID, err)
		}
	}

	return len(records), nil
}

// LatestTracks returns the most recent row per track for the query's window.
//
// Ties on fetched_at go to the row inserted last. Results are ordered by rank, then track id.
func (r *SnapshotRepository) LatestTracks(q Query) ([]models.TrackRecord, error) {
	since, until := q.bounds()
	query := r.db.Rebind(`
		SELECT ` + trackColumns + `
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY track_id ORDER BY fetched_at DESC, seq DESC) AS rn
			FROM top_tracks
			WHERE time_range = ? AND fetched_at >= ? AND fetched_at <= ?
		) latest
		WHERE rn = 1
		ORDER BY rank ASC, track_id ASC
	`)

	rows, err := r.db.Query(query, string(q.Window), since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.TrackRecord{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}
	return tracks, nil
}

func scanTrack(rows *sql.Rows) (*models.TrackRecord, error) {
	var (
		t                           models.TrackRecord
		genres, window              string
		previewURL, uri             sql.NullString
		large, medium, small        sql.NullString
		embedHTML, thumbnail, frame sql.NullString
		fetchedAt                   int64
	)

	err := rows.Scan(
		&t.RunID, &t.ID, &t.Name, &t.ArtistName, &t.PrimaryArtistID, &genres, &window, &t.Rank, &t.Explicit,
		&previewURL, &uri, &large, &medium, &small, &embedHTML, &thumbnail, &frame, &fetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.Genres = decodeGenres(genres)
	t.Window = models.Window(window)
	t.PreviewURL = previewURL.String
	t.URI = uri.String
	t.Images = models.Images{Large: large.String, Medium: medium.String, Small: small.String}
	t.Embed = models.Embed{HTML: embedHTML.String, ThumbnailURL: thumbnail.String, IframeURL: frame.String}
	t.FetchedAt = fromMicros(fetchedAt)
	return &t, nil
}

package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

const playlistTrackColumns = `run_id, track_id, name, artist, artist_id, genres, explicit, popularity, duration_ms, preview_url,
	album, added_at, uri, playlist_id, playlist_name, embed_html, embed_thumbnail_url, embed_iframe_url, fetched_at,
	artist_image_large, artist_image_medium, artist_image_small`

// AppendPlaylistTracks inserts one all_tracks row per record, in order.
//
// Returns the number of rows written. Every record must carry fetchedAt.
func (r *SnapshotRepository) AppendPlaylistTracks(records []models.PlaylistTrackRecord, fetchedAt time.Time) (int, error) {
	if err := checkFetchedAt(len(records), fetchedAt, func(i int) time.Time { return records[i].FetchedAt }); err != nil {
		return 0, err
	}

	query := r.db.Rebind(`
		INSERT INTO all_tracks (` + playlistTrackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i, t := range records {
		genres, err := encodeGenres(t.Genres)
		if err != nil {
			return i, fmt.Errorf("%w: playlist track %s: %v", shared.ErrWriteFailed, t.ID, err)
		}

		_, err = r.db.Exec(query,
			t.RunID,
			t.ID,
			t.Name,
			t.ArtistName,
			t.ArtistID,
			genres,
			t.Explicit,
			t.Popularity,
			t.DurationMS,
			nullString(t.PreviewURL),
			t.Album,
			nullString(t.AddedAt),
			nullString(t.URI),
			t.PlaylistID,
			t.PlaylistName,
			nullString(t.Embed.HTML),
			nullString(t.Embed.ThumbnailURL),
			nullString(t.Embed.IframeURL),
			toMicros(fetchedAt),
			nullString(t.ArtistImages.Large),
			nullString(t.ArtistImages.Medium),
			nullString(t.ArtistImages.Small),
		)
		if err != nil {
			return i, fmt.Errorf("%w: playlist track %s: %v", shared.ErrWriteFailed, t.ID, err)
		}
	}

	return len(records), nil
}

// LatestPlaylistTracks returns the most recent row per (track, playlist) pair.
//
// The query's Window is ignored. Results are ordered by playlist name, then track name.
func (r *SnapshotRepository) LatestPlaylistTracks(q Query) ([]models.PlaylistTrackRecord, error) {
	since, until := q.bounds()
	query := r.db.Rebind(`
		SELECT ` + playlistTrackColumns + `
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY track_id, playlist_id ORDER BY fetched_at DESC, seq DESC) AS rn
			FROM all_tracks
			WHERE fetched_at >= ? AND fetched_at <= ?
		) latest
		WHERE rn = 1
		ORDER BY playlist_name ASC, name ASC, track_id ASC
	`)

	rows, err := r.db.Query(query, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest playlist tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.PlaylistTrackRecord{}
	for rows.Next() {
		var (
			t                           models.PlaylistTrackRecord
			genres                      string
			previewURL, addedAt, uri    sql.NullString
			embedHTML, thumbnail, frame sql.NullString
			large, medium, small        sql.NullString
			fetchedAt                   int64
		)

		err := rows.Scan(
			&t.RunID, &t.ID, &t.Name, &t.ArtistName, &t.ArtistID, &genres, &t.Explicit, &t.Popularity, &t.DurationMS,
			&previewURL, &t.Album, &addedAt, &uri, &t.PlaylistID, &t.PlaylistName, &embedHTML, &thumbnail, &frame, &fetchedAt,
			&large, &medium, &small,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}

		t.Genres = decodeGenres(genres)
		t.PreviewURL = previewURL.String
		t.AddedAt = addedAt.String
		t.URI = uri.String
		t.Embed = models.Embed{HTML: embedHTML.String, ThumbnailURL: thumbnail.String, IframeURL: frame.String}
		t.ArtistImages = models.Images{Large: large.String, Medium: medium.String, Small: small.String}
		t.FetchedAt = fromMicros(fetchedAt)
		tracks = append(tracks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist tracks: %w", err)
	}
	return tracks, nil
}

package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

// AppendArtists inserts one top_artists row per record, in order.
//
// Returns the number of rows written. Every record must carry fetchedAt.
func (r *SnapshotRepository) AppendArtists(records []models.ArtistRecord, fetchedAt time.Time) (int, error) {
	if err := checkFetchedAt(len(records), fetchedAt, func(i int) time.Time { return records[i].FetchedAt }); err != nil {
		return 0, err
	}

	query := r.db.Rebind(`
		INSERT INTO top_artists (run_id, artist_id, name, genres, time_range, rank, image_large, image_medium, image_small, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i, a := range records {
		genres, err := encodeGenres(a.Genres)
		if err != nil {
			return i, fmt.Errorf("%w: artist %s: %v", shared.ErrWriteFailed, a.ID, err)
		}

		_, err = r.db.Exec(query,
			a.RunID,
			a.ID,
			a.Name,
			genres,
			string(a.Window),
			a.Rank,
			nullString(a.Images.Large),
			nullString(a.Images.Medium),
			nullString(a.Images.Small),
			toMicros(fetchedAt),
		)
		if err != nil {
			return i, fmt.Errorf("%w: artist %s: %v", shared.ErrWriteFailed, a.ID, err)
		}
	}

	return len(records), nil
}

// LatestArtists returns the most recent row per artist for the query's window.
//
// Ties on fetched_at go to the row inserted last. Results are ordered by rank, then artist id.
func (r *SnapshotRepository) LatestArtists(q Query) ([]models.ArtistRecord, error) {
	since, until := q.bounds()
	query := r.db.Rebind(`
		SELECT run_id, artist_id, name, genres, time_range, rank, image_large, image_medium, image_small, fetched_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY artist_id ORDER BY fetched_at DESC, seq DESC) AS rn
			FROM top_artists
			WHERE time_range = ? AND fetched_at >= ? AND fetched_at <= ?
		) latest
		WHERE rn = 1
		ORDER BY rank ASC, artist_id ASC
	`)

	rows, err := r.db.Query(query, string(q.Window), since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest artists: %w", err)
	}
	defer rows.Close()

	artists := []models.ArtistRecord{}
	for rows.Next() {
		var (
			a                    models.ArtistRecord
			genres, window       string
			large, medium, small sql.NullString
			fetchedAt            int64
		)
		if err := rows.Scan(&a.RunID, &a.ID, &a.Name, &genres, &window, &a.Rank, &large, &medium, &small, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		a.Genres = decodeGenres(genres)
		a.Window = models.Window(window)
		a.Images = models.Images{Large: large.String, Medium: medium.String, Small: small.String}
		a.FetchedAt = fromMicros(fetchedAt)
		artists = append(artists, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artists: %w", err)
	}
	return artists, nil
}

package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

// Query selects the latest snapshot rows for a window.
//
// Rows with fetched_at before Since are ignored. A zero Until means no upper bound.
// Playlist track reads ignore Window.
type Query struct {
	Window models.Window
	Since  time.Time
	Until  time.Time
}

// WindowQuery builds the default dashboard query for a window relative to now.
func WindowQuery(window models.Window, now time.Time) Query {
	return Query{Window: window, Since: window.Cutoff(now)}
}

func (q Query) bounds() (int64, int64) {
	until := int64(math.MaxInt64)
	if !q.Until.IsZero() {
		until = toMicros(q.Until)
	}
	return toMicros(q.Since), until
}

// SnapshotRepository appends and reads the top_artists, top_tracks and all_tracks tables.
//
// Appends insert one row per statement without an enclosing transaction, so a failed append
// leaves the rows written before the failure in place.
type SnapshotRepository struct {
	db *shared.Database
}

// NewSnapshotRepository creates a new SnapshotRepository with the given database connection
func NewSnapshotRepository(db *shared.Database) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func encodeGenres(genres []string) (string, error) {
	if genres == nil {
		genres = []string{}
	}
	b, err := json.Marshal(genres)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeGenres(raw string) []string {
	genres := []string{}
	if raw == "" {
		return genres
	}
	if err := json.Unmarshal([]byte(raw), &genres); err != nil {
		return []string{}
	}
	return genres
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// checkFetchedAt enforces the single-timestamp-per-batch rule before any row is written.
func checkFetchedAt(n int, fetchedAt time.Time, at func(i int) time.Time) error {
	for i := range n {
		if !at(i).Equal(fetchedAt) {
			return fmt.Errorf("%w: record %d has fetched_at %s, batch uses %s",
				shared.ErrInvalidInput, i, at(i).Format(time.RFC3339Nano), fetchedAt.Format(time.RFC3339Nano))
		}
	}
	return nil
}

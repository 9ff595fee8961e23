package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

// RunRepository persists [models.IngestRun] audit rows in ingest_runs.
type RunRepository struct {
	db *shared.Database
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *shared.Database) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run, generating an ID when it has none.
func (r *RunRepository) Create(run *models.IngestRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.Status == "" {
		run.Status = models.RunRunning
	}

	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO ingest_runs (id, started_at, finished_at, status, artists_written, tracks_written, playlist_tracks_written, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.Exec(query,
		run.ID,
		toMicros(run.StartedAt),
		finishedAt(run),
		string(run.Status),
		run.ArtistsWritten,
		run.TracksWritten,
		run.PlaylistTracksWritten,
		errs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ingest run: %w", err)
	}
	return nil
}

// Finish stores a run's final status, counts and errors.
func (r *RunRepository) Finish(run *models.IngestRun) error {
	errs, err := encodeErrors(run.Errors)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE ingest_runs
		SET finished_at = ?, status = ?, artists_written = ?, tracks_written = ?, playlist_tracks_written = ?, errors = ?
		WHERE id = ?
	`)

	result, err := r.db.Exec(query,
		finishedAt(run),
		string(run.Status),
		run.ArtistsWritten,
		run.TracksWritten,
		run.PlaylistTracksWritten,
		errs,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingest run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(id string) (*models.IngestRun, error) {
	query := r.db.Rebind(`
		SELECT id, started_at, finished_at, status, artists_written, tracks_written, playlist_tracks_written, errors
		FROM ingest_runs
		WHERE id = ?
	`)

	run, err := r.scanRow(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return run, err
}

// List returns the most recent runs first. A non-positive limit returns every run.
func (r *RunRepository) List(limit int) ([]*models.IngestRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, artists_written, tracks_written, playlist_tracks_written, errors
		FROM ingest_runs
		ORDER BY started_at DESC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.IngestRun{}
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingest runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *RunRepository) scanRow(row scanner) (*models.IngestRun, error) {
	var (
		run       models.IngestRun
		startedAt int64
		finished  sql.NullInt64
		status    string
		errs      string
	)

	err := row.Scan(&run.ID, &startedAt, &finished, &status,
		&run.ArtistsWritten, &run.TracksWritten, &run.PlaylistTracksWritten, &errs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ingest run: %w", err)
	}

	run.StartedAt = fromMicros(startedAt)
	if finished.Valid {
		t := fromMicros(finished.Int64)
		run.FinishedAt = &t
	}
	run.Status = models.RunStatus(status)
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		run.Errors = nil
	}
	return &run, nil
}

func finishedAt(run *models.IngestRun) sql.NullInt64 {
	if run.FinishedAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*run.FinishedAt), Valid: true}
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode run errors: %w", err)
	}
	return string(b), nil
}

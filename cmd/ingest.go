package main

import (
	"context"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/tasks"
	"github.com/urfave/cli/v3"
)

type runSummary struct {
	Run          *models.IngestRun `json:"run"`
	FetchErrors  []string          `json:"fetch_errors"`
	GenreLookups int               `json:"genre_lookups"`
}

// IngestRun performs one ingestion run and prints its progress and summary.
func (r *Runner) IngestRun(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.ingestOptions(cmd)
	if err != nil {
		return err
	}

	ingestor, err := r.newIngestor()
	if err != nil {
		return err
	}

	if err := r.ensureAuthenticated(ctx); err != nil {
		return err
	}

	useJSON := cmd.Bool("json")
	r.logger.Info("starting ingest run", "windows", opts.Windows, "limit", opts.Limit, "playlists", opts.Playlists)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if useJSON {
				r.logger.Debug(update.Message, "phase", update.Phase)
				continue
			}
			r.writeProgress(update)
		}
	}()

	result, err := ingestor.Run(ctx, opts, progressCh)
	close(progressCh)
	<-done

	if result == nil || result.Run == nil {
		return err
	}

	if useJSON {
		summary := runSummary{Run: result.Run, FetchErrors: []string{}, GenreLookups: result.GenreLookups}
		for _, e := range result.FetchErrors {
			summary.FetchErrors = append(summary.FetchErrors, e.Error())
		}
		if werr := r.writeJSON(summary, true); werr != nil {
			return werr
		}
		return err
	}

	r.writePlain("\n%s\n", tasks.FinishMessage(result.Run))
	r.writeRunSummary(result)
	return err
}

// writeProgress prints one progress line. FinishRun is skipped: IngestRun prints it from the run result.
func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.StartRun:
		r.writePlain("▶ %s\n", update.Message)
	case tasks.FetchArtists, tasks.FetchTracks:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.ResolveGenres:
		r.writePlain("   %s\n", update.Message)
	case tasks.FetchPlaylists:
		r.writePlain("📂 %s\n", update.Message)
	case tasks.WriteSnapshots:
		r.writePlain("💾 %s\n", update.Message)
	}
}

func (r *Runner) writeRunSummary(result *tasks.RunResult) {
	run := result.Run

	r.writePlain("\n")
	switch run.Status {
	case models.RunSucceeded:
		r.writePlainHeader("Ingest Complete!")
	case models.RunPartial:
		r.writePlainHeader("Ingest Partially Complete")
	default:
		r.writePlainHeader("Ingest Failed")
	}

	r.writePlain("Run: %s\n", run.ID)
	r.writePlain("Artists: %d\n", run.ArtistsWritten)
	r.writePlain("Tracks: %d\n", run.TracksWritten)
	r.writePlain("Playlist tracks: %d\n", run.PlaylistTracksWritten)
	r.writePlain("Genre lookups: %d\n", result.GenreLookups)

	if len(result.FetchErrors) > 0 {
		r.writePlain("\n%d fetches failed:\n", len(result.FetchErrors))
		for _, err := range result.FetchErrors {
			r.writePlain("  - %v\n", err)
		}
	}
}

// IngestRuns lists the most recent ingestion runs.
func (r *Runner) IngestRuns(ctx context.Context, cmd *cli.Command) error {
	_, runs, err := r.stores()
	if err != nil {
		return err
	}

	list, err := runs.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, true)
	}

	if len(list) == 0 {
		r.writePlain("No runs recorded yet. Start one with: toptally ingest run\n")
		return nil
	}

	r.writePlain("Found %d runs:\n\n", len(list))
	for _, run := range list {
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format("15:04:05")
		}
		r.writePlain("%s  %s → %s  %-9s  artists=%d tracks=%d playlist_tracks=%d\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), finished, run.Status,
			run.ArtistsWritten, run.TracksWritten, run.PlaylistTracksWritten)
		for _, e := range run.Errors {
			r.writePlain("    ! %s\n", e)
		}
	}
	return nil
}

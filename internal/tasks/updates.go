package tasks

import (
	"fmt"

	"github.com/desertthunder/toptally/internal/models"
)

// ProgressUpdate represents a progress event during an ingestion run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	StartRun Phase = iota
	FetchArtists
	FetchTracks
	ResolveGenres
	FetchPlaylists
	WriteSnapshots
	FinishRun
)

func (p Phase) String() string {
	switch p {
	case StartRun:
		return "start_run"
	case FetchArtists:
		return "fetch_artists"
	case FetchTracks:
		return "fetch_tracks"
	case ResolveGenres:
		return "resolve_genres"
	case FetchPlaylists:
		return "fetch_playlists"
	case WriteSnapshots:
		return "write_snapshots"
	case FinishRun:
		return "finish_run"
	default:
		return ""
	}
}

func startRunUpdate(run *models.IngestRun) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StartRun,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Started run %s", run.ID),
		Data:    run,
	}
}

func fetchWindowUpdate(phase Phase, step, total int, window models.Window) ProgressUpdate {
	noun := "artists"
	if phase == FetchTracks {
		noun = "tracks"
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching top %s (%s)...", step, total, noun, window.Label()),
	}
}

func fetchFailedUpdate(phase Phase, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Message: fmt.Sprintf("✗ %v", err),
	}
}

func enrichTrackUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveGenres,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Enriching: %s", step, total, name),
	}
}

func fetchPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching playlist: %s...", step, total, name),
	}
}

func writeSnapshotUpdate(step, total int, kind models.Kind, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteSnapshots,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Writing %d rows to %s...", step, total, count, kind.Table()),
	}
}

// FinishMessage is the one-line outcome of a finished run, as carried by the [FinishRun] update.
func FinishMessage(run *models.IngestRun) string {
	return fmt.Sprintf("Run %s %s: %d artists, %d tracks, %d playlist tracks",
		run.ID, run.Status, run.ArtistsWritten, run.TracksWritten, run.PlaylistTracksWritten)
}

func finishRunUpdate(run *models.IngestRun) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FinishRun,
		Step:    1,
		Total:   1,
		Message: FinishMessage(run),
		Data:    run,
	}
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// Window is a named relative time range used by the top-items endpoints.
type Window string

const (
	WindowLong   Window = "long"
	WindowMedium Window = "medium"
	WindowShort  Window = "short"
)

// Windows lists every window in the order runs fetch them.
var Windows = []Window{WindowLong, WindowMedium, WindowShort}

// allTimeCutoff is the start of "all history" for the long window.
var allTimeCutoff = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseWindow accepts both the short ("medium") and upstream ("medium_term") spellings.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_term")
	switch w := Window(s); w {
	case WindowLong, WindowMedium, WindowShort:
		return w, nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// ParseWindows parses each entry with [ParseWindow], dropping duplicates while keeping order.
func ParseWindows(values []string) ([]Window, error) {
	seen := make(map[Window]bool, len(values))
	windows := make([]Window, 0, len(values))
	for _, v := range values {
		w, err := ParseWindow(v)
		if err != nil {
			return nil, err
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		windows = append(windows, w)
	}
	return windows, nil
}

// UpstreamValue returns the Spotify time_range parameter for the window.
func (w Window) UpstreamValue() string {
	return string(w) + "_term"
}

// Label returns the dashboard label for the window.
func (w Window) Label() string {
	switch w {
	case WindowLong:
		return "All Time"
	case WindowMedium:
		return "Last 6 Months"
	case WindowShort:
		return "Last 4 Weeks"
	}
	return string(w)
}

// Cutoff returns the earliest fetched_at considered part of the window relative to now.
//
// Medium is 6×30 days and short is 4×7 days. Spotify does not document its own window
// boundaries, so these are approximations.
func (w Window) Cutoff(now time.Time) time.Time {
	switch w {
	case WindowMedium:
		return now.Add(-6 * 30 * 24 * time.Hour)
	case WindowShort:
		return now.Add(-4 * 7 * 24 * time.Hour)
	}
	return allTimeCutoff
}

// Kind names an append-only snapshot table.
type Kind string

const (
	KindArtists        Kind = "artists"
	KindTracks         Kind = "tracks"
	KindPlaylistTracks Kind = "playlist_tracks"
)

// ParseKind parses a kind name, also accepting table names and "playlist-tracks".
func ParseKind(s string) (Kind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "artists", "top_artists":
		return KindArtists, nil
	case "tracks", "top_tracks":
		return KindTracks, nil
	case "playlist_tracks", "all_tracks":
		return KindPlaylistTracks, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Table returns the snapshot table backing the kind.
func (k Kind) Table() string {
	switch k {
	case KindArtists:
		return "top_artists"
	case KindTracks:
		return "top_tracks"
	case KindPlaylistTracks:
		return "all_tracks"
	}
	return ""
}

// Images holds the three image sizes Spotify returns, largest first. Missing sizes are empty.
type Images struct {
	Large  string `json:"large,omitempty"`
	Medium string `json:"medium,omitempty"`
	Small  string `json:"small,omitempty"`
}

// Embed holds oEmbed markup for a track. All fields are empty when the lookup failed.
type Embed struct {
	HTML         string `json:"html,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	IframeURL    string `json:"iframe_url,omitempty"`
}

// Empty reports whether no embed data is present.
func (e Embed) Empty() bool {
	return e.HTML == "" && e.ThumbnailURL == "" && e.IframeURL == ""
}

// ArtistRecord is one ranked top-artist entry.
type ArtistRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Genres    []string  `json:"genres"`
	Window    Window    `json:"window"`
	Rank      int       `json:"rank"`
	Images    Images    `json:"images"`
	FetchedAt time.Time `json:"fetched_at"`
	RunID     string    `json:"run_id"`
}

// TrackRecord is one ranked top-track entry.
type TrackRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ArtistName      string    `json:"artist"`
	PrimaryArtistID string    `json:"primary_artist_id"`
	Genres          []string  `json:"genres"`
	Window          Window    `json:"window"`
	Rank            int       `json:"rank"`
	Explicit        bool      `json:"explicit"`
	PreviewURL      string    `json:"preview_url,omitempty"`
	URI             string    `json:"uri,omitempty"`
	Images          Images    `json:"images"`
	Embed           Embed     `json:"embed"`
	FetchedAt       time.Time `json:"fetched_at"`
	RunID           string    `json:"run_id"`
}

// PlaylistTrackRecord is one track of one of the user's playlists.
type PlaylistTrackRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ArtistName   string    `json:"artist"`
	ArtistID     string    `json:"artist_id"`
	ArtistImages Images    `json:"artist_images"`
	Genres       []string  `json:"genres"`
	Explicit     bool      `json:"explicit"`
	Popularity   int       `json:"popularity"`
	DurationMS   int       `json:"duration_ms"`
	PreviewURL   string    `json:"preview_url,omitempty"`
	Album        string    `json:"album"`
	AddedAt      string    `json:"added_at,omitempty"`
	URI          string    `json:"uri,omitempty"`
	PlaylistID   string    `json:"playlist_id"`
	PlaylistName string    `json:"playlist_name"`
	Embed        Embed     `json:"embed"`
	FetchedAt    time.Time `json:"fetched_at"`
	RunID        string    `json:"run_id"`
}

// RunStatus is the lifecycle state of an [IngestRun].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// IngestRun is the audit record of one ingestion run.
type IngestRun struct {
	ID                    string     `json:"id"`
	StartedAt             time.Time  `json:"started_at"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
	Status                RunStatus  `json:"status"`
	ArtistsWritten        int        `json:"artists_written"`
	TracksWritten         int        `json:"tracks_written"`
	PlaylistTracksWritten int        `json:"playlist_tracks_written"`
	Errors                []string   `json:"errors,omitempty"`
}

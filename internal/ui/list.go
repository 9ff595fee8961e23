package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/toptally/internal/formatter"
	"github.com/desertthunder/toptally/internal/models"
)

var (
	_ list.Item = artistItem{}
	_ list.Item = trackItem{}
	_ list.Item = playlistTrackItem{}
)

// artistItem wraps [models.ArtistRecord] to implement [list.Item].
type artistItem struct {
	artist models.ArtistRecord
}

func (i artistItem) FilterValue() string {
	return i.artist.Name + " " + strings.Join(i.artist.Genres, " ")
}
func (i artistItem) Title() string { return fmt.Sprintf("%2d. %s", i.artist.Rank, i.artist.Name) }
func (i artistItem) Description() string {
	if len(i.artist.Genres) == 0 {
		return "no genres"
	}
	return strings.Join(i.artist.Genres, ", ")
}

// trackItem wraps [models.TrackRecord] to implement [list.Item].
type trackItem struct {
	track models.TrackRecord
}

func (i trackItem) FilterValue() string { return i.track.Name + " " + i.track.ArtistName }
func (i trackItem) Title() string       { return fmt.Sprintf("%2d. %s", i.track.Rank, i.track.Name) }
func (i trackItem) Description() string {
	desc := i.track.ArtistName
	if len(i.track.Genres) > 0 {
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(i.track.Genres, ", "))
	}
	if i.track.Explicit {
		desc += " • E"
	}
	return desc
}

// playlistTrackItem wraps [models.PlaylistTrackRecord] to implement [list.Item].
type playlistTrackItem struct {
	track models.PlaylistTrackRecord
}

func (i playlistTrackItem) FilterValue() string {
	return i.track.Name + " " + i.track.ArtistName + " " + i.track.PlaylistName
}
func (i playlistTrackItem) Title() string { return i.track.Name }
func (i playlistTrackItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.track.ArtistName, i.track.PlaylistName)
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	return fmt.Sprintf("%s • %s", desc, formatter.FormatDuration(i.track.DurationMS))
}

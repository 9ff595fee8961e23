// package formatter renders latest-snapshot rows as JSON, CSV, Markdown or a plain text table
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
)

// Format is an output format accepted by [Write].
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "text"
)

// ParseFormat accepts json, csv, md (or markdown) and text (or txt).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "text", "txt", "":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, s)
}

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Table is a titled grid of string cells. Records keeps the source rows for JSON output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Records any
}

// ArtistsTable lays out artist rows as Rank, Artist, Genres, Fetched.
func ArtistsTable(window models.Window, records []models.ArtistRecord) Table {
	t := Table{
		Title:   "Top Artists: " + window.Label(),
		Headers: []string{"Rank", "Artist", "Genres", "Fetched"},
		Rows:    make([][]string, 0, len(records)),
		Records: records,
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Rank),
			r.Name,
			strings.Join(r.Genres, ", "),
			formatTime(r.FetchedAt),
		})
	}
	return t
}

// TracksTable lays out track rows as Rank, Track, Artist, Genres, Explicit, Fetched.
func TracksTable(window models.Window, records []models.TrackRecord) Table {
	t := Table{
		Title:   "Top Tracks: " + window.Label(),
		Headers: []string{"Rank", "Track", "Artist", "Genres", "Explicit", "Fetched"},
		Rows:    make([][]string, 0, len(records)),
		Records: records,
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Rank),
			r.Name,
			r.ArtistName,
			strings.Join(r.Genres, ", "),
			yesNo(r.Explicit),
			formatTime(r.FetchedAt),
		})
	}
	return t
}

// PlaylistTracksTable lays out playlist track rows grouped by playlist order.
func PlaylistTracksTable(records []models.PlaylistTrackRecord) Table {
	t := Table{
		Title:   "Playlist Tracks",
		Headers: []string{"Playlist", "Track", "Artist", "Album", "Duration", "Popularity", "Added"},
		Rows:    make([][]string, 0, len(records)),
		Records: records,
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			r.PlaylistName,
			r.Name,
			r.ArtistName,
			r.Album,
			FormatDuration(r.DurationMS),
			strconv.Itoa(r.Popularity),
			r.AddedAt,
		})
	}
	return t
}

// ToCSV renders the headers and rows as CSV.
func ToCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(t.Headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders a titled GitHub-flavored Markdown table.
func ToMarkdown(t Table) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", t.Title))
	buf.WriteString(fmt.Sprintf("**Rows**: %d\n\n", len(t.Rows)))

	if len(t.Rows) == 0 {
		buf.WriteString("_No snapshots in range._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| " + strings.Join(escapeCells(t.Headers), " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(t.Headers)) + "\n")
	for _, row := range t.Rows {
		buf.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}

	return buf.Bytes(), nil
}

// ToText renders a bordered plain text table.
func ToText(t Table) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(t.Title + "\n")
	if len(t.Rows) == 0 {
		buf.WriteString("No snapshots in range.\n")
		return buf.Bytes(), nil
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Headers...).
		Rows(t.Rows...)
	buf.WriteString(tbl.String())
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

// Render produces the table in the given format.
func Render(t Table, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := shared.MarshalJSON(t.Records, true)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatCSV:
		return ToCSV(t)
	case FormatMarkdown:
		return ToMarkdown(t)
	case FormatText:
		return ToText(t)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
}

// Write renders the table and writes it to w.
func Write(w io.Writer, t Table, format Format) error {
	data, err := Render(t, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteFile renders the table to path. An empty path defaults to {kind}.{ext} in the working directory.
func WriteFile(t Table, format Format, kind models.Kind, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s.%s", kind, format.Extension())
	}

	data, err := Render(t, format)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}

	return path, nil
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

package web

import (
	"cmp"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/shared"
)

// windowCustom selects an explicit start/end date range instead of a relative window.
const windowCustom = "custom"

// view holds the parsed dashboard and API query parameters.
type view struct {
	Window models.Window // Ranking window; custom ranges use the long ranking
	Custom bool
	Start  string
	End    string
	Sort   string
	Desc   bool
	Q      string
	Query  repositories.Query
}

// parseView reads window, start, end, sort, order and q.
//
// window defaults to long. A custom range needs both dates; end is inclusive of the whole day.
func parseView(r *http.Request, now time.Time) (view, error) {
	params := r.URL.Query()
	v := view{
		Window: models.WindowLong,
		Start:  strings.TrimSpace(params.Get("start")),
		End:    strings.TrimSpace(params.Get("end")),
		Sort:   strings.ToLower(strings.TrimSpace(params.Get("sort"))),
		Q:      strings.TrimSpace(params.Get("q")),
	}

	switch order := strings.ToLower(params.Get("order")); order {
	case "", "asc":
	case "desc":
		v.Desc = true
	default:
		return v, fmt.Errorf("%w: order must be asc or desc, got %q", shared.ErrInvalidInput, order)
	}

	raw := strings.TrimSpace(params.Get("window"))
	if strings.EqualFold(raw, windowCustom) {
		v.Custom = true
		if v.Start == "" || v.End == "" {
			return v, fmt.Errorf("%w: custom range needs start and end", shared.ErrInvalidInput)
		}
		start, err := shared.ParseDate(v.Start)
		if err != nil {
			return v, err
		}
		end, err := shared.ParseDate(v.End)
		if err != nil {
			return v, err
		}
		if len(v.End) == len(time.DateOnly) {
			end = end.Add(24*time.Hour - time.Microsecond)
		}
		if end.Before(start) {
			return v, fmt.Errorf("%w: end %s is before start %s", shared.ErrInvalidInput, v.End, v.Start)
		}
		v.Query = repositories.Query{Window: v.Window, Since: start, Until: end}
		return v, nil
	}

	if raw != "" {
		w, err := models.ParseWindow(raw)
		if err != nil {
			return v, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		v.Window = w
	}
	v.Query = repositories.WindowQuery(v.Window, now)
	return v, nil
}

// WindowValue is the value of the window selector.
func (v view) WindowValue() string {
	if v.Custom {
		return windowCustom
	}
	return string(v.Window)
}

// sortURL links a column header to the same view sorted by key, toggling the order when key is already active.
func sortURL(v view, key string) string {
	params := url.Values{}
	params.Set("window", v.WindowValue())
	if v.Custom {
		params.Set("start", v.Start)
		params.Set("end", v.End)
	}
	if v.Q != "" {
		params.Set("q", v.Q)
	}
	params.Set("sort", key)
	if v.Sort == key && !v.Desc {
		params.Set("order", "desc")
	}
	return "/?" + params.Encode()
}

// comparators maps a sort key to an ordering over one record type.
type comparators[T any] map[string]func(a, b T) int

// arrange filters items by q and sorts them by the view's key. Unknown keys keep the stored order.
func arrange[T any](items []T, v view, by comparators[T], text func(T) []string) []T {
	out := make([]T, 0, len(items))
	needle := strings.ToLower(v.Q)
	for _, item := range items {
		if needle == "" || matches(needle, text(item)) {
			out = append(out, item)
		}
	}

	if fn, ok := by[v.Sort]; ok {
		slices.SortStableFunc(out, func(a, b T) int {
			if v.Desc {
				return fn(b, a)
			}
			return fn(a, b)
		})
	}
	return out
}

func matches(needle string, fields []string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func foldCompare(a, b string) int {
	return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
}

var artistOrder = comparators[models.ArtistRecord]{
	"rank":       func(a, b models.ArtistRecord) int { return cmp.Compare(a.Rank, b.Rank) },
	"name":       func(a, b models.ArtistRecord) int { return foldCompare(a.Name, b.Name) },
	"genres":     func(a, b models.ArtistRecord) int { return foldCompare(strings.Join(a.Genres, ","), strings.Join(b.Genres, ",")) },
	"fetched_at": func(a, b models.ArtistRecord) int { return a.FetchedAt.Compare(b.FetchedAt) },
}

var trackOrder = comparators[models.TrackRecord]{
	"rank":       func(a, b models.TrackRecord) int { return cmp.Compare(a.Rank, b.Rank) },
	"name":       func(a, b models.TrackRecord) int { return foldCompare(a.Name, b.Name) },
	"artist":     func(a, b models.TrackRecord) int { return foldCompare(a.ArtistName, b.ArtistName) },
	"genres":     func(a, b models.TrackRecord) int { return foldCompare(strings.Join(a.Genres, ","), strings.Join(b.Genres, ",")) },
	"fetched_at": func(a, b models.TrackRecord) int { return a.FetchedAt.Compare(b.FetchedAt) },
}

var playlistTrackOrder = comparators[models.PlaylistTrackRecord]{
	"playlist":   func(a, b models.PlaylistTrackRecord) int { return foldCompare(a.PlaylistName, b.PlaylistName) },
	"name":       func(a, b models.PlaylistTrackRecord) int { return foldCompare(a.Name, b.Name) },
	"artist":     func(a, b models.PlaylistTrackRecord) int { return foldCompare(a.ArtistName, b.ArtistName) },
	"album":      func(a, b models.PlaylistTrackRecord) int { return foldCompare(a.Album, b.Album) },
	"duration":   func(a, b models.PlaylistTrackRecord) int { return cmp.Compare(a.DurationMS, b.DurationMS) },
	"popularity": func(a, b models.PlaylistTrackRecord) int { return cmp.Compare(a.Popularity, b.Popularity) },
	"added_at":   func(a, b models.PlaylistTrackRecord) int { return cmp.Compare(a.AddedAt, b.AddedAt) },
}

func artistText(a models.ArtistRecord) []string {
	return append([]string{a.Name}, a.Genres...)
}

func trackText(t models.TrackRecord) []string {
	return append([]string{t.Name, t.ArtistName}, t.Genres...)
}

func playlistTrackText(t models.PlaylistTrackRecord) []string {
	return append([]string{t.Name, t.ArtistName, t.Album, t.PlaylistName}, t.Genres...)
}

package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/toptally/internal/formatter"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/server"
	"github.com/desertthunder/toptally/internal/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

// Store reads the latest snapshot per entity.
type Store interface {
	LatestArtists(q repositories.Query) ([]models.ArtistRecord, error)
	LatestTracks(q repositories.Query) ([]models.TrackRecord, error)
	LatestPlaylistTracks(q repositories.Query) ([]models.PlaylistTrackRecord, error)
}

// RunLister lists recent ingestion runs, newest first.
type RunLister interface {
	List(limit int) ([]*models.IngestRun, error)
}

// Dashboard serves the HTML dashboard and the JSON API over a [Store].
type Dashboard struct {
	store  Store
	runs   RunLister
	logger *log.Logger
	tmpl   *template.Template
	now    func() time.Time
}

// NewDashboard parses the embedded templates. runs may be nil.
func NewDashboard(store Store, runs RunLister, logger *log.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	tmpl, err := template.New("dashboard.html").Funcs(template.FuncMap{
		"join":     strings.Join,
		"duration": formatter.FormatDuration,
		"stamp":    func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
		"sortURL":  sortURL,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Dashboard{store: store, runs: runs, logger: logger, tmpl: tmpl, now: time.Now}, nil
}

// SetClock replaces the time source used for relative windows.
func (d *Dashboard) SetClock(now func() time.Time) {
	d.now = now
}

// Register adds the dashboard routes to a router.
//
//	GET /             HTML dashboard
//	GET /api/{kind}   JSON rows for artists, tracks or playlist-tracks
//	GET /healthz      liveness
func (d *Dashboard) Register(r *server.BasicRouter) {
	r.HandleFunc(http.MethodGet, "/{$}", d.index)
	r.HandleFunc(http.MethodGet, "/api/{kind}", d.api)
	r.HandleFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
}

// Handler returns a router with the dashboard routes behind the stock middleware.
func (d *Dashboard) Handler() http.Handler {
	r := server.NewBasicRouter()
	r.Use(server.Recoverer(d.logger), server.RequestLogger(d.logger))
	d.Register(r)
	return r
}

type windowOption struct {
	Value    string
	Label    string
	Selected bool
}

type page struct {
	View           view
	Windows        []windowOption
	Artists        []models.ArtistRecord
	Tracks         []models.TrackRecord
	PlaylistTracks []models.PlaylistTrackRecord
	LastRun        *models.IngestRun
	Error          string
}

func (d *Dashboard) index(w http.ResponseWriter, r *http.Request) {
	v, err := parseView(r, d.now())
	p := page{View: v}
	status := http.StatusOK

	if err != nil {
		p.Error = err.Error()
		status = http.StatusBadRequest
	} else if err := d.load(&p, v); err != nil {
		d.logger.Error("failed to load snapshots", "error", err)
		p.Error = "Failed to load snapshots."
		status = http.StatusInternalServerError
	}

	for _, win := range models.Windows {
		p.Windows = append(p.Windows, windowOption{
			Value:    string(win),
			Label:    win.Label(),
			Selected: !v.Custom && win == v.Window,
		})
	}
	p.Windows = append(p.Windows, windowOption{Value: windowCustom, Label: "Custom Range", Selected: v.Custom})

	if d.runs != nil {
		if runs, err := d.runs.List(1); err == nil && len(runs) > 0 {
			p.LastRun = runs[0]
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := d.tmpl.Execute(w, p); err != nil {
		d.logger.Error("failed to render dashboard", "error", err)
	}
}

func (d *Dashboard) load(p *page, v view) error {
	artists, err := d.store.LatestArtists(v.Query)
	if err != nil {
		return err
	}
	tracks, err := d.store.LatestTracks(v.Query)
	if err != nil {
		return err
	}
	playlistTracks, err := d.store.LatestPlaylistTracks(v.Query)
	if err != nil {
		return err
	}

	p.Artists = arrange(artists, v, artistOrder, artistText)
	p.Tracks = arrange(tracks, v, trackOrder, trackText)
	p.PlaylistTracks = arrange(playlistTracks, v, playlistTrackOrder, playlistTrackText)
	return nil
}

type apiResponse struct {
	Kind   models.Kind `json:"kind"`
	Window string      `json:"window"`
	Since  time.Time   `json:"since"`
	Until  *time.Time  `json:"until,omitempty"`
	Count  int         `json:"count"`
	Rows   any         `json:"rows"`
}

type apiError struct {
	Error string `json:"error"`
}

func (d *Dashboard) api(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(r.PathValue("kind"))
	if err != nil {
		d.writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}

	v, err := parseView(r, d.now())
	if err != nil {
		d.writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	var rows any
	count := 0
	switch kind {
	case models.KindArtists:
		var items []models.ArtistRecord
		if items, err = d.store.LatestArtists(v.Query); err == nil {
			items = arrange(items, v, artistOrder, artistText)
			rows, count = items, len(items)
		}
	case models.KindTracks:
		var items []models.TrackRecord
		if items, err = d.store.LatestTracks(v.Query); err == nil {
			items = arrange(items, v, trackOrder, trackText)
			rows, count = items, len(items)
		}
	case models.KindPlaylistTracks:
		var items []models.PlaylistTrackRecord
		if items, err = d.store.LatestPlaylistTracks(v.Query); err == nil {
			items = arrange(items, v, playlistTrackOrder, playlistTrackText)
			rows, count = items, len(items)
		}
	}
	if err != nil {
		d.logger.Error("failed to load snapshots", "kind", kind, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, shared.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		d.writeJSON(w, status, apiError{Error: "failed to load snapshots"})
		return
	}

	resp := apiResponse{Kind: kind, Window: v.WindowValue(), Since: v.Query.Since, Count: count, Rows: rows}
	if !v.Query.Until.IsZero() {
		until := v.Query.Until
		resp.Until = &until
	}
	d.writeJSON(w, http.StatusOK, resp)
}

func (d *Dashboard) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		d.logger.Error("failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/desertthunder/toptally/internal/tasks"
)

// ViewState is the screen the TUI is showing.
type ViewState int

const (
	BrowseView ViewState = iota
	IngestView
	ResultView
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

var kinds = []models.Kind{models.KindArtists, models.KindTracks, models.KindPlaylistTracks}

// Store reads the latest snapshot rows.
type Store interface {
	LatestArtists(q repositories.Query) ([]models.ArtistRecord, error)
	LatestTracks(q repositories.Query) ([]models.TrackRecord, error)
	LatestPlaylistTracks(q repositories.Query) ([]models.PlaylistTrackRecord, error)
}

// Ingestor performs one ingestion run.
type Ingestor interface {
	Run(ctx context.Context, opts tasks.RunOptions, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
}

// Model is the bubbletea model for the snapshot browser.
type Model struct {
	ctx      context.Context
	store    Store
	ingestor Ingestor
	opts     tasks.RunOptions
	now      func() time.Time

	view   ViewState
	kind   models.Kind
	window models.Window
	list   list.Model
	help   help.Model
	keys   keyMap

	progressChan <-chan tasks.ProgressUpdate
	doneChan     <-chan Msg
	progress     tasks.ProgressUpdate
	result       *tasks.RunResult
	err          error

	width  int
	height int
}

// NewModel creates a new TUI model. ingestor may be nil, which disables runs from the TUI.
func NewModel(ctx context.Context, store Store, ingestor Ingestor, opts tasks.RunOptions) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), defaultWidth-4, defaultHeight-8)
	l.SetShowHelp(false)

	m := &Model{
		ctx:      ctx,
		store:    store,
		ingestor: ingestor,
		opts:     opts,
		now:      time.Now,
		view:     BrowseView,
		kind:     models.KindArtists,
		window:   models.WindowLong,
		list:     l,
		help:     help.New(),
		keys:     newKeyMap(),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.list.Title = m.listTitle()
	return m
}

// SetClock replaces the time source used for window cutoffs.
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// Init loads the rows of the starting kind and window.
func (m *Model) Init() tea.Cmd {
	return m.load()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case BrowseView:
			return m.handleBrowseKeys(msg)
		case IngestView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgRowsLoaded:
		data := msg.data.(rowsLoaded)
		if data.kind != m.kind || data.window != m.window {
			return m, nil
		}
		m.err = data.err
		if data.err != nil {
			return m, m.list.SetItems(nil)
		}
		return m, m.list.SetItems(data.items)

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, waitForProgress(m.progressChan, m.doneChan)

	case MsgIngestComplete:
		data := msg.data.(ingestComplete)
		m.result = data.result
		m.err = data.err
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case BrowseView:
		return m.renderBrowse()
	case IngestView:
		return m.renderIngest()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.kind):
		m.kind = nextKind(m.kind)
		return m, m.reload()
	case key.Matches(msg, m.keys.long):
		return m, m.selectWindow(models.WindowLong)
	case key.Matches(msg, m.keys.medium):
		return m, m.selectWindow(models.WindowMedium)
	case key.Matches(msg, m.keys.short):
		return m, m.selectWindow(models.WindowShort)
	case key.Matches(msg, m.keys.refresh):
		return m, m.reload()
	case key.Matches(msg, m.keys.ingest):
		if m.ingestor == nil {
			m.err = fmt.Errorf("%w: ingestion is not configured", shared.ErrServiceUnavailable)
			return m, nil
		}
		m.view = IngestView
		m.err = nil
		m.progress = tasks.ProgressUpdate{Message: "Starting run..."}
		return m, m.startIngest()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), msg.String() == "enter":
		m.view = BrowseView
		m.result = nil
		m.err = nil
		return m, m.reload()
	}
	return m, nil
}

func (m *Model) selectWindow(w models.Window) tea.Cmd {
	if w == m.window {
		return nil
	}
	m.window = w
	return m.reload()
}

func (m *Model) reload() tea.Cmd {
	m.list.ResetFilter()
	m.list.ResetSelected()
	m.list.Title = m.listTitle()
	return m.load()
}

func (m *Model) listTitle() string {
	if m.kind == models.KindPlaylistTracks {
		return "Playlist Tracks"
	}
	noun := "Artists"
	if m.kind == models.KindTracks {
		noun = "Tracks"
	}
	return fmt.Sprintf("Top %s: %s", noun, m.window.Label())
}

func (m *Model) load() tea.Cmd {
	kind, window := m.kind, m.window
	q := repositories.WindowQuery(window, m.now())
	store := m.store

	return func() tea.Msg {
		if store == nil {
			return rowsLoadedMsg(kind, window, nil, fmt.Errorf("%w: snapshot store not initialized", shared.ErrServiceUnavailable))
		}
		items, err := loadItems(store, kind, q)
		return rowsLoadedMsg(kind, window, items, err)
	}
}

func loadItems(store Store, kind models.Kind, q repositories.Query) ([]list.Item, error) {
	switch kind {
	case models.KindArtists:
		recs, err := store.LatestArtists(q)
		if err != nil {
			return nil, err
		}
		items := make([]list.Item, len(recs))
		for i, r := range recs {
			items[i] = artistItem{artist: r}
		}
		return items, nil
	case models.KindTracks:
		recs, err := store.LatestTracks(q)
		if err != nil {
			return nil, err
		}
		items := make([]list.Item, len(recs))
		for i, r := range recs {
			items[i] = trackItem{track: r}
		}
		return items, nil
	default:
		recs, err := store.LatestPlaylistTracks(q)
		if err != nil {
			return nil, err
		}
		items := make([]list.Item, len(recs))
		for i, r := range recs {
			items[i] = playlistTrackItem{track: r}
		}
		return items, nil
	}
}

func nextKind(k models.Kind) models.Kind {
	for i, kind := range kinds {
		if kind == k {
			return kinds[(i+1)%len(kinds)]
		}
	}
	return kinds[0]
}

func (m *Model) startIngest() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.doneChan = done

	ingestor, ctx, opts := m.ingestor, m.ctx, m.opts
	go func() {
		result, err := ingestor.Run(ctx, opts, progress)
		close(progress)
		done <- ingestCompleteMsg(result, err)
	}()

	return waitForProgress(progress, done)
}

// waitForProgress drains the progress channel, then yields the completion message once it closes.
func waitForProgress(progress <-chan tasks.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderTabs() string {
	tabs := make([]string, len(kinds))
	for i, k := range kinds {
		label := strings.ReplaceAll(string(k), "_", " ")
		if k == m.kind {
			tabs[i] = styles.active.Render(label)
		} else {
			tabs[i] = styles.tab.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) renderBrowse() string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.list.View())
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderIngest() string {
	title := styles.title.Render("Ingesting Snapshots")

	phase := "Starting..."
	switch m.progress.Phase {
	case tasks.FetchArtists, tasks.FetchTracks:
		phase = fmt.Sprintf("Fetching top items (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.ResolveGenres:
		phase = fmt.Sprintf("Resolving genres (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.FetchPlaylists:
		phase = fmt.Sprintf("Fetching playlists (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.WriteSnapshots:
		phase = "Writing snapshots..."
	case tasks.FinishRun:
		phase = "Finishing run..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	backHelp := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.result == nil || m.result.Run == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Run failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), backHelp)
	}

	run := m.result.Run
	var title string
	switch run.Status {
	case models.RunSucceeded:
		title = styles.ok.Render("✓ Run Complete")
	case models.RunPartial:
		title = styles.warn.Render("! Run Partially Complete")
	default:
		title = styles.err.Render("✗ Run Failed")
	}

	info := fmt.Sprintf("\nRun: %s\nArtists: %d\nTracks: %d\nPlaylist tracks: %d\nGenre lookups: %d",
		run.ID, run.ArtistsWritten, run.TracksWritten, run.PlaylistTracksWritten, m.result.GenreLookups)

	var failures string
	if n := len(m.result.FetchErrors); n > 0 {
		lines := make([]string, 0, n+1)
		lines = append(lines, styles.warn.Render(fmt.Sprintf("%d fetches failed:", n)))
		for _, err := range m.result.FetchErrors {
			lines = append(lines, "  - "+err.Error())
		}
		failures = "\n\n" + strings.Join(lines, "\n")
	}
	if m.err != nil {
		failures += "\n\n" + styles.err.Render(m.err.Error())
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failures, backHelp)
}

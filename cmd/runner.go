package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/desertthunder/toptally/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const embedTimeout = 10 * time.Second

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Service
	embedder   services.Embedder
	db         *shared.Database
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	Embedder   services.Embedder
	DB         *shared.Database
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		embedder:   opts.Embedder,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, spotifyCommand, ingestCommand, topCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Before loads the configuration and builds the services every command shares.
//
// A missing config file leaves the defaults in place. Environment variables (and .env) override file values.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	if err := shared.ApplyEnv(r.config, ".env"); err != nil {
		return ctx, err
	}

	if r.spotify == nil {
		r.spotify = r.newSpotifyService(ctx)
	}
	if r.embedder == nil {
		r.embedder = services.NewOEmbedClient(embedTimeout)
	}
	return ctx, nil
}

// After closes the database opened by a command, if any.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// newSpotifyService builds the Spotify client from configured credentials.
//
// Returns nil when credentials are missing so commands that do not talk to Spotify still work.
func (r *Runner) newSpotifyService(ctx context.Context) services.Service {
	creds := r.config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		r.logger.Debug("spotify service unavailable", "error", err)
		return nil
	}

	svc.SetRateLimit(r.config.Ingest.RateLimit)
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		} else {
			r.logger.Debug("refreshed token saved", "path", r.configPath)
		}
	})

	if token := creds.Token(); token != nil {
		if err := svc.OAuthenticate(ctx, token); err != nil {
			r.logger.Warn("stored token rejected", "error", err)
		}
	}
	return svc
}

// saveTokens stores token in the config and, when a config path is known, writes it to disk.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// openDatabase opens the configured database once per invocation and applies pending migrations.
func (r *Runner) openDatabase() (*shared.Database, error) {
	if r.db != nil {
		return r.db, nil
	}

	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(r.config.Database.Driver, r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	return db, nil
}

func (r *Runner) stores() (*repositories.SnapshotRepository, *repositories.RunRepository, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewSnapshotRepository(db), repositories.NewRunRepository(db), nil
}

// newIngestor wires the Spotify client, embedder and repositories into a [tasks.Ingestor].
func (r *Runner) newIngestor() (*tasks.Ingestor, error) {
	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized (set client_id and client_secret)", shared.ErrServiceUnavailable)
	}

	snapshots, runs, err := r.stores()
	if err != nil {
		return nil, err
	}
	return tasks.NewIngestor(r.spotify, r.embedder, snapshots, runs, r.logger), nil
}

// ingestOptions merges command flags over the [shared.IngestConfig] defaults.
func (r *Runner) ingestOptions(cmd *cli.Command) (tasks.RunOptions, error) {
	cfg := r.config.Ingest
	opts := tasks.RunOptions{
		Limit:         cfg.Limit,
		Playlists:     cfg.Playlists,
		PlaylistOwner: cfg.PlaylistOwner,
		Embeds:        cfg.Embeds,
	}

	if opts.Limit <= 0 {
		opts.Limit = tasks.MaxTopLimit
	}

	windows := cfg.Windows
	if cmd != nil {
		if cmd.IsSet("window") {
			windows = cmd.StringSlice("window")
		}
		if cmd.IsSet("limit") {
			opts.Limit = cmd.Int("limit")
		}
		if cmd.IsSet("playlists") {
			opts.Playlists = cmd.Bool("playlists")
		}
		if cmd.IsSet("owner") {
			opts.PlaylistOwner = cmd.String("owner")
		}
		if cmd.IsSet("embeds") {
			opts.Embeds = cmd.Bool("embeds")
		}
	}

	parsed, err := models.ParseWindows(windows)
	if err != nil {
		return opts, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	opts.Windows = parsed
	return opts, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// isAuthError reports whether err means the stored token can no longer be used.
func isAuthError(err error) bool {
	return errors.Is(err, shared.ErrTokenExpired) || errors.Is(err, shared.ErrNotAuthenticated)
}

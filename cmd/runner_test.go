package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/services"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/desertthunder/toptally/internal/tasks"
	tu "github.com/desertthunder/toptally/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// testRunner builds a Runner backed by a mock Spotify service and a SQLite file in a temp dir.
func testRunner(t *testing.T, spotify services.Service) (*Runner, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "test.db")
	config.Ingest.Playlists = false
	config.Ingest.Embeds = false

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: "missing.toml",
		Spotify:    spotify,
		Embedder:   &tu.MockEmbedder{},
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		Output:     output,
	})
	return runner, output
}

// run executes args against a fresh command tree wired to r.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:     "toptally",
		Flags:    rootFlags(),
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"toptally", "--config", r.configPath}, args...))
}

func mockSpotify() *tu.MockService {
	return &tu.MockService{
		User: services.SpotifyUser{ID: "u1", DisplayName: "Tester", Country: "US"},
		TopArtistsBy: map[models.Window][]services.SpotifyArtist{
			models.WindowShort: {
				{ID: "a1", Name: "Beach House", Genres: []string{"dream pop"}},
				{ID: "a2", Name: "Alvvays", Genres: []string{"indie pop"}},
				{ID: "a3", Name: "Slowdive", Genres: []string{"shoegaze"}},
			},
		},
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			spotify := &tu.MockService{}
			embedder := &tu.MockEmbedder{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Spotify:    spotify,
				Embedder:   embedder,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.spotify != spotify {
				t.Error("expected spotify to be set")
			}
			if runner.embedder != embedder {
				t.Error("expected embedder to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, name := range []string{"setup", "spotify", "ingest", "top", "serve", "tui"} {
			if !names[name] {
				t.Errorf("expected %q command to be registered", name)
			}
		}
	})

	t.Run("saveTokens", func(t *testing.T) {
		t.Run("saves tokens successfully", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")

			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "test_id"
			config.Credentials.Spotify.ClientSecret = "test_secret"

			if err := shared.SaveConfig(configPath, config); err != nil {
				t.Fatalf("failed to create test config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath})

			token := &oauth2.Token{AccessToken: "new_access_token", RefreshToken: "new_refresh_token"}
			if err := runner.saveTokens(token); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			loadedConfig, err := shared.LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to reload config: %v", err)
			}

			if loadedConfig.Credentials.Spotify.AccessToken != "new_access_token" {
				t.Errorf("expected access token to be updated, got %s", loadedConfig.Credentials.Spotify.AccessToken)
			}
			if loadedConfig.Credentials.Spotify.RefreshToken != "new_refresh_token" {
				t.Errorf("expected refresh token to be updated, got %s", loadedConfig.Credentials.Spotify.RefreshToken)
			}
			if loadedConfig.Credentials.Spotify.ClientID != "test_id" {
				t.Error("expected the rest of the config to be preserved")
			}
		})

		t.Run("handles nil config error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/tmp/test.toml"})
			runner.config = nil

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("handles empty configPath", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config})

			if err := runner.saveTokens(&oauth2.Token{AccessToken: "new_token"}); err != nil {
				t.Fatalf("expected no error with empty path, got %v", err)
			}
			if config.Credentials.Spotify.AccessToken != "new_token" {
				t.Error("expected config to be updated in memory")
			}
		})

		t.Run("handles SaveConfig failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config:     shared.DefaultConfig(),
				ConfigPath: filepath.Join(t.TempDir(), "missing", "config.toml"),
			})

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if err == nil || !strings.Contains(err.Error(), "failed to save config") {
				t.Errorf("expected save config error, got %v", err)
			}
		})

		t.Run("handles Update error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})

			err := runner.saveTokens(nil)
			if err == nil || !strings.Contains(err.Error(), "failed to update spotify configuration") {
				t.Fatalf("expected update error, got %v", err)
			}
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials in chain, got %v", err)
			}
		})
	})

	t.Run("writeProgress leaves the finish line to the summary", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		runner.writeProgress(tasks.ProgressUpdate{Phase: tasks.FinishRun, Message: "Run r1 succeeded"})
		if output.Len() != 0 {
			t.Errorf("expected no output for FinishRun, got %q", output.String())
		}

		runner.writeProgress(tasks.ProgressUpdate{Phase: tasks.WriteSnapshots, Message: "Writing rows"})
		if !strings.Contains(output.String(), "Writing rows") {
			t.Errorf("expected write progress, got %q", output.String())
		}
	})

	t.Run("ingestOptions", func(t *testing.T) {
		t.Run("uses config defaults", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Ingest.Windows = []string{"short_term", "long", "short"}
			config.Ingest.PlaylistOwner = "someone"
			runner := NewRunner(RunnerOpts{Config: config})

			opts, err := runner.ingestOptions(nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(opts.Windows) != 2 || opts.Windows[0] != models.WindowShort || opts.Windows[1] != models.WindowLong {
				t.Errorf("expected [short long], got %v", opts.Windows)
			}
			if opts.Limit != 50 || !opts.Playlists || opts.PlaylistOwner != "someone" {
				t.Errorf("unexpected options %+v", opts)
			}
		})

		t.Run("unset limit falls back to one full page", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Ingest.Limit = 0
			runner := NewRunner(RunnerOpts{Config: config})

			opts, err := runner.ingestOptions(nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if opts.Limit != tasks.MaxTopLimit {
				t.Errorf("expected limit %d, got %d", tasks.MaxTopLimit, opts.Limit)
			}
		})

		t.Run("flags override config", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			var got struct {
				limit     int
				windows   []models.Window
				playlists bool
			}
			cmd := &cli.Command{
				Name:  "run",
				Flags: ingestCommand(runner).Commands[0].Flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := runner.ingestOptions(cmd)
					got.limit, got.windows, got.playlists = opts.Limit, opts.Windows, opts.Playlists
					return err
				},
			}

			err := cmd.Run(context.Background(), []string{"run", "--window", "medium", "--limit", "5", "--playlists=false"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.limit != 5 || got.playlists || len(got.windows) != 1 || got.windows[0] != models.WindowMedium {
				t.Errorf("unexpected options %+v", got)
			}
		})

		t.Run("rejects unknown window", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Ingest.Windows = []string{"forever"}
			runner := NewRunner(RunnerOpts{Config: config})

			if _, err := runner.ingestOptions(nil); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	})
}

func TestCommands(t *testing.T) {
	t.Run("ingest then read back", func(t *testing.T) {
		spotify := mockSpotify()
		runner, output := testRunner(t, spotify)

		if err := run(t, runner, "ingest", "run", "--window", "short", "--limit", "2"); err != nil {
			t.Fatalf("ingest run failed: %v", err)
		}
		for _, s := range []string{"Ingest Complete!", "Artists: 2", "Fetching top artists"} {
			if !strings.Contains(output.String(), s) {
				t.Errorf("ingest output missing %q:\n%s", s, output.String())
			}
		}
		if n := strings.Count(output.String(), "succeeded: 2 artists, 0 tracks, 0 playlist tracks"); n != 1 {
			t.Errorf("expected the finish line once, got %d:\n%s", n, output.String())
		}
		if runner.db != nil {
			t.Error("expected database to be closed after the command")
		}

		output.Reset()
		if err := run(t, runner, "top", "artists", "--window", "short", "--format", "csv"); err != nil {
			t.Fatalf("top artists failed: %v", err)
		}
		csv := output.String()
		if !strings.HasPrefix(csv, "Rank,Artist,Genres,Fetched") {
			t.Errorf("expected CSV header, got %q", csv)
		}
		if !strings.Contains(csv, "Beach House") || !strings.Contains(csv, "Alvvays") || strings.Contains(csv, "Slowdive") {
			t.Errorf("expected the two ingested artists, got:\n%s", csv)
		}

		output.Reset()
		if err := run(t, runner, "ingest", "runs"); err != nil {
			t.Fatalf("ingest runs failed: %v", err)
		}
		if !strings.Contains(output.String(), "succeeded") || !strings.Contains(output.String(), "artists=2") {
			t.Errorf("expected run listing, got:\n%s", output.String())
		}
	})

	t.Run("ingest json summary", func(t *testing.T) {
		runner, output := testRunner(t, mockSpotify())

		if err := run(t, runner, "ingest", "run", "--window", "short", "--json"); err != nil {
			t.Fatalf("ingest run failed: %v", err)
		}
		if !strings.Contains(output.String(), `"status": "succeeded"`) {
			t.Errorf("expected JSON summary, got:\n%s", output.String())
		}
		if strings.Contains(output.String(), "Fetching") {
			t.Error("progress should not be printed in JSON mode")
		}
	})

	t.Run("ingest without spotify", func(t *testing.T) {
		runner, _ := testRunner(t, nil)

		_, err := runner.newIngestor()
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("top writes file", func(t *testing.T) {
		runner, output := testRunner(t, mockSpotify())
		if err := run(t, runner, "ingest", "run", "--window", "short"); err != nil {
			t.Fatalf("ingest run failed: %v", err)
		}

		output.Reset()
		if err := run(t, runner, "top", "artists", "--window", "short", "--format", "md", "--out", "-"); err != nil {
			t.Fatalf("top artists failed: %v", err)
		}
		tu.AssertFileExists(t, "artists.md")
		if md := tu.MustReadFile(t, "artists.md"); !strings.Contains(md, "# Top Artists: Last 4 Weeks") {
			t.Errorf("unexpected markdown:\n%s", md)
		}
		if !strings.Contains(output.String(), "Wrote 3 rows to artists.md") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("top rejects bad input", func(t *testing.T) {
		runner, _ := testRunner(t, nil)

		if err := run(t, runner, "top", "tracks", "--window", "forever"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := run(t, runner, "top", "tracks", "--format", "xml"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("spotify me", func(t *testing.T) {
		runner, output := testRunner(t, mockSpotify())

		if err := run(t, runner, "spotify", "me"); err != nil {
			t.Fatalf("spotify me failed: %v", err)
		}
		if !strings.Contains(output.String(), "User: Tester") || !strings.Contains(output.String(), "ID: u1") {
			t.Errorf("unexpected output:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "spotify", "me", "--json"); err != nil {
			t.Fatalf("spotify me --json failed: %v", err)
		}
		if !strings.Contains(output.String(), `"display_name": "Tester"`) {
			t.Errorf("unexpected JSON:\n%s", output.String())
		}
	})

	t.Run("setup database creates config", func(t *testing.T) {
		runner, output := testRunner(t, nil)
		runner.configPath = filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, runner.configPath)
		tu.AssertFileExists(t, "toptally.db")
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
	})
}

func TestHandleSpotifyAuthError(t *testing.T) {
	runner, _ := testRunner(t, &tu.MockService{})

	t.Run("ignores other errors", func(t *testing.T) {
		reauthed, err := runner.handleSpotifyAuthError(context.Background(), shared.ErrRateLimited)
		if reauthed || !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected passthrough, got %v %v", reauthed, err)
		}
	})

	t.Run("requires an OAuth service", func(t *testing.T) {
		reauthed, err := runner.handleSpotifyAuthError(context.Background(), shared.ErrTokenExpired)
		if !reauthed || !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected reauthorization to fail with ErrAuthFailed, got %v %v", reauthed, err)
		}
	})
}

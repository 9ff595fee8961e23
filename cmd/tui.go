package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/desertthunder/toptally/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/toptally-tui.log"

// TUI launches the interactive terminal UI for browsing snapshots.
//
// Ingestion from the TUI is only available when Spotify credentials are configured.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	snapshots, _, err := r.stores()
	if err != nil {
		return err
	}

	opts, err := r.ingestOptions(cmd)
	if err != nil {
		return err
	}

	var ingestor ui.Ingestor
	if ing, err := r.newIngestor(); err != nil {
		r.logger.Warn("ingestion disabled in TUI", "error", err)
	} else {
		ingestor = ing
	}

	model := ui.NewModel(ctx, snapshots, ingestor, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

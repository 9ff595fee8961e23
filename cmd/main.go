package main

import (
	"context"
	"os"

	"github.com/desertthunder/toptally/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "toptally",
		Usage:    "Snapshot your Spotify top artists and tracks over time",
		Version:  "0.1.0",
		Flags:    rootFlags(),
		Before:   runner.Before,
		After:    runner.After,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if isAuthError(err) {
			logger.Warn("spotify session expired, run: toptally spotify auth")
		}
		logger.Fatalf("application error: %v", err)
	}
}

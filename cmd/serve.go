package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/toptally/internal/server"
	"github.com/desertthunder/toptally/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the dashboard until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	snapshots, runs, err := r.stores()
	if err != nil {
		return err
	}

	dashboard, err := web.NewDashboard(snapshots, runs, r.logger)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.writePlain("→ Dashboard at http://%s/\n", addr)
	return server.Serve(ctx, addr, dashboard.Handler(), r.logger)
}

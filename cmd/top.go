package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/toptally/internal/formatter"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/repositories"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/urfave/cli/v3"
)

// Top prints the latest snapshot rows for the command's kind and the selected window.
//
// With --out the rendered table is written to a file instead; "-" picks {kind}.{ext}.
func (r *Runner) Top(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	window, err := models.ParseWindow(cmd.String("window"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	snapshots, _, err := r.stores()
	if err != nil {
		return err
	}

	table, err := snapshotTable(snapshots, kind, repositories.WindowQuery(window, time.Now()))
	if err != nil {
		return err
	}

	if !cmd.IsSet("out") {
		return formatter.Write(r.output, table, format)
	}

	path := cmd.String("out")
	if path == "-" {
		path = ""
	}
	written, err := formatter.WriteFile(table, format, kind, path)
	if err != nil {
		return err
	}

	r.logger.Info("snapshot exported", "kind", kind, "window", window, "rows", len(table.Rows), "file", written)
	r.writePlain("✓ Wrote %d rows to %s\n", len(table.Rows), written)
	return nil
}

func snapshotTable(store *repositories.SnapshotRepository, kind models.Kind, q repositories.Query) (formatter.Table, error) {
	switch kind {
	case models.KindArtists:
		recs, err := store.LatestArtists(q)
		if err != nil {
			return formatter.Table{}, err
		}
		return formatter.ArtistsTable(q.Window, recs), nil
	case models.KindTracks:
		recs, err := store.LatestTracks(q)
		if err != nil {
			return formatter.Table{}, err
		}
		return formatter.TracksTable(q.Window, recs), nil
	default:
		recs, err := store.LatestPlaylistTracks(q)
		if err != nil {
			return formatter.Table{}, err
		}
		return formatter.PlaylistTracksTable(recs), nil
	}
}

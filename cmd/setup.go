package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/toptally/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when it is missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else if config, err := shared.LoadConfig(r.configPath); err == nil {
				r.config = config
				if err := shared.ApplyEnv(r.config); err != nil {
					return err
				}
				r.writePlain("✓ Created %s\n", r.configPath)
			}
		}
	}

	r.logger.Info("initializing database", "driver", r.config.Database.Driver, "path", r.config.Database.Path)

	if _, err := r.openDatabase(); err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready: %s (%s)\n", r.config.Database.Path, r.config.Database.Driver)
	return nil
}

// SetupRollback rolls back the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(r.config.Database.Driver, r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	r.writePlain("✓ Rolled back the latest migration\n")
	return nil
}

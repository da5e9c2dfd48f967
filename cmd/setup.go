package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/echo/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes a starter config file when none exists, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = cmd.String("config")
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.config = r.loadConfig(configPath)
			r.configPath = configPath
			r.writePlain("✓ Config written to %s\n", configPath)
			r.writePlain("  Set credentials.spotify.client_id and client_secret before running 'echo auth'\n")
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

package main

import (
	"context"

	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes an example configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlain("✓ Config file created at %s\n", path)
	r.writePlain("Edit it to add your provider credentials.\n")

	return nil
}

// SetupDatabase creates the match-cache database and applies migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	path := r.config.Database.Path
	if path == "" {
		path = "crossfade.db"
	}
	r.writePlain("✓ Database ready at %s\n", path)

	return nil
}

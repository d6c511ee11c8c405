package main

import (
	"context"

	"github.com/desertthunder/crossfade/internal/repositories"
	"github.com/urfave/cli/v3"
)

// CacheStats prints cached match counts, optionally scoped to one provider.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewMatchCacheRepository(db)
	service := cmd.String("service")

	count, err := repo.Count(ctx, service)
	if err != nil {
		return err
	}

	if service == "" {
		r.writePlain("Cached matches: %d\n", count)
	} else {
		r.writePlain("Cached matches for %s: %d\n", service, count)
	}

	return nil
}

// CacheClear removes cached matches, optionally scoped to one provider.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewMatchCacheRepository(db)

	removed, err := repo.Clear(ctx, cmd.String("service"))
	if err != nil {
		return err
	}

	r.writePlain("✓ Removed %d cached matches\n", removed)

	return nil
}

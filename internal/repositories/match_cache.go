// Package repositories implements SQLite persistence for the transfer engine.
//
// The single store is [MatchCacheRepository]: successful destination-side
// track resolutions keyed by (service, title, artist). Keys are stored in
// sanitized form so lookups hit regardless of provider noise like
// "(Remastered)" suffixes. Duplicate inserts are silently ignored (UNIQUE
// constraint violations).
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
)

// MatchCacheRepository persists (service, title, artist) -> track id
// resolutions. Implements tasks.MatchCacher.
type MatchCacheRepository struct {
	db *sql.DB
}

// NewMatchCacheRepository creates a repository over an open database. The
// search_cache table must already exist (see shared.RunMigrations).
func NewMatchCacheRepository(db *sql.DB) *MatchCacheRepository {
	return &MatchCacheRepository{db: db}
}

// cacheKey normalizes a title/artist pair the same way search queries are
// built, so a cache written during one transfer is hit by the next even when
// the source metadata differs in noise.
func cacheKey(title, artist string) (string, string) {
	return shared.SanitizeQuery(title), shared.SanitizeQuery(artist)
}

// Get looks up a cached resolution. A miss is not an error; lookup failures
// degrade to a miss so a broken cache never blocks a transfer.
func (r *MatchCacheRepository) Get(ctx context.Context, service, title, artist string) (string, bool) {
	keyTitle, keyArtist := cacheKey(title, artist)

	var trackID string
	err := r.db.QueryRowContext(ctx,
		`SELECT track_id FROM search_cache WHERE service = ? AND title = ? AND artist = ?`,
		service, keyTitle, keyArtist,
	).Scan(&trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}

	return trackID, trackID != ""
}

// Put stores a resolution. Returns nil if the entry already exists.
func (r *MatchCacheRepository) Put(ctx context.Context, service, title, artist, trackID string) error {
	keyTitle, keyArtist := cacheKey(title, artist)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_cache (service, title, artist, track_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		service, keyTitle, keyArtist, trackID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache match: %w", err)
	}

	return nil
}

// Clear removes every cached resolution, optionally scoped to one service.
func (r *MatchCacheRepository) Clear(ctx context.Context, service string) (int64, error) {
	var result sql.Result
	var err error

	if service == "" {
		result, err = r.db.ExecContext(ctx, `DELETE FROM search_cache`)
	} else {
		result, err = r.db.ExecContext(ctx, `DELETE FROM search_cache WHERE service = ?`, service)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear match cache: %w", err)
	}

	return result.RowsAffected()
}

// Count reports the number of cached resolutions, optionally scoped to one
// service.
func (r *MatchCacheRepository) Count(ctx context.Context, service string) (int64, error) {
	var count int64
	var err error

	if service == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_cache`).Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_cache WHERE service = ?`, service).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count match cache: %w", err)
	}

	return count, nil
}

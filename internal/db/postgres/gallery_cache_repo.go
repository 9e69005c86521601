package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"Kittens/internal/core/gallery"
)

type postgresGalleryCacheRepo struct {
	db *sql.DB
}

// NewGalleryCacheRepository creates a PostgreSQL-backed gallery cache store.
func NewGalleryCacheRepository(db *sql.DB) gallery.CacheStore {
	return &postgresGalleryCacheRepo{db: db}
}

// Get returns the cache entry stored under key
func (r *postgresGalleryCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT entry FROM gallery_cache WHERE cache_key = $1`

	var entry []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&entry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gallery.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gallery cache entry: %w", err)
	}
	return entry, nil
}

// Set upserts the cache entry under key
func (r *postgresGalleryCacheRepo) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO gallery_cache (cache_key, entry, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (cache_key) DO UPDATE
		SET entry = EXCLUDED.entry, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("failed to set gallery cache entry: %w", err)
	}
	return nil
}

// Delete removes the cache entry under key
func (r *postgresGalleryCacheRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM gallery_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete gallery cache entry: %w", err)
	}
	return nil
}

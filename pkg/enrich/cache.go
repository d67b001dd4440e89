package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/migrations"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/models"
)

// Cache is the persistent enrichment cache. Rows are write-through with a
// TTL; expired rows are treated as absent and removed by the reaper.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCache migrates and wraps the enrichment database.
func NewCache(db *sql.DB, logger *zap.Logger) (*Cache, error) {
	if err := database.Migrate(db, migrations.FS, migrations.EnrichmentDir); err != nil {
		return nil, fmt.Errorf("migrate enrichment db: %w", err)
	}
	return &Cache{db: db, logger: logger.Named("enrichcache")}, nil
}

// Get returns the cached result for the key, or nil when absent or
// expired.
func (c *Cache) Get(ctx context.Context, entityType models.EntityType, normalizedKey string) (*models.EnrichmentResult, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT result FROM enrichment_cache WHERE entity_type = ? AND normalized_key = ?`,
		string(entityType), normalizedKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read enrichment cache: %w", err)
	}

	var result models.EnrichmentResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode cached enrichment: %w", err)
	}
	if result.Expired(time.Now().UTC()) {
		return nil, nil
	}
	return &result, nil
}

// Put upserts a result under its (entity_type, normalized_key).
func (c *Cache) Put(ctx context.Context, result *models.EnrichmentResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode enrichment: %w", err)
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (entity_type, normalized_key, result, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, normalized_key) DO UPDATE SET
		   result = excluded.result, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		string(result.EntityType), result.NormalizedKey, string(raw),
		result.FetchedAt, result.ExpiresAt); err != nil {
		return fmt.Errorf("write enrichment cache: %w", err)
	}
	return nil
}

// Reap deletes expired cache rows, returning the count removed.
func (c *Cache) Reap(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reap enrichment cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap enrichment cache: %w", err)
	}
	if affected > 0 {
		c.logger.Info("Reaped expired enrichment rows", zap.Int64("count", affected))
	}
	return int(affected), nil
}

// StartReaper runs Reap on the interval until the context is cancelled.
func (c *Cache) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Reap(ctx); err != nil && ctx.Err() == nil {
					c.logger.Warn("Reaper pass failed", zap.Error(err))
				}
			}
		}
	}()
}

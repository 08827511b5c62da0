// Package clientdata provides the persistent last-known cache of price-source responses.
// Observations are stored as msgpack blobs with expiration timestamps for cache-first
// behavior; expired rows stay available as a stale fallback until cleanup removes them.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/reseller/internal/domain"
)

// Repository provides cache operations for price observations in cache.db.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new observation cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// ItemKey is the cache key for every observation of one item.
func ItemKey(itemID int64) string {
	return "item:" + strconv.FormatInt(itemID, 10)
}

// Store saves observations with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(ctx context.Context, key string, observations []domain.MarketPrice, ttl time.Duration) error {
	data, err := msgpack.Marshal(observations)
	if err != nil {
		return fmt.Errorf("failed to encode observations: %w", err)
	}

	now := r.now()
	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO observation_cache (cache_key, data, stored_at, expires_at) VALUES (?, ?, ?, ?)",
		key, data, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store observations for %s: %w", key, err)
	}
	return nil
}

// GetIfFresh returns observations only if expires_at > now.
// Returns nil, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when fetches fail.
func (r *Repository) GetIfFresh(ctx context.Context, key string) ([]domain.MarketPrice, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM observation_cache WHERE cache_key = ? AND expires_at > ?",
		key, r.now().Unix(),
	).Scan(&data)
	return decode(key, data, err)
}

// Get returns observations regardless of expiration status.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(ctx context.Context, key string) ([]domain.MarketPrice, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT data FROM observation_cache WHERE cache_key = ?", key).Scan(&data)
	return decode(key, data, err)
}

func decode(key string, data []byte, err error) ([]domain.MarketPrice, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read observations for %s: %w", key, err)
	}

	var observations []domain.MarketPrice
	if err := msgpack.Unmarshal(data, &observations); err != nil {
		return nil, fmt.Errorf("failed to decode observations for %s: %w", key, err)
	}
	return observations, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM observation_cache WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteExpiredBefore removes rows that expired before cutoff.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM observation_cache WHERE expires_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired observations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

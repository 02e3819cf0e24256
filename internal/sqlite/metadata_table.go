package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// RecordSyncTime upserts the timestamp stored under key.
func (b *Backend) RecordSyncTime(ctx context.Context, key string, t time.Time) error {
	if key == "" {
		return types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	_, err := b.db.ExecContext(ctx,
		"INSERT INTO sync_metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, formatTime(t))
	if err != nil {
		return fmt.Errorf("recording sync time %s: %w", key, err)
	}
	return nil
}

// GetSyncTime returns the timestamp stored under key.
func (b *Backend) GetSyncTime(ctx context.Context, key string) (time.Time, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return time.Time{}, false, types.ErrStoreDetached
	}

	var value string
	err := b.db.QueryRowContext(ctx, "SELECT value FROM sync_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading sync time %s: %w", key, err)
	}
	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing sync time %s: %w", key, err)
	}
	return t, true, nil
}

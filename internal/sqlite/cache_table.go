package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// GetCachedRecords returns the cached rows for table in the order they were
// fetched. A table that was never cached returns an empty slice.
func (b *Backend) GetCachedRecords(ctx context.Context, table string) ([]types.CachedRecord, error) {
	if table == "" {
		return nil, types.ErrInvalidTable
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT record_id, data, cached_at FROM cached_data WHERE table_name = ? ORDER BY position", table)
	if err != nil {
		return nil, fmt.Errorf("querying cached %s: %w", table, err)
	}
	defer rows.Close()

	records := []types.CachedRecord{}
	for rows.Next() {
		var id, dataJSON, cachedAt string
		if err := rows.Scan(&id, &dataJSON, &cachedAt); err != nil {
			return nil, fmt.Errorf("scanning cached record: %w", err)
		}
		rec := types.CachedRecord{Table: table, ID: id}
		if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
			return nil, fmt.Errorf("parsing cached record %s: %w", id, err)
		}
		rec.CachedAt, err = parseTime(cachedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing cached_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cached %s: %w", table, err)
	}
	return records, nil
}

// SetCachedRecords clears and refills the cache for table inside a single
// transaction. Readers observe either the previous rows or the new ones.
func (b *Backend) SetCachedRecords(ctx context.Context, table string, records []types.Record) error {
	if table == "" {
		return types.ErrInvalidTable
	}

	// Marshal before opening the transaction so a bad record never leaves a
	// half-written table behind.
	encoded := make([]string, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling %s record %d: %w", table, i, err)
		}
		encoded[i] = string(data)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_data WHERE table_name = ?", table); err != nil {
		return fmt.Errorf("clearing cached %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO cached_data (table_name, position, record_id, data, cached_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing cache insert: %w", err)
	}
	defer stmt.Close()

	cachedAt := formatTime(b.now())
	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, table, i, rec.ID(), encoded[i], cachedAt); err != nil {
			return fmt.Errorf("inserting cached %s record %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache for %s: %w", table, err)
	}
	return nil
}

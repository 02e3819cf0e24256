package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// cachedRow is the stored value of a cache/ key.
type cachedRow struct {
	ID       string       `json:"id"`
	Data     types.Record `json:"data"`
	CachedAt time.Time    `json:"cached_at"`
}

// mutationRow is the stored value of a mut/ key.
type mutationRow struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Operation  types.Operation `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

func cachePrefix(table string) []byte {
	return []byte(prefixCache + table + "\x00")
}

func cacheKey(table string, position int) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%010d", prefixCache, table, position))
}

func mutationKey(id string) []byte {
	return []byte(prefixMutation + id)
}

// GetCachedRecords returns the cached rows for table in fetch order.
func (b *Backend) GetCachedRecords(ctx context.Context, table string) ([]types.CachedRecord, error) {
	if table == "" || strings.ContainsRune(table, 0) {
		return nil, types.ErrInvalidTable
	}
	records := []types.CachedRecord{}
	err := b.view(func(txn *badger.Txn) error {
		return eachValue(txn, cachePrefix(table), func(_, val []byte) error {
			var row cachedRow
			if err := json.Unmarshal(val, &row); err != nil {
				return fmt.Errorf("parsing cached %s record: %w", table, err)
			}
			records = append(records, types.CachedRecord{
				Table:    table,
				ID:       row.ID,
				Data:     row.Data,
				CachedAt: row.CachedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SetCachedRecords deletes and rewrites every cache key for table in one
// transaction. Rows are encoded before the transaction opens.
func (b *Backend) SetCachedRecords(ctx context.Context, table string, records []types.Record) error {
	if table == "" || strings.ContainsRune(table, 0) {
		return types.ErrInvalidTable
	}
	now := b.now().UTC()
	encoded := make([][]byte, len(records))
	for i, rec := range records {
		data, err := json.Marshal(cachedRow{ID: rec.ID(), Data: rec, CachedAt: now})
		if err != nil {
			return fmt.Errorf("marshaling %s record %d: %w", table, i, err)
		}
		encoded[i] = data
	}

	err := b.update(func(txn *badger.Txn) error {
		for _, key := range prefixKeys(txn, cachePrefix(table)) {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("clearing cached %s: %w", table, err)
			}
		}
		for i, data := range encoded {
			if err := txn.Set(cacheKey(table, i), data); err != nil {
				return fmt.Errorf("writing cached %s record %d: %w", table, i, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("replacing cache for %s with %d rows: %w: %w", table, len(records), ErrTableTooLarge, err)
	}
	if err != nil {
		return fmt.Errorf("replacing cache for %s: %w", table, err)
	}
	return nil
}

// EnqueueMutation stores m under a fresh UUID v7 key.
func (b *Backend) EnqueueMutation(ctx context.Context, m types.Mutation) (string, error) {
	if err := types.ValidateMutation(m); err != nil {
		return "", err
	}
	payload, err := types.EncodeMutation(m)
	if err != nil {
		return "", err
	}

	id := generateUUID()
	row := mutationRow{
		ID:         id,
		Table:      m.Table(),
		Operation:  m.Operation(),
		Payload:    payload,
		EnqueuedAt: b.now().UTC(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("marshaling mutation: %w", err)
	}
	if err := b.update(func(txn *badger.Txn) error {
		return txn.Set(mutationKey(id), data)
	}); err != nil {
		return "", fmt.Errorf("enqueueing %s on %s: %w", m.Operation(), m.Table(), err)
	}
	return id, nil
}

// ListPendingMutations returns the queue in key order.
func (b *Backend) ListPendingMutations(ctx context.Context) ([]types.PendingMutation, error) {
	pending := []types.PendingMutation{}
	err := b.view(func(txn *badger.Txn) error {
		return eachValue(txn, []byte(prefixMutation), func(_, val []byte) error {
			var row mutationRow
			if err := json.Unmarshal(val, &row); err != nil {
				return fmt.Errorf("parsing pending mutation: %w", err)
			}
			m, err := types.DecodeMutation(row.Table, row.Operation, row.Payload)
			if err != nil {
				return fmt.Errorf("decoding mutation %s: %w", row.ID, err)
			}
			pending = append(pending, types.PendingMutation{
				ID:         row.ID,
				Mutation:   m,
				EnqueuedAt: row.EnqueuedAt,
				RetryCount: row.RetryCount,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// PendingCount counts mut/ keys.
func (b *Backend) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := b.view(func(txn *badger.Txn) error {
		n = len(prefixKeys(txn, []byte(prefixMutation)))
		return nil
	})
	return n, err
}

// RemoveMutation deletes the mutation key. Deleting a missing key is a no-op
// in Badger.
func (b *Backend) RemoveMutation(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := b.update(func(txn *badger.Txn) error {
		return txn.Delete(mutationKey(id))
	}); err != nil {
		return fmt.Errorf("removing mutation %s: %w", id, err)
	}
	return nil
}

// IncrementRetry rewrites the mutation with retry_count + 1. Unknown ids are
// ignored.
func (b *Backend) IncrementRetry(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get(mutationKey(id))
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		var row mutationRow
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return fmt.Errorf("parsing mutation %s: %w", id, err)
		}
		row.RetryCount++
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(mutationKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("incrementing retry for %s: %w", id, err)
	}
	return nil
}

// RecordSyncTime stores t under meta/<key>.
func (b *Backend) RecordSyncTime(ctx context.Context, key string, t time.Time) error {
	if key == "" {
		return types.ErrInvalidID
	}
	value := []byte(t.UTC().Format(time.RFC3339Nano))
	if err := b.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixMeta+key), value)
	}); err != nil {
		return fmt.Errorf("recording sync time %s: %w", key, err)
	}
	return nil
}

// GetSyncTime reads meta/<key>.
func (b *Backend) GetSyncTime(ctx context.Context, key string) (time.Time, bool, error) {
	var t time.Time
	var ok bool
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + key))
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fmt.Errorf("parsing sync time %s: %w", key, err)
			}
			t, ok = parsed, true
			return nil
		})
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return t, ok, nil
}

// SaveBaseline writes a new baseline/<id> key, refusing to overwrite.
func (b *Backend) SaveBaseline(ctx context.Context, s types.BaselineSnapshot) (string, error) {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = b.now()
	}
	s.CapturedAt = s.CapturedAt.UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling baseline: %w", err)
	}

	key := []byte(prefixBaseline + s.ID)
	err = b.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return types.ErrBaselineExists
		}
		if !isNotFound(err) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// GetBaseline reads baseline/<id>.
func (b *Backend) GetBaseline(ctx context.Context, id string) (types.BaselineSnapshot, error) {
	if id == "" {
		return types.BaselineSnapshot{}, types.ErrInvalidID
	}
	var s types.BaselineSnapshot
	err := b.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixBaseline + id))
		if isNotFound(err) {
			return types.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return types.BaselineSnapshot{}, err
	}
	return s, nil
}

// LatestBaseline scans all baselines and returns the newest by capture time.
func (b *Backend) LatestBaseline(ctx context.Context) (types.BaselineSnapshot, error) {
	all, err := b.ListBaselines(ctx)
	if err != nil {
		return types.BaselineSnapshot{}, err
	}
	if len(all) == 0 {
		return types.BaselineSnapshot{}, types.ErrNotFound
	}
	return all[len(all)-1], nil
}

// ListBaselines returns all baselines ordered by capture time, then id.
func (b *Backend) ListBaselines(ctx context.Context) ([]types.BaselineSnapshot, error) {
	out := []types.BaselineSnapshot{}
	err := b.view(func(txn *badger.Txn) error {
		return eachValue(txn, []byte(prefixBaseline), func(_, val []byte) error {
			var s types.BaselineSnapshot
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("parsing baseline: %w", err)
			}
			out = append(out, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

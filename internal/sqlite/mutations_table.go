package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// EnqueueMutation validates m, assigns it a UUID v7 and appends it to the
// pending queue.
func (b *Backend) EnqueueMutation(ctx context.Context, m types.Mutation) (string, error) {
	if err := types.ValidateMutation(m); err != nil {
		return "", err
	}
	payload, err := types.EncodeMutation(m)
	if err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return "", types.ErrStoreDetached
	}

	id := generateUUID()
	_, err = b.db.ExecContext(ctx,
		"INSERT INTO pending_mutations (mutation_id, table_name, operation, payload, enqueued_at, retry_count) VALUES (?, ?, ?, ?, ?, 0)",
		id, m.Table(), string(m.Operation()), string(payload), formatTime(b.now()))
	if err != nil {
		return "", fmt.Errorf("enqueueing %s on %s: %w", m.Operation(), m.Table(), err)
	}
	return id, nil
}

// ListPendingMutations returns the queue ordered by insertion index.
func (b *Backend) ListPendingMutations(ctx context.Context) ([]types.PendingMutation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT mutation_id, table_name, operation, payload, enqueued_at, retry_count FROM pending_mutations ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying pending mutations: %w", err)
	}
	defer rows.Close()

	pending := []types.PendingMutation{}
	for rows.Next() {
		var id, table, op, payload, enqueuedAt string
		var retries int
		if err := rows.Scan(&id, &table, &op, &payload, &enqueuedAt, &retries); err != nil {
			return nil, fmt.Errorf("scanning pending mutation: %w", err)
		}
		m, err := types.DecodeMutation(table, types.Operation(op), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decoding mutation %s: %w", id, err)
		}
		at, err := parseTime(enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing enqueued_at: %w", err)
		}
		pending = append(pending, types.PendingMutation{
			ID:         id,
			Mutation:   m,
			EnqueuedAt: at,
			RetryCount: retries,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending mutations: %w", err)
	}
	return pending, nil
}

// PendingCount counts queued mutations.
func (b *Backend) PendingCount(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return 0, types.ErrStoreDetached
	}

	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_mutations").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending mutations: %w", err)
	}
	return n, nil
}

// RemoveMutation deletes a queued mutation. Removing an unknown id is not an
// error.
func (b *Backend) RemoveMutation(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	if _, err := b.db.ExecContext(ctx, "DELETE FROM pending_mutations WHERE mutation_id = ?", id); err != nil {
		return fmt.Errorf("removing mutation %s: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps a mutation's retry count. Unknown ids are ignored.
func (b *Backend) IncrementRetry(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	if _, err := b.db.ExecContext(ctx,
		"UPDATE pending_mutations SET retry_count = retry_count + 1 WHERE mutation_id = ?", id); err != nil {
		return fmt.Errorf("incrementing retry for %s: %w", id, err)
	}
	return nil
}

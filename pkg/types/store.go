package types

import (
	"context"
	"errors"
	"time"
)

// Store is the durable local storage shared by the sync queue and the
// scoring engine. It holds the cached copies of remote tables, the queue of
// pending mutations, sync timestamps, and baseline snapshots.
//
// Every write is individually transactional. Engine failures are returned to
// the caller wrapped; nothing is silently dropped.
type Store interface {
	// Attach opens the backend described by config. Creates DataDir if it
	// does not exist. Returns ErrAlreadyAttached if already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach, operations
	// return ErrStoreDetached.
	Detach() error

	// GetCachedRecords returns the cached rows for table in fetch order.
	// An unknown table yields an empty slice, not an error.
	GetCachedRecords(ctx context.Context, table string) ([]CachedRecord, error)

	// SetCachedRecords replaces every cached row for table in one
	// transaction. On failure the previous rows remain.
	SetCachedRecords(ctx context.Context, table string, records []Record) error

	// EnqueueMutation persists m and returns its new id.
	EnqueueMutation(ctx context.Context, m Mutation) (string, error)

	// ListPendingMutations returns all queued mutations in insertion order.
	ListPendingMutations(ctx context.Context) ([]PendingMutation, error)

	// PendingCount returns the number of queued mutations.
	PendingCount(ctx context.Context) (int, error)

	// RemoveMutation deletes a queued mutation. Unknown ids are a no-op.
	RemoveMutation(ctx context.Context, id string) error

	// IncrementRetry adds one to a mutation's retry count. Unknown ids are a
	// no-op.
	IncrementRetry(ctx context.Context, id string) error

	// RecordSyncTime stores t under key.
	RecordSyncTime(ctx context.Context, key string, t time.Time) error

	// GetSyncTime returns the time stored under key; ok is false when absent.
	GetSyncTime(ctx context.Context, key string) (t time.Time, ok bool, err error)

	// SaveBaseline stores a new baseline snapshot and returns its id. A
	// snapshot whose ID already exists is rejected with ErrBaselineExists.
	SaveBaseline(ctx context.Context, b BaselineSnapshot) (string, error)

	// GetBaseline returns the snapshot with id, or ErrNotFound.
	GetBaseline(ctx context.Context, id string) (BaselineSnapshot, error)

	// LatestBaseline returns the most recently captured snapshot, or
	// ErrNotFound when none exist.
	LatestBaseline(ctx context.Context) (BaselineSnapshot, error)

	// ListBaselines returns all snapshots, oldest first.
	ListBaselines(ctx context.Context) ([]BaselineSnapshot, error)

	// PurgeAll clears every store. Reserved for explicit user resets.
	PurgeAll(ctx context.Context) error
}

// SyncKeyLastSync is the metadata key written at the end of every drain.
const SyncKeyLastSync = "lastSync"

// PendingMutation is a queued, not yet applied write.
type PendingMutation struct {
	// ID is a UUID v7 assigned at enqueue time.
	ID string

	// Mutation is the write to replay.
	Mutation Mutation

	// EnqueuedAt is when the mutation was queued.
	EnqueuedAt time.Time

	// RetryCount counts failed replay attempts.
	RetryCount int
}

// Table returns the mutation's target table.
func (p PendingMutation) Table() string { return p.Mutation.Table() }

// Operation returns the mutation's operation tag.
func (p PendingMutation) Operation() Operation { return p.Mutation.Operation() }

// CachedRecord is the last fetched copy of one remote row.
type CachedRecord struct {
	Table    string    `json:"table"`
	ID       string    `json:"id"`
	Data     Record    `json:"data"`
	CachedAt time.Time `json:"cached_at"`
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Store operation errors.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidID       = errors.New("invalid entity ID")
	ErrInvalidTable    = errors.New("invalid table name")
	ErrInvalidMutation = errors.New("invalid mutation")
	ErrBaselineExists  = errors.New("baseline already exists")
)

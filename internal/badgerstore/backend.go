// Package badgerstore implements types.Store on an embedded Badger key-value
// database. Each write runs in a single Badger transaction, so a cache
// replacement either commits in full or leaves the previous rows untouched.
//
// A Badger transaction is bounded by a fraction of the memtable size, so a
// cached table larger than that cannot be replaced; SetCachedRecords returns
// an error wrapping ErrTableTooLarge and badger.ErrTxnTooBig in that case.
// MemTableSize is raised above Badger's default to leave room for large
// practice tables.
//
// Key layout:
//
//	cache/<table>\x00<position>  cached row
//	mut/<uuid v7>                 pending mutation (v7 ids sort in enqueue order)
//	meta/<key>                    sync timestamp
//	baseline/<id>                 baseline snapshot
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// DatabaseDir is the directory created inside the data directory.
const DatabaseDir = "caretrack.badger"

const (
	prefixCache    = "cache/"
	prefixMutation = "mut/"
	prefixMeta     = "meta/"
	prefixBaseline = "baseline/"
)

// MemTableSize is the Badger memtable size used by Attach.
const MemTableSize = 256 << 20

// ErrTableTooLarge is returned when a cache replacement exceeds one Badger
// transaction.
var ErrTableTooLarge = errors.New("cached table too large for one transaction")

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store using Badger.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *badger.DB

	now func() time.Time

	// tune adjusts the options passed to badger.Open.
	tune func(badger.Options) badger.Options
}

// NewBackend creates a new Badger backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{now: time.Now}
}

// Attach opens the Badger database under config.DataDir.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	opts := badger.DefaultOptions(dataDir + string(os.PathSeparator) + DatabaseDir).
		WithLogger(nil).
		WithMemTableSize(MemTableSize)
	if b.tune != nil {
		opts = b.tune(opts)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger: %w", err)
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// PurgeAll drops every key.
func (b *Backend) PurgeAll(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("purging badger: %w", err)
	}
	return nil
}

// view runs fn in a read-only transaction after checking attachment.
func (b *Backend) view(fn func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return b.db.View(fn)
}

// update runs fn in a read-write transaction after checking attachment.
func (b *Backend) update(fn func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return b.db.Update(fn)
}

// prefixKeys collects every key under prefix.
func prefixKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// eachValue calls fn with each value under prefix in key order.
func eachValue(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

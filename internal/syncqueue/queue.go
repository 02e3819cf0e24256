// Package syncqueue replays locally queued mutations against the remote
// backend. A Queue drains at most once at a time; each drain applies the
// pending mutations sequentially in enqueue order, removes the ones that
// succeed and retires the ones that keep failing after MaxRetries attempts.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// DefaultMaxRetries is the attempt ceiling used when Config.MaxRetries is 0.
const DefaultMaxRetries = 3

// Listener is called with the result of every completed drain.
type Listener func(types.SyncResult)

// Config holds optional Queue parameters.
type Config struct {
	// MaxRetries is the number of failed attempts after which a mutation
	// is removed from the queue.
	MaxRetries int

	// Logger receives drain progress; nil uses the logrus standard logger.
	Logger logrus.FieldLogger

	// Feedback receives outcome signals; nil disables them.
	Feedback Feedback

	// Now returns the current time; nil uses time.Now.
	Now func() time.Time
}

// Queue drains pending mutations from a Store into a Remote.
type Queue struct {
	store      types.Store
	remote     types.Remote
	maxRetries int
	log        logrus.FieldLogger
	feedback   Feedback
	now        func() time.Time

	draining atomic.Bool

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// New creates a Queue over store and remote.
func New(store types.Store, remote types.Remote, cfg Config) *Queue {
	q := &Queue{
		store:      store,
		remote:     remote,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Logger,
		feedback:   cfg.Feedback,
		now:        cfg.Now,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.log == nil {
		q.log = logrus.StandardLogger()
	}
	if q.feedback == nil {
		q.feedback = noFeedback{}
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// MaxRetries returns the retry ceiling in effect.
func (q *Queue) MaxRetries() int { return q.maxRetries }

// Draining reports whether a drain is in progress.
func (q *Queue) Draining() bool { return q.draining.Load() }

// Enqueue stores m for the next drain and returns its id.
func (q *Queue) Enqueue(ctx context.Context, m types.Mutation) (string, error) {
	id, err := q.store.EnqueueMutation(ctx, m)
	if err != nil {
		return "", err
	}
	q.log.WithFields(logrus.Fields{
		"mutation_id": id,
		"table":       m.Table(),
		"operation":   m.Operation(),
	}).Debug("mutation queued")
	return id, nil
}

// PendingCount returns the number of queued mutations.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx)
}

// LastSync returns the time the last drain finished, if any.
func (q *Queue) LastSync(ctx context.Context) (time.Time, bool, error) {
	return q.store.GetSyncTime(ctx, types.SyncKeyLastSync)
}

// Drain replays every pending mutation once. If another drain is running it
// returns immediately with an unsuccessful, empty result and leaves the
// store untouched. Remote failures are reported in the result; only store
// failures produce an error.
func (q *Queue) Drain(ctx context.Context) (types.SyncResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		q.log.Debug("drain skipped: already draining")
		return types.SyncResult{Errors: []types.SyncError{}}, nil
	}
	defer q.draining.Store(false)

	pending, err := q.store.ListPendingMutations(ctx)
	if err != nil {
		return types.SyncResult{}, fmt.Errorf("listing pending mutations: %w", err)
	}
	q.log.WithField("pending", len(pending)).Info("drain started")

	result := types.SyncResult{Errors: []types.SyncError{}}
	for _, p := range pending {
		entry, synced, err := q.replay(ctx, p)
		if err != nil {
			return types.SyncResult{}, err
		}
		if synced {
			result.SyncedCount++
			continue
		}
		result.FailedCount++
		result.Errors = append(result.Errors, entry)
	}
	result.Success = result.FailedCount == 0

	if err := q.store.RecordSyncTime(ctx, types.SyncKeyLastSync, q.now()); err != nil {
		return result, fmt.Errorf("recording sync time: %w", err)
	}

	q.log.WithFields(logrus.Fields{
		"synced": result.SyncedCount,
		"failed": result.FailedCount,
	}).Info("drain finished")

	if p := patternFor(result.SyncedCount, result.FailedCount); p != "" {
		q.feedback.Notify(p)
	}
	q.notify(result)
	return result, nil
}

// replay applies one pending mutation. It reports whether the mutation
// synced; when it did not, the returned entry describes the failure.
func (q *Queue) replay(ctx context.Context, p types.PendingMutation) (types.SyncError, bool, error) {
	log := q.log.WithFields(logrus.Fields{
		"mutation_id": p.ID,
		"table":       p.Table(),
		"operation":   p.Operation(),
		"retry_count": p.RetryCount,
	})

	if p.RetryCount >= q.maxRetries {
		if err := q.store.RemoveMutation(ctx, p.ID); err != nil {
			return types.SyncError{}, false, fmt.Errorf("removing exhausted mutation %s: %w", p.ID, err)
		}
		log.Warn("mutation discarded: " + types.MaxRetriesExceeded)
		return types.SyncError{
			ID:        p.ID,
			Table:     p.Table(),
			Error:     types.MaxRetriesExceeded,
			Discarded: true,
		}, false, nil
	}

	applyErr := p.Mutation.ApplyTo(ctx, q.remote)
	if applyErr == nil {
		if err := q.store.RemoveMutation(ctx, p.ID); err != nil {
			return types.SyncError{}, false, fmt.Errorf("removing synced mutation %s: %w", p.ID, err)
		}
		log.Debug("mutation synced")
		return types.SyncError{}, true, nil
	}

	if err := q.store.IncrementRetry(ctx, p.ID); err != nil {
		return types.SyncError{}, false, fmt.Errorf("incrementing retry for %s: %w", p.ID, err)
	}
	entry := types.SyncError{ID: p.ID, Table: p.Table(), Error: applyErr.Error()}

	if p.RetryCount+1 >= q.maxRetries {
		if err := q.store.RemoveMutation(ctx, p.ID); err != nil {
			return types.SyncError{}, false, fmt.Errorf("removing exhausted mutation %s: %w", p.ID, err)
		}
		entry.Error = types.MaxRetriesExceeded
		entry.Cause = applyErr.Error()
		entry.Discarded = true
		log.WithError(applyErr).Warn("mutation discarded: " + types.MaxRetriesExceeded)
		return entry, false, nil
	}

	log.WithError(applyErr).Warn("mutation failed")
	return entry, false, nil
}

// Subscribe registers fn to run after every completed drain, in
// registration order, on the draining goroutine. The returned function
// removes the registration; calling it more than once is harmless.
func (q *Queue) Subscribe(fn Listener) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	id := q.nextID
	q.listeners = append(q.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			for i, l := range q.listeners {
				if l.id == id {
					q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (q *Queue) notify(result types.SyncResult) {
	q.mu.Lock()
	listeners := make([]listenerEntry, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()

	for _, l := range listeners {
		l.fn(result)
	}
}

// RefreshCache fetches each table through reader and replaces its cached
// rows. A failing table does not stop the others; all failures are
// returned joined.
func (q *Queue) RefreshCache(ctx context.Context, reader types.RemoteReader, tables ...string) error {
	var errs []error
	for _, table := range tables {
		log := q.log.WithField("table", table)
		records, err := reader.Select(ctx, table)
		if err != nil {
			log.WithError(err).Warn("cache refresh failed")
			errs = append(errs, fmt.Errorf("fetching %s: %w", table, err))
			continue
		}
		if err := q.store.SetCachedRecords(ctx, table, records); err != nil {
			log.WithError(err).Warn("cache refresh failed")
			errs = append(errs, fmt.Errorf("caching %s: %w", table, err))
			continue
		}
		log.WithField("records", len(records)).Info("cache refreshed")
	}
	return errors.Join(errs...)
}

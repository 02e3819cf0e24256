package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/caretrack/internal/sqlite"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// fakeRemote records calls and fails or blocks on demand.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeRemote) do(op, table string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+" "+table)
	err := f.fail[table]
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeRemote) Insert(ctx context.Context, table string, record types.Record) error {
	return f.do("insert", table)
}

func (f *fakeRemote) Update(ctx context.Context, table string, key types.Key, fields types.Record) error {
	return f.do("update", table)
}

func (f *fakeRemote) Delete(ctx context.Context, table string, key types.Key) error {
	return f.do("delete", table)
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupStore(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func quietLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func enqueueTask(t *testing.T, s types.Store, title string) string {
	t.Helper()
	id, err := s.EnqueueMutation(context.Background(), types.Insert{
		TableName: "tasks",
		Record:    types.Record{"title": title},
	})
	require.NoError(t, err)
	return id
}

func TestDrain_AllSucceed(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	remote := &fakeRemote{}
	var patterns []Pattern
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	q := New(s, remote, Config{
		Logger:   quietLogger(),
		Feedback: FeedbackFunc(func(p Pattern) { patterns = append(patterns, p) }),
		Now:      func() time.Time { return fixed },
	})

	enqueueTask(t, s, "a")
	_, err := s.EnqueueMutation(ctx, types.Update{TableName: "policies", Key: types.IDKey("p-1"), Fields: types.Record{"status": "reviewed"}})
	require.NoError(t, err)
	_, err = s.EnqueueMutation(ctx, types.Delete{TableName: "complaints", Key: types.IDKey("c-1")})
	require.NoError(t, err)

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.SyncedCount)
	assert.Zero(t, result.FailedCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"insert tasks", "update policies", "delete complaints"}, remote.calls)

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	last, ok, err := q.LastSync(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fixed.Equal(last))
	assert.Equal(t, []Pattern{PatternSuccess}, patterns)
}

func TestDrain_RetriesThenDiscards(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	remote := &fakeRemote{fail: map[string]error{"tasks": errors.New("503 service unavailable")}}
	q := New(s, remote, Config{MaxRetries: 3, Logger: quietLogger()})
	id, err := q.Enqueue(ctx, types.Update{
		TableName: "tasks",
		Key:       types.IDKey("task-7"),
		Fields:    types.Record{"status": "completed"},
	})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		result, err := q.Drain(ctx)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.FailedCount)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, id, result.Errors[0].ID)
		assert.Equal(t, "503 service unavailable", result.Errors[0].Error)
		assert.False(t, result.Errors[0].Discarded)

		pending, err := s.ListPendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, attempt, pending[0].RetryCount)
	}

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.MaxRetriesExceeded, result.Errors[0].Error)
	assert.Equal(t, "503 service unavailable", result.Errors[0].Cause)
	assert.True(t, result.Errors[0].Discarded)
	assert.Len(t, result.DiscardedErrors(), 1)

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	result, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.SyncedCount)
	assert.Equal(t, []string{"update tasks", "update tasks", "update tasks"}, remote.calls)
}

func TestDrain_ExhaustedMutationIsNotSent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	remote := &fakeRemote{}
	q := New(s, remote, Config{MaxRetries: 3, Logger: quietLogger()})

	id := enqueueTask(t, s, "stale")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementRetry(ctx, id))
	}

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.MaxRetriesExceeded, result.Errors[0].Error)
	assert.True(t, result.Errors[0].Discarded)
	assert.Zero(t, remote.callCount())

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_ConcurrentDrainIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	remote := &fakeRemote{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	q := New(s, remote, Config{Logger: quietLogger()})
	enqueueTask(t, s, "slow")

	var calls int
	q.Subscribe(func(types.SyncResult) { calls++ })

	done := make(chan types.SyncResult)
	go func() {
		result, err := q.Drain(ctx)
		assert.NoError(t, err)
		done <- result
	}()
	<-remote.entered
	assert.True(t, q.Draining())

	skipped, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, skipped.Success)
	assert.Zero(t, skipped.SyncedCount)
	assert.Zero(t, skipped.FailedCount)
	assert.Empty(t, skipped.Errors)
	assert.True(t, skipped.Skipped())

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "skipped drain must not touch the queue")

	close(remote.block)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.SyncedCount)
	assert.False(t, first.Skipped())
	assert.False(t, q.Draining())
	assert.Equal(t, 1, calls, "listeners run only for completed drains")
}

func TestDrain_MixedResults(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	remote := &fakeRemote{fail: map[string]error{"incidents": errors.New("409 conflict")}}
	var patterns []Pattern
	q := New(s, remote, Config{
		Logger:   quietLogger(),
		Feedback: FeedbackFunc(func(p Pattern) { patterns = append(patterns, p) }),
	})

	enqueueTask(t, s, "ok")
	_, err := s.EnqueueMutation(ctx, types.Insert{TableName: "incidents", Record: types.Record{"severity": "minor"}})
	require.NoError(t, err)

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "incidents", result.Errors[0].Table)
	assert.Equal(t, []Pattern{PatternSuccess}, patterns)
}

func TestDrain_FeedbackPatterns(t *testing.T) {
	tests := []struct {
		name   string
		queue  []string
		fail   bool
		expect []Pattern
	}{
		{name: "empty queue emits nothing", expect: nil},
		{name: "all failed", queue: []string{"a", "b"}, fail: true, expect: []Pattern{PatternFailure}},
		{name: "synced", queue: []string{"a"}, expect: []Pattern{PatternSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStore(t)
			remote := &fakeRemote{}
			if tt.fail {
				remote.fail = map[string]error{"tasks": errors.New("offline")}
			}
			var got []Pattern
			q := New(s, remote, Config{
				Logger:   quietLogger(),
				Feedback: FeedbackFunc(func(p Pattern) { got = append(got, p) }),
			})
			for _, title := range tt.queue {
				enqueueTask(t, s, title)
			}

			_, err := q.Drain(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s := setupStore(t)
	q := New(s, &fakeRemote{}, Config{Logger: quietLogger()})

	var order []string
	q.Subscribe(func(types.SyncResult) { order = append(order, "first") })
	unsubscribe := q.Subscribe(func(types.SyncResult) { order = append(order, "second") })
	q.Subscribe(func(types.SyncResult) { order = append(order, "third") })

	_, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)

	unsubscribe()
	unsubscribe()
	order = nil
	_, err = q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, order)
}

// failingStore fails ListPendingMutations once.
type failingStore struct {
	types.Store
	failures int
}

func (f *failingStore) ListPendingMutations(ctx context.Context) ([]types.PendingMutation, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("disk I/O error")
	}
	return f.Store.ListPendingMutations(ctx)
}

func TestDrain_StoreErrorReleasesGuard(t *testing.T) {
	ctx := context.Background()
	s := &failingStore{Store: setupStore(t), failures: 1}
	q := New(s, &fakeRemote{}, Config{Logger: quietLogger()})

	_, err := q.Drain(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, q.Draining())

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDrain_LogsFailures(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := setupStore(t)
	q := New(s, &fakeRemote{fail: map[string]error{"tasks": errors.New("timeout")}}, Config{Logger: logger})
	id := enqueueTask(t, s, "x")

	_, err := q.Drain(context.Background())
	require.NoError(t, err)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "mutation failed" {
			found = true
			assert.Equal(t, id, e.Data["mutation_id"])
			assert.Equal(t, "tasks", e.Data["table"])
			assert.Equal(t, 0, e.Data["retry_count"])
		}
	}
	assert.True(t, found, "expected a warning for the failed mutation")
}

func TestNew_Defaults(t *testing.T) {
	q := New(setupStore(t), &fakeRemote{}, Config{})
	assert.Equal(t, DefaultMaxRetries, q.MaxRetries())
}

// fakeReader serves canned tables.
type fakeReader struct {
	tables map[string][]types.Record
	fail   map[string]error
}

func (f *fakeReader) Select(ctx context.Context, table string) ([]types.Record, error) {
	if err := f.fail[table]; err != nil {
		return nil, err
	}
	return f.tables[table], nil
}

func TestRefreshCache(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	q := New(s, &fakeRemote{}, Config{Logger: quietLogger()})
	require.NoError(t, s.SetCachedRecords(ctx, "incidents", []types.Record{{"id": "old"}}))

	reader := &fakeReader{
		tables: map[string][]types.Record{
			"tasks": {{"id": "t-1"}, {"id": "t-2"}},
		},
		fail: map[string]error{"incidents": errors.New("permission denied")},
	}

	err := q.RefreshCache(ctx, reader, "tasks", "incidents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching incidents")

	tasks, err := s.GetCachedRecords(ctx, "tasks")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	incidents, err := s.GetCachedRecords(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "old", incidents[0].ID, "failed refresh keeps the previous cache")

	require.NoError(t, q.RefreshCache(ctx, reader, "tasks"))
}

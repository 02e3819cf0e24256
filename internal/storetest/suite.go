// Package storetest holds the behavioral test suite every types.Store
// backend must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Factory returns a freshly attached store. The factory registers its own
// cleanup with t.
type Factory func(t *testing.T) types.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("cache", func(t *testing.T) { testCache(t, newStore) })
	t.Run("cache atomic replace", func(t *testing.T) { testCacheAtomicity(t, newStore) })
	t.Run("mutations", func(t *testing.T) { testMutations(t, newStore) })
	t.Run("sync metadata", func(t *testing.T) { testSyncMetadata(t, newStore) })
	t.Run("baselines", func(t *testing.T) { testBaselines(t, newStore) })
	t.Run("purge", func(t *testing.T) { testPurge(t, newStore) })
}

func testCache(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("unknown table returns empty slice", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetCachedRecords(ctx, "tasks")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("set then get preserves order and ids", func(t *testing.T) {
		s := newStore(t)
		records := []types.Record{
			{"id": "t-2", "title": "Check defibrillator"},
			{"id": "t-1", "title": "Order vaccines"},
			{"title": "No id"},
		}
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", records))

		got, err := s.GetCachedRecords(ctx, "tasks")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "t-2", got[0].ID)
		assert.Equal(t, "t-1", got[1].ID)
		assert.Equal(t, "", got[2].ID)
		assert.Equal(t, "Order vaccines", got[1].Data["title"])
		assert.Equal(t, "tasks", got[0].Table)
		assert.False(t, got[0].CachedAt.IsZero())
	})

	t.Run("set replaces the whole table", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", []types.Record{{"id": "a"}, {"id": "b"}, {"id": "c"}}))
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", []types.Record{{"id": "z"}}))

		got, err := s.GetCachedRecords(ctx, "tasks")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "z", got[0].ID)
	})

	t.Run("tables are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", []types.Record{{"id": "a"}}))
		require.NoError(t, s.SetCachedRecords(ctx, "incidents", []types.Record{{"id": "i"}}))
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", nil))

		tasks, err := s.GetCachedRecords(ctx, "tasks")
		require.NoError(t, err)
		assert.Empty(t, tasks)
		incidents, err := s.GetCachedRecords(ctx, "incidents")
		require.NoError(t, err)
		assert.Len(t, incidents, 1)
	})

	t.Run("failed replace keeps previous rows", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetCachedRecords(ctx, "tasks", []types.Record{{"id": "a"}, {"id": "b"}}))

		err := s.SetCachedRecords(ctx, "tasks", []types.Record{
			{"id": "c"},
			{"id": "d", "unencodable": make(chan int)},
		})
		require.Error(t, err)

		got, err := s.GetCachedRecords(ctx, "tasks")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
	})

	t.Run("empty table name is rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetCachedRecords(ctx, "")
		assert.ErrorIs(t, err, types.ErrInvalidTable)
		assert.ErrorIs(t, s.SetCachedRecords(ctx, "", nil), types.ErrInvalidTable)
	})
}

// testCacheAtomicity alternates two table contents while readers check that
// every read is entirely one version or the other.
func testCacheAtomicity(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	versionA := make([]types.Record, 3)
	for i := range versionA {
		versionA[i] = types.Record{"id": fmt.Sprintf("a-%d", i), "version": "a"}
	}
	versionB := make([]types.Record, 7)
	for i := range versionB {
		versionB[i] = types.Record{"id": fmt.Sprintf("b-%d", i), "version": "b"}
	}
	require.NoError(t, s.SetCachedRecords(ctx, "fridge_logs", versionA))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var torn []string

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := s.GetCachedRecords(ctx, "fridge_logs")
				if err != nil {
					mu.Lock()
					torn = append(torn, "read error: "+err.Error())
					mu.Unlock()
					return
				}
				if msg := checkHomogeneous(got, len(versionA), len(versionB)); msg != "" {
					mu.Lock()
					torn = append(torn, msg)
					mu.Unlock()
				}
			}
		}()
	}

	for i := 0; i < 30; i++ {
		next := versionB
		if i%2 == 1 {
			next = versionA
		}
		require.NoError(t, s.SetCachedRecords(ctx, "fridge_logs", next))
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, torn, "readers observed partial cache replacements")
}

func checkHomogeneous(records []types.CachedRecord, lenA, lenB int) string {
	if len(records) != lenA && len(records) != lenB {
		return fmt.Sprintf("unexpected record count %d", len(records))
	}
	want := "a"
	if len(records) == lenB {
		want = "b"
	}
	for _, r := range records {
		if r.Data["version"] != want {
			return fmt.Sprintf("mixed versions in a read of %d records", len(records))
		}
	}
	return ""
}

func testMutations(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("enqueue assigns unique ids in insertion order", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 5; i++ {
			id, err := s.EnqueueMutation(ctx, types.Insert{
				TableName: "tasks",
				Record:    types.Record{"title": fmt.Sprintf("task %d", i)},
			})
			require.NoError(t, err)
			require.NotEmpty(t, id)
			ids = append(ids, id)
		}

		pending, err := s.ListPendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 5)
		seen := map[string]bool{}
		for i, p := range pending {
			assert.Equal(t, ids[i], p.ID)
			assert.Equal(t, 0, p.RetryCount)
			assert.Equal(t, types.OpInsert, p.Operation())
			assert.Equal(t, "tasks", p.Table())
			assert.False(t, p.EnqueuedAt.IsZero())
			seen[p.ID] = true
		}
		assert.Len(t, seen, 5)

		n, err := s.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("variants round-trip through storage", func(t *testing.T) {
		s := newStore(t)
		_, err := s.EnqueueMutation(ctx, types.Update{
			TableName: "complaints",
			Key:       types.IDKey("c-1"),
			Fields:    types.Record{"sla_status": "met"},
		})
		require.NoError(t, err)
		_, err = s.EnqueueMutation(ctx, types.Delete{TableName: "incidents", Key: types.IDKey("i-3")})
		require.NoError(t, err)

		pending, err := s.ListPendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)

		u, ok := pending[0].Mutation.(types.Update)
		require.True(t, ok, "expected Update, got %T", pending[0].Mutation)
		assert.Equal(t, "c-1", u.Key.Value)
		assert.Equal(t, "met", u.Fields["sla_status"])

		d, ok := pending[1].Mutation.(types.Delete)
		require.True(t, ok, "expected Delete, got %T", pending[1].Mutation)
		assert.Equal(t, "i-3", d.Key.Value)
	})

	t.Run("invalid mutations are rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.EnqueueMutation(ctx, types.Delete{TableName: "tasks"})
		assert.ErrorIs(t, err, types.ErrInvalidMutation)
		_, err = s.EnqueueMutation(ctx, types.Insert{Record: types.Record{"a": 1}})
		assert.ErrorIs(t, err, types.ErrInvalidTable)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newStore(t)
		keep, err := s.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"n": 1}})
		require.NoError(t, err)
		drop, err := s.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"n": 2}})
		require.NoError(t, err)

		require.NoError(t, s.RemoveMutation(ctx, drop))
		require.NoError(t, s.RemoveMutation(ctx, drop))
		require.NoError(t, s.RemoveMutation(ctx, "never-existed"))

		pending, err := s.ListPendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, keep, pending[0].ID)
	})

	t.Run("increment retry", func(t *testing.T) {
		s := newStore(t)
		id, err := s.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"n": 1}})
		require.NoError(t, err)
		other, err := s.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"n": 2}})
		require.NoError(t, err)

		require.NoError(t, s.IncrementRetry(ctx, id))
		require.NoError(t, s.IncrementRetry(ctx, id))
		require.NoError(t, s.IncrementRetry(ctx, "never-existed"))

		pending, err := s.ListPendingMutations(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		retries := map[string]int{}
		for _, p := range pending {
			retries[p.ID] = p.RetryCount
		}
		assert.Equal(t, 2, retries[id])
		assert.Equal(t, 0, retries[other])
	})
}

func testSyncMetadata(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	_, ok, err := s.GetSyncTime(ctx, types.SyncKeyLastSync)
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	require.NoError(t, s.RecordSyncTime(ctx, types.SyncKeyLastSync, first))
	second := first.Add(time.Hour)
	require.NoError(t, s.RecordSyncTime(ctx, types.SyncKeyLastSync, second))

	got, ok, err := s.GetSyncTime(ctx, types.SyncKeyLastSync)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Equal(got), "expected %v, got %v", second, got)
}

func testBaselines(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("save, get, latest and list", func(t *testing.T) {
		s := newStore(t)
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		older := types.BaselineSnapshot{
			Label:            "CQC prep",
			CapturedAt:       start.Add(24 * time.Hour),
			StartDate:        start.AddDate(0, -3, 0),
			EndDate:          start,
			ComplianceScore:  70,
			FitForAuditScore: 60,
			DriverDetails: []types.DriverScore{
				{CheckType: types.CheckTaskCompletion, Score: 80, Total: 10, Passed: 8, Weight: 0.25, WeightedImpact: 20},
			},
		}
		newer := older
		newer.Label = "after audit"
		newer.CapturedAt = start.Add(48 * time.Hour)
		newer.ComplianceScore = 75

		olderID, err := s.SaveBaseline(ctx, older)
		require.NoError(t, err)
		newerID, err := s.SaveBaseline(ctx, newer)
		require.NoError(t, err)
		assert.NotEqual(t, olderID, newerID)

		got, err := s.GetBaseline(ctx, olderID)
		require.NoError(t, err)
		assert.Equal(t, "CQC prep", got.Label)
		assert.Equal(t, 70.0, got.ComplianceScore)
		assert.True(t, older.StartDate.Equal(got.StartDate))
		require.Len(t, got.DriverDetails, 1)
		assert.Equal(t, types.CheckTaskCompletion, got.DriverDetails[0].CheckType)
		assert.Equal(t, 20.0, got.DriverDetails[0].WeightedImpact)

		latest, err := s.LatestBaseline(ctx)
		require.NoError(t, err)
		assert.Equal(t, newerID, latest.ID)

		all, err := s.ListBaselines(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, olderID, all[0].ID)
		assert.Equal(t, newerID, all[1].ID)
	})

	t.Run("snapshots are write-once", func(t *testing.T) {
		s := newStore(t)
		id, err := s.SaveBaseline(ctx, types.BaselineSnapshot{ComplianceScore: 50})
		require.NoError(t, err)

		_, err = s.SaveBaseline(ctx, types.BaselineSnapshot{ID: id, ComplianceScore: 99})
		assert.ErrorIs(t, err, types.ErrBaselineExists)

		got, err := s.GetBaseline(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.ComplianceScore)
	})

	t.Run("missing baselines", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LatestBaseline(ctx)
		assert.ErrorIs(t, err, types.ErrNotFound)
		_, err = s.GetBaseline(ctx, "nope")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func testPurge(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SetCachedRecords(ctx, "tasks", []types.Record{{"id": "a"}}))
	_, err := s.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"n": 1}})
	require.NoError(t, err)
	require.NoError(t, s.RecordSyncTime(ctx, types.SyncKeyLastSync, time.Now()))
	_, err = s.SaveBaseline(ctx, types.BaselineSnapshot{ComplianceScore: 10})
	require.NoError(t, err)

	require.NoError(t, s.PurgeAll(ctx))

	cached, err := s.GetCachedRecords(ctx, "tasks")
	require.NoError(t, err)
	assert.Empty(t, cached)
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := s.GetSyncTime(ctx, types.SyncKeyLastSync)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.LatestBaseline(ctx)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/caretrack/internal/storetest"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestBackendConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) types.Store { return setupBackend(t) })
}

func TestBackend_Attach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(config))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, DatabaseFile))
	assert.NoError(t, err, "database file not created")

	assert.ErrorIs(t, b.Attach(config), types.ErrAlreadyAttached)
}

func TestBackend_AttachRejectsInvalidConfig(t *testing.T) {
	b := NewBackend()
	err := b.Attach(types.Config{DataDir: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
}

func TestBackend_Detach(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "second Detach should not error")

	_, err := b.GetCachedRecords(ctx, "tasks")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = b.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"a": 1}})
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = b.PendingCount(ctx)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, b.PurgeAll(ctx), types.ErrStoreDetached)
}

func TestBackend_DataSurvivesReattach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	first := NewBackend()
	require.NoError(t, first.Attach(config))
	id, err := first.EnqueueMutation(ctx, types.Delete{TableName: "tasks", Key: types.IDKey("t-9")})
	require.NoError(t, err)
	require.NoError(t, first.SetCachedRecords(ctx, "policies", []types.Record{{"id": "p-1"}}))
	require.NoError(t, first.Detach())

	second := NewBackend()
	require.NoError(t, second.Attach(config))
	defer second.Detach()

	pending, err := second.ListPendingMutations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	cached, err := second.GetCachedRecords(ctx, "policies")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "p-1", cached[0].ID)
}

func TestTimeFormatSortsLexicographically(t *testing.T) {
	b := setupBackend(t)
	early := formatTime(b.now())
	late := formatTime(b.now().Add(1500))
	assert.Less(t, early, late)

	parsed, err := parseTime(early)
	require.NoError(t, err)
	assert.Equal(t, early, formatTime(parsed))
}

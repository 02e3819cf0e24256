package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/caretrack/internal/netmon"
	"github.com/mesh-intelligence/caretrack/internal/sqlite"
	"github.com/mesh-intelligence/caretrack/internal/syncqueue"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

type okRemote struct{}

func (okRemote) Insert(context.Context, string, types.Record) error {
	return nil
}

func (okRemote) Update(context.Context, string, types.Key, types.Record) error {
	return nil
}

func (okRemote) Delete(context.Context, string, types.Key) error {
	return nil
}

func setupServer(t *testing.T) (*Server, *syncqueue.Queue, *netmon.Monitor, types.Store) {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })

	logger, _ := logtest.NewNullLogger()
	q := syncqueue.New(b, okRemote{}, syncqueue.Config{Logger: logger})
	m := netmon.NewMonitor(true)
	return New(q, m, Config{Logger: logger}), q, m, b
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandlers(t *testing.T) {
	ctx := context.Background()
	s, _, _, store := setupServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, err = store.EnqueueMutation(ctx, types.Insert{TableName: "tasks", Record: types.Record{"title": "a"}})
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	snap := decode[Snapshot](t, resp)
	assert.True(t, snap.Online)
	assert.Equal(t, 1, snap.PendingCount)
	assert.Nil(t, snap.LastSync)

	resp, err = http.Post(srv.URL+"/drain", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[types.SyncResult](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SyncedCount)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	snap = decode[Snapshot](t, resp)
	assert.Zero(t, snap.PendingCount)
	assert.NotNil(t, snap.LastSync)
}

// busyQueue always reports a skipped drain.
type busyQueue struct{ Queue }

func (busyQueue) Drain(context.Context) (types.SyncResult, error) {
	return types.SyncResult{}, nil
}

func TestDrainConflictWhenBusy(t *testing.T) {
	_, q, m, _ := setupServer(t)
	s := New(busyQueue{Queue: q}, m, Config{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/drain", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func readMessage(t *testing.T, ctx context.Context, c *websocket.Conn) Message {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketStreams(t *testing.T) {
	s, q, m, _ := setupServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Serve(ctx, ln) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	c, _, err := websocket.Dial(dialCtx, "ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	welcome := readMessage(t, dialCtx, c)
	assert.Equal(t, MessageStatus, welcome.Type)

	_, err = q.Drain(context.Background())
	require.NoError(t, err)
	msg := readMessage(t, dialCtx, c)
	assert.Equal(t, MessageSyncComplete, msg.Type)
	var result types.SyncResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	assert.True(t, result.Success)

	m.SetOnline(false)
	msg = readMessage(t, dialCtx, c)
	assert.Equal(t, MessageConnectivity, msg.Type)
	var tr netmon.Transition
	require.NoError(t, json.Unmarshal(msg.Data, &tr))
	assert.False(t, tr.Online)

	cancel()
	require.NoError(t, <-done)
}

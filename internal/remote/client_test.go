package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// request is what the fake backend saw.
type request struct {
	Method string
	Table  string
	Query  string
	Body   map[string]any
	APIKey string
	Auth   string
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []request
	rows     map[string][]map[string]any
	status   int
}

func (f *fakeBackend) record(r *http.Request) {
	req := request{
		Method: r.Method,
		Table:  chi.URLParam(r, "table"),
		Query:  r.URL.RawQuery,
		APIKey: r.Header.Get("apikey"),
		Auth:   r.Header.Get("Authorization"),
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	write := func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.status != 0 {
			w.WriteHeader(f.status)
			json.NewEncoder(w).Encode(map[string]string{"message": "row violates policy"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	r.Post("/rest/v1/{table}", write)
	r.Patch("/rest/v1/{table}", write)
	r.Delete("/rest/v1/{table}", write)
	r.Get("/rest/v1/{table}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode(f.rows[chi.URLParam(r, "table")])
	})
	return r
}

func newTestClient(t *testing.T, f *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	logger, _ := logtest.NewNullLogger()
	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "anon-key", Logger: logger})
	require.NoError(t, err)
	return c
}

func TestClient_Writes(t *testing.T) {
	ctx := context.Background()
	f := &fakeBackend{}
	c := newTestClient(t, f)

	require.NoError(t, c.Insert(ctx, "tasks", types.Record{"title": "Restock"}))
	require.NoError(t, c.Update(ctx, "tasks", types.IDKey("t-1"), types.Record{"status": "completed"}))
	require.NoError(t, c.Delete(ctx, "tasks", types.Key{Column: "uuid", Value: "u-9"}))

	require.Len(t, f.requests, 3)

	assert.Equal(t, http.MethodPost, f.requests[0].Method)
	assert.Equal(t, "tasks", f.requests[0].Table)
	assert.Equal(t, "Restock", f.requests[0].Body["title"])
	assert.Equal(t, "anon-key", f.requests[0].APIKey)
	assert.Equal(t, "Bearer anon-key", f.requests[0].Auth)

	assert.Equal(t, http.MethodPatch, f.requests[1].Method)
	assert.Equal(t, "id=eq.t-1", f.requests[1].Query)
	assert.Equal(t, "completed", f.requests[1].Body["status"])

	assert.Equal(t, http.MethodDelete, f.requests[2].Method)
	assert.Equal(t, "uuid=eq.u-9", f.requests[2].Query)
}

func TestClient_Select(t *testing.T) {
	f := &fakeBackend{rows: map[string][]map[string]any{
		"incidents": {{"id": "i-1", "severity": "major"}, {"id": "i-2", "severity": "minor"}},
	}}
	c := newTestClient(t, f)

	rows, err := c.Select(context.Background(), "incidents")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "i-1", rows[0].ID())
	assert.Equal(t, "major", rows[0]["severity"])
	assert.Equal(t, "select=%2A", f.requests[0].Query)
}

func TestClient_StatusError(t *testing.T) {
	f := &fakeBackend{status: http.StatusForbidden}
	c := newTestClient(t, f)

	err := c.Insert(context.Background(), "tasks", types.Record{"title": "x"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "row violates policy", se.Message)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	err = c.Delete(context.Background(), "tasks", types.IDKey("t-1"))
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

func TestFunctions_Invoke(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantFn  bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"score": 81.5}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: ErrRateLimited},
		{name: "quota", status: http.StatusPaymentRequired, body: `{"error":"credits"}`, wantErr: ErrQuotaExhausted},
		{name: "function error", status: http.StatusInternalServerError, body: `{"error":"no practice"}`, wantFn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FunctionRequest
			r := chi.NewRouter()
			r.Post("/functions/v1/{name}", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "calculate-delta", chi.URLParam(r, "name"))
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			srv := httptest.NewServer(r)
			defer srv.Close()

			c, err := New(Config{BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			raw, err := c.Functions().Invoke(context.Background(), "calculate-delta", FunctionRequest{
				StartDate:  "2026-01-01",
				EndDate:    "2026-03-31",
				PracticeID: "practice-7",
			})
			assert.Equal(t, "practice-7", got.PracticeID)
			assert.Equal(t, "2026-01-01", got.StartDate)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantFn:
				var fe *FunctionError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, "no practice", fe.Message)
				assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
			default:
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(raw))
			}
		})
	}
}

package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProber(t *testing.T, m *Monitor, url string) *Prober {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return NewProber(m, ProberConfig{URL: url, Interval: 10 * time.Millisecond, Logger: logger})
}

func TestProber_Check(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "unauthorized still reachable", status: http.StatusUnauthorized, want: true},
		{name: "not found still reachable", status: http.StatusNotFound, want: true},
		{name: "server error", status: http.StatusInternalServerError, want: false},
		{name: "bad gateway", status: http.StatusBadGateway, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := newProber(t, NewMonitor(false), srv.URL)
			assert.Equal(t, tt.want, p.Check(context.Background()))
		})
	}
}

func TestProber_UnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewMonitor(true)
	p := newProber(t, m, url)
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsOnline())
}

func TestProber_RunFeedsMonitor(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(true)
	p := newProber(t, m, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 5*time.Millisecond)
	healthy.Store(true)
	require.Eventually(t, m.IsOnline, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.WasOffline())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestProber_SetInterval(t *testing.T) {
	p := newProber(t, NewMonitor(true), "http://127.0.0.1:0")
	assert.Equal(t, 10*time.Millisecond, p.Interval())

	p.SetInterval(time.Minute)
	assert.Equal(t, time.Minute, p.Interval())

	p.SetInterval(0)
	assert.Equal(t, time.Minute, p.Interval(), "non-positive intervals are ignored")
}

func TestNewProber_Defaults(t *testing.T) {
	p := NewProber(NewMonitor(true), ProberConfig{URL: "http://example.invalid"})
	assert.Equal(t, DefaultProbeInterval, p.Interval())
}

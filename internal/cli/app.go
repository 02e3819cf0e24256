package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/caretrack/internal/delta"
	"github.com/mesh-intelligence/caretrack/internal/remote"
	"github.com/mesh-intelligence/caretrack/internal/scoring"
	"github.com/mesh-intelligence/caretrack/internal/syncqueue"
	"github.com/mesh-intelligence/caretrack/pkg/store"
	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// errRemoteNotConfigured is returned by commands that need the hosted
// backend when remote.url is empty.
var errRemoteNotConfigured = errors.New("remote.url is not configured")

// app wires storage, the remote client and the engines for one command
// invocation.
type app struct {
	env *env

	store  types.Store
	remote *remote.Client
	queue  *syncqueue.Queue
	scorer *scoring.Engine
	delta  *delta.Engine
}

// openApp attaches the store and builds every component from settings.
func (e *env) openApp() (*app, error) {
	s := e.settings
	weights, err := scoring.WeightsFromConfig(s.Scoring.Weights)
	if err != nil {
		return nil, userError(fmt.Errorf("scoring.weights: %w", err))
	}

	st, err := store.Open(s.StoreConfig(e.dataDir))
	if err != nil {
		return nil, sysError(fmt.Errorf("open store: %w", err))
	}

	a := &app{env: e, store: st}
	if s.Remote.URL != "" {
		a.remote, err = remote.New(remote.Config{
			BaseURL: s.Remote.URL,
			APIKey:  s.Remote.APIKey,
			Timeout: s.Remote.Timeout,
			Logger:  e.log.WithField("component", "remote"),
		})
		if err != nil {
			st.Detach()
			return nil, userError(err)
		}
	}

	a.queue = syncqueue.New(st, a.writer(), syncqueue.Config{
		MaxRetries: s.Sync.MaxRetries,
		Logger:     e.log.WithField("component", "syncqueue"),
		Feedback:   newTerminalFeedback(e.errOut),
	})
	a.scorer, err = scoring.NewEngine(st, scoring.Config{
		Weights: weights,
		Logger:  e.log.WithField("component", "scoring"),
	})
	if err != nil {
		st.Detach()
		return nil, userError(err)
	}
	a.delta = delta.NewEngine(a.scorer, st, e.log.WithField("component", "delta"))
	return a, nil
}

// writer returns the remote used for replay. Without a configured remote it
// returns a stub that fails every write; drain and serve check requireRemote
// first so the stub never ages out queued writes.
func (a *app) writer() types.Remote {
	if a.remote == nil {
		return unconfiguredRemote{}
	}
	return a.remote
}

// requireRemote fails when no remote is configured.
func (a *app) requireRemote() (*remote.Client, error) {
	if a.remote == nil {
		return nil, userError(errRemoteNotConfigured)
	}
	return a.remote, nil
}

// Close detaches the store.
func (a *app) Close() error {
	return a.store.Detach()
}

// withApp opens the app, runs fn and closes the app.
func (e *env) withApp(fn func(a *app) error) error {
	a, err := e.openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

type unconfiguredRemote struct{}

func (unconfiguredRemote) Insert(context.Context, string, types.Record) error {
	return errRemoteNotConfigured
}

func (unconfiguredRemote) Update(context.Context, string, types.Key, types.Record) error {
	return errRemoteNotConfigured
}

func (unconfiguredRemote) Delete(context.Context, string, types.Key) error {
	return errRemoteNotConfigured
}

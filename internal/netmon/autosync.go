package netmon

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// Drainer replays queued mutations.
type Drainer interface {
	Drain(ctx context.Context) (types.SyncResult, error)
}

// AutoSync drains a queue each time a Monitor goes from offline to online.
type AutoSync struct {
	monitor     *Monitor
	d           Drainer
	log         logrus.FieldLogger
	transitions <-chan Transition
	cancel      func()
}

// NewAutoSync subscribes to monitor immediately, so transitions made after
// it returns are never missed even if Run starts later.
func NewAutoSync(monitor *Monitor, d Drainer, log logrus.FieldLogger) *AutoSync {
	if log == nil {
		log = logrus.StandardLogger()
	}
	transitions, cancel := monitor.Subscribe()
	return &AutoSync{monitor: monitor, d: d, log: log, transitions: transitions, cancel: cancel}
}

// Run blocks until ctx is done, then drops the subscription.
func (a *AutoSync) Run(ctx context.Context) error {
	defer a.cancel()

	// A reconnect that landed before subscribing still left wasOffline set.
	if a.monitor.IsOnline() && a.monitor.WasOffline() {
		a.drain(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-a.transitions:
			if !ok {
				return nil
			}
			if t.Online && a.monitor.WasOffline() {
				a.drain(ctx)
			}
		}
	}
}

func (a *AutoSync) drain(ctx context.Context) {
	result, err := a.d.Drain(ctx)
	if err != nil {
		a.log.WithError(err).Error("reconnect drain failed")
		return
	}
	a.log.WithFields(logrus.Fields{
		"synced":  result.SyncedCount,
		"failed":  result.FailedCount,
		"skipped": result.Skipped(),
	}).Info("reconnect drain finished")
}

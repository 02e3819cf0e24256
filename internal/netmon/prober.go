package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultProbeInterval is used when ProberConfig.Interval is zero.
const DefaultProbeInterval = 30 * time.Second

// ProberConfig configures a Prober.
type ProberConfig struct {
	// URL is requested with GET on every probe.
	URL string

	// Interval between probes.
	Interval time.Duration

	// Client performs the requests; nil uses a client with a 5s timeout.
	Client *http.Client

	Logger logrus.FieldLogger
}

// Prober polls a health URL and feeds the result into a Monitor. Any HTTP
// response below 500 counts as online; transport errors and 5xx count as
// offline.
type Prober struct {
	monitor *Monitor
	url     string
	client  *http.Client
	log     logrus.FieldLogger

	mu       sync.Mutex
	interval time.Duration
	reset    chan struct{}
}

// NewProber creates a Prober for monitor.
func NewProber(monitor *Monitor, cfg ProberConfig) *Prober {
	p := &Prober{
		monitor:  monitor,
		url:      cfg.URL,
		client:   cfg.Client,
		log:      cfg.Logger,
		interval: cfg.Interval,
		reset:    make(chan struct{}, 1),
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 5 * time.Second}
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	if p.interval <= 0 {
		p.interval = DefaultProbeInterval
	}
	return p
}

// Interval returns the current probe interval.
func (p *Prober) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the probe interval. A running Run loop picks it up
// immediately.
func (p *Prober) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()

	select {
	case p.reset <- struct{}{}:
	default:
	}
}

// Check performs one probe and returns whether the remote answered.
func (p *Prober) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.WithError(err).Warn("building probe request")
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithError(err).Debug("probe failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Probe runs Check and records the result on the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	online := p.Check(ctx)
	if online != p.monitor.IsOnline() {
		p.log.WithField("online", online).Info("connectivity changed")
	}
	p.monitor.SetOnline(online)
	return online
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	p.Probe(ctx)

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.reset:
			ticker.Reset(p.Interval())
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

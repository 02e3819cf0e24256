package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/caretrack/internal/netmon"
	"github.com/mesh-intelligence/caretrack/internal/paths"
	"github.com/mesh-intelligence/caretrack/internal/status"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch connectivity, sync on reconnect and serve live status",
		Long: `Runs until interrupted. The connectivity prober polls netmon.probe_url (or
the remote REST root) and every offline to online transition drains the
queue. Status is served over HTTP at /status and streamed over a websocket
at /ws. Changes to config.yaml update log settings and the probe interval
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr == "" {
				addr = e.settings.Serve.Addr
			}
			return e.withApp(func(a *app) error {
				err := a.serve(ctx, addr)
				if err != nil && !errors.Is(err, context.Canceled) {
					return sysError(err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: serve.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	log := a.env.log
	s := a.env.settings

	probeURL := s.ProbeURL()
	monitor := netmon.NewMonitor(probeURL == "")
	srv := status.New(a.queue, monitor, status.Config{
		Addr:   addr,
		Logger: log.WithField("component", "status"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	syncing := a.remote != nil
	if syncing {
		// Subscribe before the prober can report its first transition.
		auto := netmon.NewAutoSync(monitor, a.queue, log.WithField("component", "autosync"))
		g.Go(func() error { return auto.Run(ctx) })
	} else {
		log.Warn("remote.url is not configured; queued writes will not be replayed")
	}

	var prober *netmon.Prober
	if probeURL != "" {
		prober = netmon.NewProber(monitor, netmon.ProberConfig{
			URL:      probeURL,
			Interval: s.Netmon.ProbeInterval,
			Logger:   log.WithField("component", "netmon"),
		})
		g.Go(func() error { return prober.Run(ctx) })
	} else if syncing {
		log.Warn("no probe url configured; assuming online")
		g.Go(func() error {
			result, err := a.queue.Drain(ctx)
			if err != nil {
				log.WithError(err).Error("startup drain failed")
				return nil
			}
			log.WithFields(logrus.Fields{
				"synced": result.SyncedCount,
				"failed": result.FailedCount,
			}).Info("startup drain finished")
			return nil
		})
	}

	a.watchConfig(prober)
	return g.Wait()
}

// watchConfig reloads config.yaml on change. Invalid edits are logged and
// ignored; the running settings stay in effect.
func (a *app) watchConfig(prober *netmon.Prober) {
	log := a.env.log
	v := a.env.viper
	if _, err := os.Stat(paths.ConfigFile(a.env.configDir)); err != nil {
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		s, err := decodeSettings(v)
		if err != nil {
			log.WithError(err).WithField("file", ev.Name).Warn("ignoring invalid config change")
			return
		}
		if err := applyLogSettings(log, s.Log); err != nil {
			log.WithError(err).Warn("ignoring invalid log settings")
		}
		if prober != nil {
			prober.SetInterval(s.Netmon.ProbeInterval)
		}
		log.WithFields(logrus.Fields{
			"file":           ev.Name,
			"log_level":      s.Log.Level,
			"probe_interval": s.Netmon.ProbeInterval,
		}).Info("config reloaded")
	})
	v.WatchConfig()
}

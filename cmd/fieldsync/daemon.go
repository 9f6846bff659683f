package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldagentpro/fieldsync/internal/config"
	"github.com/fieldagentpro/fieldsync/internal/daemon"
	"github.com/fieldagentpro/fieldsync/internal/dashboard"
	"github.com/fieldagentpro/fieldsync/internal/reconcile"
	"github.com/fieldagentpro/fieldsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run periodic sync in the foreground",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Sync from the remote service now and every sync_interval
  2. Log a digest of Active tasks after every cycle
  3. Serve the live dashboard when dashboard_port is set
  4. Pick up changes to the config file without a restart

Send SIGHUP to trigger an immediate sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.DashboardPort = port
		}

		out := io.Writer(os.Stderr)
		if cfg.LogFile != "" {
			lj := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
				Compress:   true,
			}
			defer lj.Close()
			out = lj
		}
		newLogger := func(prefix string) *log.Logger {
			return log.New(out, prefix, log.LstdFlags)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		var (
			server  *dashboard.Server
			handler *dashboard.Handler
			opts    []reconcile.Option
		)
		if cfg.DashboardPort > 0 {
			server = dashboard.NewServer(&dashboard.Config{
				Port:     cfg.DashboardPort,
				Gatherer: reg,
				Logger:   newLogger("[dashboard] "),
			})
			// Both read through the engine, which is bound once it exists.
			handler = dashboard.NewHandler(server, nil, newLogger("[dashboard] "))
			opts = append(opts, reconcile.WithObserver(handler))
		}

		a, err := openApp(append(opts,
			reconcile.WithLogger(newLogger("[sync] ")),
			reconcile.WithRegisterer(reg),
		)...)
		if err != nil {
			return err
		}
		defer a.Close()

		digestLog := newLogger("[digest] ")
		dcfg := &daemon.Config{
			SyncInterval: cfg.SyncInterval,
			DigestLimit:  10,
			Logger:       newLogger("[daemon] "),
			OnDigest: func(lines []string) {
				if len(lines) > 0 {
					digestLog.Printf("%d active: %s", len(lines), strings.Join(lines, "; "))
				}
				if handler != nil {
					handler.OnDigest(lines)
				}
			},
		}
		d, err := daemon.NewWithConfig(a.engine, dcfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		if v.ConfigFileUsed() != "" {
			config.Watch(v, newLogger("[config] "), func(next *config.Config) {
				if next.SyncInterval != cfg.SyncInterval {
					d.SetInterval(next.SyncInterval)
				}
				cfg.SyncInterval = next.SyncInterval
			})
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Remote: %s\n", a.client.BaseURL())
		fmt.Printf("   Cache: %s\n", a.db.Path())
		fmt.Printf("   Interval: %v\n", cfg.SyncInterval)

		g, gctx := errgroup.WithContext(ctx)

		if server != nil {
			server.SetReader(a.engine)
			handler.SetReader(a.engine)
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())
			g.Go(func() error {
				<-gctx.Done()
				return server.Stop()
			})
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hup:
					d.Trigger()
				}
			}
		})

		g.Go(func() error {
			return d.Start(gctx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "dashboard port (overrides dashboard_port; 0 disables)")
	rootCmd.AddCommand(daemonCmd)
}

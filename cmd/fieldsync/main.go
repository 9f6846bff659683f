// Command fieldsync manages the on-device shipment cache of a field agent and
// reconciles it with the remote shipment service.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldagentpro/fieldsync/internal/config"
	"github.com/fieldagentpro/fieldsync/internal/reconcile"
	"github.com/fieldagentpro/fieldsync/internal/remote"
	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool

	v   *viper.Viper
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Local-first shipment cache for field agents",
	Long: `fieldsync keeps an agent's shipments in a local SQLite cache and reconciles
them with the remote shipment service.

Deletes are applied locally at once and queued in an outbox until the remote
service confirms them. A sync first flushes the outbox, then replaces the local
table with the remote collection minus any deletes still pending. When the
remote service is unreachable the cache is left as it is.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		v, err = config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		flags := cmd.Root().PersistentFlags()
		for key, name := range map[string]string{
			config.KeyDBPath:        "db",
			config.KeyRemoteURL:     "remote",
			config.KeyRemoteTimeout: "timeout",
		} {
			if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
		cfg, err = config.Load(v)
		return err
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "view", Title: "Viewing:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: fieldsync.toml or fieldsync.yaml in "+config.DefaultDir()+")")
	flags.String("db", "", "path to the shipment cache database")
	flags.String("remote", "", "base URL of the remote shipment service")
	flags.Duration("timeout", 0, "remote request timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON where supported")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// logger returns a stderr logger when --verbose is set.
func logger(prefix string) *log.Logger {
	if verbose {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// openStore opens the configured database and ensures its schema.
func openStore() (*store.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// app bundles what most commands need.
type app struct {
	db     *store.DB
	client *remote.Client
	engine *reconcile.Engine
}

func (a *app) Close() {
	_ = a.db.Close()
}

// openApp wires the store, remote client and engine from cfg.
func openApp(opts ...reconcile.Option) (*app, error) {
	db, err := openStore()
	if err != nil {
		return nil, err
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteURL,
		Timeout: cfg.RemoteTimeout,
	}, logger("[remote] "))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	base := []reconcile.Option{
		reconcile.WithLogger(logger("[sync] ")),
		reconcile.WithLocker(db.WriteLock()),
		reconcile.WithContinueOnFailure(cfg.ContinueOnFailure),
		reconcile.WithRegisterer(prometheus.NewRegistry()),
	}
	if cfg.SeedPath != "" {
		seed, err := shipment.LoadSeedFile(cfg.SeedPath)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		base = append(base, reconcile.WithSeed(seed))
	}

	a := &app{
		db:     db,
		client: client,
		engine: reconcile.New(db, client, append(base, opts...)...),
	}
	if _, _, err := a.engine.Bootstrap(context.Background()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

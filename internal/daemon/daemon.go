// Package daemon runs the background sync loop.
//
// The daemon:
// 1. Syncs from the remote service on startup and then every SyncInterval
// 2. Computes the active-task digest after each cycle
// 3. Accepts interval changes and manual triggers while running
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/reconcile"
	"github.com/fieldagentpro/fieldsync/internal/shipment"
)

// Syncer is the part of the reconciliation engine the daemon drives.
// *reconcile.Engine implements it.
type Syncer interface {
	SyncFromRemote(ctx context.Context) (reconcile.SyncResult, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]shipment.Shipment, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to sync from the remote service
	SyncInterval time.Duration

	// DigestLimit caps the number of active tasks in the digest
	DigestLimit int

	// OnDigest, if set, receives the digest after every cycle
	OnDigest func(lines []string)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 15 * time.Minute,
		DigestLimit:  10,
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon periodically reconciles the store with the remote service.
type Daemon struct {
	engine Syncer
	config *Config

	intervalCh chan time.Duration
	triggerCh  chan struct{}

	mu         sync.RWMutex
	lastResult *reconcile.SyncResult
	lastErr    error
	digest     []string
	cycles     int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with default configuration.
func New(engine Syncer) (*Daemon, error) {
	return NewWithConfig(engine, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine Syncer, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive (got %v)", config.SyncInterval)
	}
	if config.DigestLimit <= 0 {
		config.DigestLimit = 10
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:     engine,
		config:     config,
		intervalCh: make(chan time.Duration, 1),
		triggerCh:  make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start runs an initial cycle, then syncs every SyncInterval.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %v)", d.config.SyncInterval)

	d.RunOnce(ctx)

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A cycle in progress completes first.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// SetInterval changes the sync interval of a running daemon.
func (d *Daemon) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	// Keep only the latest request.
	select {
	case <-d.intervalCh:
	default:
	}
	d.intervalCh <- interval
}

// Trigger requests a cycle now. Requests made while one is queued coalesce.
func (d *Daemon) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// syncLoop runs cycles on the ticker and on triggers.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case interval := <-d.intervalCh:
			d.config.Logger.Printf("Sync interval changed to %v", interval)
			ticker.Reset(interval)

		case <-d.triggerCh:
			d.RunOnce(d.ctx)

		case <-ticker.C:
			d.RunOnce(d.ctx)
		}
	}
}

// RunOnce performs one sync and digest cycle. Errors are logged and kept for
// Status; the daemon keeps running.
func (d *Daemon) RunOnce(ctx context.Context) {
	res, err := d.engine.SyncFromRemote(ctx)
	if err != nil {
		d.config.Logger.Printf("Error syncing: %v", err)
	} else if res.Offline {
		d.config.Logger.Printf("Remote unavailable, serving cached shipments")
	}

	digest, derr := ActiveDigest(ctx, d.engine, d.config.DigestLimit)
	if derr != nil {
		d.config.Logger.Printf("Error building digest: %v", derr)
	}

	d.mu.Lock()
	d.cycles++
	d.lastErr = err
	if err == nil {
		d.lastResult = &res
	}
	if derr == nil {
		d.digest = digest
	}
	d.mu.Unlock()

	if derr == nil && d.config.OnDigest != nil {
		d.config.OnDigest(digest)
	}
}

// Status is a snapshot of the daemon's progress.
type Status struct {
	LastResult *reconcile.SyncResult // last successful cycle
	LastErr    error                 // error of the last cycle, if any
	Cycles     int
}

// Status returns the daemon's progress so far.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{LastResult: d.lastResult, LastErr: d.lastErr, Cycles: d.cycles}
}

// Digest returns the active-task digest of the last cycle.
func (d *Daemon) Digest() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.digest...)
}

// ActiveDigest lists up to limit Active shipments as "Task #2049 - Acme" lines.
func ActiveDigest(ctx context.Context, engine Syncer, limit int) ([]string, error) {
	rows, err := engine.ListByStatus(ctx, shipment.StatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active shipments: %w", err)
	}
	lines := make([]string, 0, len(rows))
	for i := range rows {
		lines = append(lines, rows[i].DigestLine())
	}
	return lines, nil
}

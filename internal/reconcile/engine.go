package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldagentpro/fieldsync/internal/remote"
	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

// Store is the persistence the engine reconciles. *store.DB implements it.
type Store interface {
	ReplaceAllShipments(ctx context.Context, rows []shipment.Shipment) (int, error)
	RecordSync(ctx context.Context, at time.Time, count int) error
	DeleteAndEnqueue(ctx context.Context, orderID int64) (store.OutboxEntry, bool, error)
	Dequeue(ctx context.Context, id int64) error
	ListPendingDeletes(ctx context.Context) ([]store.OutboxEntry, error)
	PendingDeleteIDs(ctx context.Context) (map[int64]struct{}, error)
	CountPendingDeletes(ctx context.Context) (int, error)
	ResetToSeed(ctx context.Context, rows []shipment.Shipment, version string) (int, error)
	GetMeta(ctx context.Context, key string) (string, error)

	ListActiveContext(ctx context.Context) ([]shipment.Shipment, error)
	ListByDay(ctx context.Context, day string) ([]shipment.Shipment, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]shipment.Shipment, error)
	GetShipment(ctx context.Context, orderID int64) (*shipment.Shipment, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// Locker is a cross-process lock. *store.FileLock implements it.
type Locker interface {
	Lock() error
	Unlock() error
}

// SyncResult reports one SyncFromRemote run.
type SyncResult struct {
	RunID      string        `json:"run_id"`
	Flushed    int           `json:"flushed"`    // outbox entries confirmed before the fetch
	Fetched    int           `json:"fetched"`    // items in the remote payload
	Suppressed int           `json:"suppressed"` // fetched orders dropped because a delete is pending
	Written    int           `json:"written"`    // shipments in the table after the replace
	Offline    bool          `json:"offline"`    // fetch failed; store left untouched
	Duration   time.Duration `json:"duration"`
}

// DeleteResult reports one DeleteShipment call.
type DeleteResult struct {
	OrderID int64 `json:"order_id"`
	Removed bool  `json:"removed"` // a local row existed
	Synced  bool  `json:"synced"`  // remote confirmed; no outbox entry left
}

// ResetResult reports one ResetToSeed call.
type ResetResult struct {
	Version     string `json:"version"`
	Written     int    `json:"written"`
	RemoteReset bool   `json:"remote_reset"`
	RemoteCount int    `json:"remote_count,omitempty"`
}

// Engine reconciles the local store with the remote source.
type Engine struct {
	store  Store
	src    remote.Source
	logger *log.Logger

	seed              *shipment.Seed
	observers         []Observer
	registerer        prometheus.Registerer
	locker            Locker
	continueOnFailure bool
	now               func() time.Time

	metrics *metrics
	mu      sync.Mutex
}

// New creates an engine over st and src.
//
// The store must have its schema initialized.
func New(st Store, src remote.Source, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		src:    src,
		logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newMetrics(e.registerer)
	return e
}

// lock serializes mutating operations in and across processes.
func (e *Engine) lock() (func(), error) {
	e.mu.Lock()
	if e.locker != nil {
		if err := e.locker.Lock(); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("failed to acquire store lock: %w", err)
		}
	}
	return func() {
		if e.locker != nil {
			if err := e.locker.Unlock(); err != nil {
				e.logger.Printf("WARNING: failed to release store lock: %v", err)
			}
		}
		e.mu.Unlock()
	}, nil
}

// SyncFromRemote flushes pending deletes, fetches the remote collection and
// replaces the local table with the authoritative set.
//
// A failed fetch is not an error: the store is left untouched and the result
// has Offline set and Written zero. Only storage failures are returned.
func (e *Engine) SyncFromRemote(ctx context.Context) (SyncResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := e.lock()
	if err != nil {
		return SyncResult{}, err
	}
	defer unlock()

	start := e.now()
	res, err := e.sync(ctx, uuid.NewString())
	res.Duration = e.now().Sub(start)
	e.metrics.syncDuration.Observe(res.Duration.Seconds())

	switch {
	case err != nil:
		e.metrics.syncRuns.WithLabelValues(outcomeError).Inc()
		return res, fmt.Errorf("sync %s: %w", res.RunID, err)
	case res.Offline:
		e.metrics.syncRuns.WithLabelValues(outcomeOffline).Inc()
	default:
		e.metrics.syncRuns.WithLabelValues(outcomeOK).Inc()
		e.metrics.written.Add(float64(res.Written))
		e.logger.Printf("Sync %s complete: fetched=%d suppressed=%d written=%d flushed=%d",
			res.RunID, res.Fetched, res.Suppressed, res.Written, res.Flushed)
	}

	e.notify(func(o Observer) { o.OnSync(res) })
	return res, nil
}

func (e *Engine) sync(ctx context.Context, runID string) (SyncResult, error) {
	res := SyncResult{RunID: runID}

	var err error
	if res.Flushed, err = e.flush(ctx); err != nil {
		return res, err
	}

	fetched, err := e.src.FetchAll(ctx)
	if err != nil {
		e.logger.Printf("WARNING: sync %s: remote fetch failed, keeping cached shipments: %v", runID, err)
		res.Offline = true
		return res, nil
	}
	res.Fetched = len(fetched)

	pending, err := e.store.PendingDeleteIDs(ctx)
	if err != nil {
		return res, err
	}

	rows, suppressed := authoritativeSet(fetched, pending)
	res.Suppressed = suppressed

	if res.Written, err = e.store.ReplaceAllShipments(ctx, rows); err != nil {
		return res, err
	}
	if err := e.store.RecordSync(ctx, e.now(), res.Written); err != nil {
		return res, err
	}
	return res, nil
}

// authoritativeSet drops orders with a pending delete and collapses duplicate
// order IDs, keeping the last occurrence at the position of the first.
// suppressed counts distinct fetched orders dropped for a pending delete.
func authoritativeSet(fetched []shipment.Shipment, pending map[int64]struct{}) ([]shipment.Shipment, int) {
	index := make(map[int64]int, len(fetched))
	rows := make([]shipment.Shipment, 0, len(fetched))
	dropped := make(map[int64]struct{})

	for _, s := range fetched {
		if _, ok := pending[s.OrderID]; ok {
			dropped[s.OrderID] = struct{}{}
			continue
		}
		if i, ok := index[s.OrderID]; ok {
			rows[i] = s
			continue
		}
		index[s.OrderID] = len(rows)
		rows = append(rows, s)
	}
	return rows, len(dropped)
}

// FlushPendingDeletes confirms queued deletes against the remote service and
// returns how many were confirmed. A NotFound answer counts as confirmed.
//
// By default the pass stops at the first other failure and the remaining
// entries stay queued; see WithContinueOnFailure.
func (e *Engine) FlushPendingDeletes(ctx context.Context) (int, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := e.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	return e.flush(ctx)
}

// flush runs one pass over the outbox. Callers hold the lock.
func (e *Engine) flush(ctx context.Context) (int, error) {
	entries, err := e.store.ListPendingDeletes(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		e.metrics.pending.Set(0)
		return 0, nil
	}

	flushed := 0
	for _, entry := range entries {
		err := e.src.DeleteOne(ctx, entry.OrderID)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			e.metrics.deleteFailures.Inc()
			e.logger.Printf("WARNING: remote delete of order %d failed, keeping it queued: %v", entry.OrderID, err)
			if e.continueOnFailure {
				continue
			}
			break
		}

		if err := e.store.Dequeue(ctx, entry.ID); err != nil {
			return flushed, err
		}
		flushed++
	}

	e.metrics.flushed.Add(float64(flushed))
	e.metrics.pending.Set(float64(len(entries) - flushed))
	if flushed > 0 {
		e.logger.Printf("Flushed %d of %d pending deletes", flushed, len(entries))
	}
	e.notify(func(o Observer) { o.OnFlush(flushed) })
	return flushed, nil
}

// DeleteShipment removes the shipment locally and queues its remote delete
// in one transaction, then tries the remote delete once.
//
// The local delete is never rolled back. A failed remote delete is logged and
// left in the outbox; it is not an error.
func (e *Engine) DeleteShipment(ctx context.Context, orderID int64) (DeleteResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := e.lock()
	if err != nil {
		return DeleteResult{}, err
	}
	defer unlock()

	res := DeleteResult{OrderID: orderID}

	entry, removed, err := e.store.DeleteAndEnqueue(ctx, orderID)
	if err != nil {
		return res, fmt.Errorf("delete order %d: %w", orderID, err)
	}
	res.Removed = removed

	err = e.src.DeleteOne(ctx, orderID)
	switch {
	case err == nil, errors.Is(err, remote.ErrNotFound):
		if err := e.store.Dequeue(ctx, entry.ID); err != nil {
			return res, fmt.Errorf("delete order %d: %w", orderID, err)
		}
		res.Synced = true
	default:
		e.metrics.deleteFailures.Inc()
		e.logger.Printf("WARNING: remote delete of order %d failed, queued for next sync: %v", orderID, err)
	}

	if n, err := e.store.CountPendingDeletes(ctx); err == nil {
		e.metrics.pending.Set(float64(n))
	}
	e.notify(func(o Observer) { o.OnDelete(res) })
	return res, nil
}

// ResetToSeed replaces every local shipment with the seed dataset and clears
// the outbox, then asks the remote service to reset too. A remote failure is
// reported in ResetResult.RemoteReset, never as an error.
func (e *Engine) ResetToSeed(ctx context.Context) (ResetResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := e.lock()
	if err != nil {
		return ResetResult{}, err
	}
	defer unlock()

	seed, rows, err := e.seedRows()
	if err != nil {
		return ResetResult{}, err
	}

	res := ResetResult{Version: seed.Version}
	res.Written, err = e.store.ResetToSeed(ctx, rows, seed.Version)
	if err != nil {
		return res, fmt.Errorf("reset: %w", err)
	}
	e.metrics.pending.Set(0)

	count, err := e.src.ResetSeed(ctx)
	if err != nil {
		e.logger.Printf("WARNING: remote reset failed: %v", err)
	} else {
		res.RemoteReset = true
		res.RemoteCount = count
	}

	e.logger.Printf("Reset to seed %s: %d shipments (remote reset: %v)", res.Version, res.Written, res.RemoteReset)
	e.notify(func(o Observer) { o.OnReset(res) })
	return res, nil
}

// Bootstrap loads the seed dataset into a store that has never synced with
// the remote service, when the seed is newer than the stored seed version.
// Stores with a recorded sync or pending deletes are left alone. The remote
// service is not contacted. It reports whether the seed was applied.
func (e *Engine) Bootstrap(ctx context.Context) (ResetResult, bool, error) {
	ctx = context.WithoutCancel(ctx)
	unlock, err := e.lock()
	if err != nil {
		return ResetResult{}, false, err
	}
	defer unlock()

	lastSync, err := e.store.GetMeta(ctx, store.MetaLastSyncAt)
	if err != nil {
		return ResetResult{}, false, err
	}
	if lastSync != "" {
		return ResetResult{}, false, nil
	}
	pending, err := e.store.CountPendingDeletes(ctx)
	if err != nil {
		return ResetResult{}, false, err
	}
	if pending > 0 {
		return ResetResult{}, false, nil
	}

	seed, rows, err := e.seedRows()
	if err != nil {
		return ResetResult{}, false, err
	}
	current, err := e.store.GetMeta(ctx, store.MetaSeedVersion)
	if err != nil {
		return ResetResult{}, false, err
	}
	if !seed.Newer(current) {
		return ResetResult{}, false, nil
	}

	res := ResetResult{Version: seed.Version}
	if res.Written, err = e.store.ResetToSeed(ctx, rows, seed.Version); err != nil {
		return res, false, fmt.Errorf("bootstrap: %w", err)
	}
	e.logger.Printf("Loaded seed %s (was %q): %d shipments", seed.Version, current, res.Written)
	e.notify(func(o Observer) { o.OnReset(res) })
	return res, true, nil
}

// seedRows returns the configured seed, or the embedded one, as local rows.
func (e *Engine) seedRows() (*shipment.Seed, []shipment.Shipment, error) {
	seed := e.seed
	if seed == nil {
		var err error
		if seed, err = shipment.DefaultSeed(); err != nil {
			return nil, nil, fmt.Errorf("failed to load seed: %w", err)
		}
	}
	rows, err := seed.Rows(e.now())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid seed %s: %w", seed.Version, err)
	}
	return seed, rows, nil
}

// ListActive returns every cached shipment, latest delivery first.
func (e *Engine) ListActive(ctx context.Context) ([]shipment.Shipment, error) {
	return e.store.ListActiveContext(ctx)
}

// ListByDay returns the shipments scheduled on day (YYYY-MM-DD).
func (e *Engine) ListByDay(ctx context.Context, day string) ([]shipment.Shipment, error) {
	return e.store.ListByDay(ctx, day)
}

// ListByStatus returns up to limit shipments with the given status.
func (e *Engine) ListByStatus(ctx context.Context, status string, limit int) ([]shipment.Shipment, error) {
	return e.store.ListByStatus(ctx, status, limit)
}

// Get returns one shipment or store.ErrNotFound.
func (e *Engine) Get(ctx context.Context, orderID int64) (*shipment.Shipment, error) {
	return e.store.GetShipment(ctx, orderID)
}

// PendingDeletes returns the outbox in the order it will be flushed.
func (e *Engine) PendingDeletes(ctx context.Context) ([]store.OutboxEntry, error) {
	return e.store.ListPendingDeletes(ctx)
}

// Status returns store statistics.
func (e *Engine) Status(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

func (e *Engine) notify(fn func(Observer)) {
	for _, o := range e.observers {
		fn(o)
	}
}

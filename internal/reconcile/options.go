package reconcile

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default writes to stderr with a "[sync] " prefix.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSeed sets the dataset used by ResetToSeed. The embedded seed is used
// when none is given.
func WithSeed(seed *shipment.Seed) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// WithObserver adds an observer. Observers are called in the order added,
// after each operation completes and while the engine lock is still held.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRegisterer registers the engine's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithLocker adds a cross-process lock taken around every operation.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithContinueOnFailure makes a flush pass continue past failed remote
// deletes instead of stopping at the first one.
func WithContinueOnFailure(v bool) Option {
	return func(e *Engine) {
		e.continueOnFailure = v
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

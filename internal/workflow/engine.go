// Package workflow implements the status transition engine: validation
// against configured flows, trigger resolution, parent cascades,
// dependency unblocking, and the role transition log.
package workflow

import (
	"log/slog"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/db"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
)

// Engine wires the transition components together. All methods are safe
// for concurrent use; mutating paths serialise per entity through the
// lock table.
type Engine struct {
	store  *db.DB
	config *config.Loader
	locks  *lock.Keyed
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Engine. A nil logger falls back to slog.Default.
func New(store *db.DB, loader *config.Loader, locks *lock.Keyed, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = lock.New()
	}
	return &Engine{
		store:  store,
		config: loader,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
}

// Store exposes the underlying database for the dispatch layer.
func (e *Engine) Store() *db.DB {
	return e.store
}

// Locks exposes the per-entity lock table for the dispatch layer.
func (e *Engine) Locks() *lock.Keyed {
	return e.locks
}

// Config returns the current workflow configuration snapshot.
func (e *Engine) Config() *config.Config {
	return e.config.Load()
}

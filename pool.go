package processpool

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-process-pool/core"
)

// =============================================================================
// Package Defaults (Singleton)
// =============================================================================

var (
	defaultLogger  core.Logger  = core.NewNoOpLogger()
	defaultMetrics core.Metrics = &core.NilMetrics{}
	defaultsMu     sync.Mutex
)

// SetDefaultLogger sets the logger used by pools created with New and RunAll.
// A nil logger restores the no-op logger.
func SetDefaultLogger(logger core.Logger) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()

	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	defaultLogger = logger
}

// SetDefaultMetrics sets the metrics used by pools created with New and RunAll.
// A nil value restores the no-op metrics.
func SetDefaultMetrics(metrics core.Metrics) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()

	if metrics == nil {
		metrics = &core.NilMetrics{}
	}
	defaultMetrics = metrics
}

func defaultConfig(maxSimultaneous int) PoolConfig {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()

	cfg := core.DefaultPoolConfig()
	cfg.MaxSimultaneous = maxSimultaneous
	cfg.Logger = defaultLogger
	cfg.Metrics = defaultMetrics
	return cfg
}

// New creates a pool running at most maxSimultaneous runs at once (Unbounded
// when < 1) and admits items. Items are Runs, nested pools, *exec.Cmd or func() error.
func New(maxSimultaneous int, items ...any) (*Pool, error) {
	return core.NewPool(defaultConfig(maxSimultaneous), items...)
}

// RunAll runs items to completion through a new pool and returns the
// failures of every failed run. err is only set when the pool could not be
// built or ctx was cancelled.
func RunAll(ctx context.Context, maxSimultaneous int, interval time.Duration, items ...any) (failures []error, err error) {
	pool, err := New(maxSimultaneous, items...)
	if err != nil {
		return nil, err
	}
	if _, err := pool.RunContext(ctx, interval); err != nil {
		return pool.Errors(), err
	}
	return pool.Errors(), nil
}

package core

import (
	"time"
)

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting run execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called synchronously from the pool's poll path and should be fast.
type Metrics interface {
	// RecordRunDuration records how long a finished run took and whether it succeeded.
	//
	// Parameters:
	// - poolName: The name of the pool the run belongs to
	// - duration: How long the run took
	// - successful: Whether the run finished successfully
	RecordRunDuration(poolName string, duration time.Duration, successful bool)

	// RecordRunFailure records one failure captured from a failed run.
	//
	// Parameters:
	// - poolName: The name of the pool the run belongs to
	// - err: The captured failure
	RecordRunFailure(poolName string, err error)

	// RecordQueueDepth records the number of runs waiting to be promoted.
	//
	// Parameters:
	// - poolName: The name of the pool
	// - depth: The current number of waiting runs
	RecordQueueDepth(poolName string, depth int)

	// RecordRunRejected records that an item was refused admission.
	//
	// Parameters:
	// - poolName: The name of the pool
	// - reason: Why the item was rejected (e.g., "not_running", "invalid_argument")
	RecordRunRejected(poolName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordRunDuration is a no-op.
func (m *NilMetrics) RecordRunDuration(poolName string, duration time.Duration, successful bool) {
}

// RecordRunFailure is a no-op.
func (m *NilMetrics) RecordRunFailure(poolName string, err error) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int) {
}

// RecordRunRejected is a no-op.
func (m *NilMetrics) RecordRunRejected(poolName string, reason string) {
}

// =============================================================================
// PoolConfig: Configuration for Pool
// =============================================================================

// Unbounded is the MaxSimultaneous value that places no limit on running runs.
// Any value below 1 is treated the same way.
const Unbounded = 0

// DefaultHistorySize is the number of finished runs a pool remembers by default.
const DefaultHistorySize = 100

// PoolConfig holds configuration options for Pool.
// Logger and Metrics are optional; if not provided, no-op implementations are used.
type PoolConfig struct {
	// Name labels the pool in logs and metrics. Defaults to "pool".
	Name string

	// MaxSimultaneous bounds the number of running runs. Unbounded when < 1.
	MaxSimultaneous int

	// RunInstantly starts admitted runs straight away, before Start or Run is called.
	RunInstantly bool

	Tags Tags

	// Priority is the pool's own priority when it is nested in another pool.
	// Zero means DefaultPriority; use SetPriority for a pool priority of 0.
	Priority float64

	// HistorySize is the capacity of the finished-run history. Defaults to DefaultHistorySize.
	HistorySize int

	Logger  Logger
	Metrics Metrics
}

// DefaultPoolConfig returns an unbounded pool config with default handlers.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:            "pool",
		MaxSimultaneous: Unbounded,
		Priority:        DefaultPriority,
		HistorySize:     DefaultHistorySize,
		Logger:          NewNoOpLogger(),
		Metrics:         &NilMetrics{},
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Name == "" {
		c.Name = "pool"
	}
	if c.MaxSimultaneous < 1 {
		c.MaxSimultaneous = Unbounded
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.HistorySize < 1 {
		c.HistorySize = DefaultHistorySize
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	return c
}

package prometheus

import (
	"sync"

	"github.com/Swind/go-process-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	core.Dispatcher
	Stats() core.PoolStats
}

// PoolGauges mirrors pool Stats() snapshots into Prometheus gauges. Gauges
// are refreshed from the pool's own events, on the goroutine driving the
// pool, so no polling goroutine is needed.
type PoolGauges struct {
	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolWaiting  *prom.GaugeVec
	poolRunning  *prom.GaugeVec
	poolFinished *prom.GaugeVec
	poolTotal    *prom.GaugeVec
	poolFailed   *prom.GaugeVec
	poolActive   *prom.GaugeVec
}

// NewPoolGauges creates pool gauges and registers their collectors.
func NewPoolGauges(namespace string, reg prom.Registerer) (*PoolGauges, error) {
	if namespace == "" {
		namespace = "processpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	newGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"})
	}

	poolWaiting := newGauge("pool_waiting", "Runs waiting to be started per pool.")
	poolRunning := newGauge("pool_running", "Running runs per pool.")
	poolFinished := newGauge("pool_finished", "Finished runs per pool.")
	poolTotal := newGauge("pool_runs", "Total runs per pool.")
	poolFailed := newGauge("pool_failed", "Finished runs that failed per pool.")
	poolActive := newGauge("pool_active", "Pool running state (1=running, 0=not running).")

	var err error
	if poolWaiting, err = registerCollector(reg, poolWaiting); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if poolFinished, err = registerCollector(reg, poolFinished); err != nil {
		return nil, err
	}
	if poolTotal, err = registerCollector(reg, poolTotal); err != nil {
		return nil, err
	}
	if poolFailed, err = registerCollector(reg, poolFailed); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}

	return &PoolGauges{
		pools:        make(map[string]PoolSnapshotProvider),
		poolWaiting:  poolWaiting,
		poolRunning:  poolRunning,
		poolFinished: poolFinished,
		poolTotal:    poolTotal,
		poolFailed:   poolFailed,
		poolActive:   poolActive,
	}, nil
}

// Watch exports the stats of pool under name and refreshes them whenever the
// pool emits an event. Watching another pool under the same name replaces the
// exported provider.
func (g *PoolGauges) Watch(name string, pool PoolSnapshotProvider) error {
	if g == nil || pool == nil {
		return nil
	}
	name = normalizeLabel(name, "pool")

	g.poolsMu.Lock()
	g.pools[name] = pool
	g.poolsMu.Unlock()

	refresh := func(core.Event) { g.collect(name, pool) }
	for _, kind := range []core.EventKind{core.EventStarted, core.EventUpdated, core.EventCompleted, core.EventRunAdded} {
		if err := pool.AddListener(kind, refresh); err != nil {
			return err
		}
	}

	g.collect(name, pool)
	return nil
}

// Collect refreshes the gauges of every watched pool.
func (g *PoolGauges) Collect() {
	if g == nil {
		return
	}
	g.poolsMu.RLock()
	defer g.poolsMu.RUnlock()

	for name, pool := range g.pools {
		g.set(name, pool.Stats())
	}
}

func (g *PoolGauges) collect(name string, pool PoolSnapshotProvider) {
	g.poolsMu.RLock()
	current := g.pools[name]
	g.poolsMu.RUnlock()

	// A replaced pool keeps its listeners but no longer owns the label.
	if current != pool {
		return
	}
	g.set(name, pool.Stats())
}

func (g *PoolGauges) set(name string, stats core.PoolStats) {
	g.poolWaiting.WithLabelValues(name).Set(float64(stats.Waiting))
	g.poolRunning.WithLabelValues(name).Set(float64(stats.Running))
	g.poolFinished.WithLabelValues(name).Set(float64(stats.Finished))
	g.poolTotal.WithLabelValues(name).Set(float64(stats.Total))
	g.poolFailed.WithLabelValues(name).Set(float64(stats.Failed))
	if stats.State == core.StateRunning {
		g.poolActive.WithLabelValues(name).Set(1)
	} else {
		g.poolActive.WithLabelValues(name).Set(0)
	}
}

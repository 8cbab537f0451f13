package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-process-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	runDurationSeconds *prom.HistogramVec
	runFailuresTotal   *prom.CounterVec
	runRejectedTotal   *prom.CounterVec
	queueDepth         *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "processpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.01, 4, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Run duration in seconds, from start to finish.",
		Buckets:   buckets,
	}, []string{"pool", "result"})
	failuresVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_failures_total",
		Help:      "Total number of failures captured from failed runs.",
	}, []string{"pool", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_rejected_total",
		Help:      "Total number of items refused admission.",
	}, []string{"pool", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of runs waiting to be started.",
	}, []string{"pool"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failuresVec, err = registerCollector(reg, failuresVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		runDurationSeconds: durationVec,
		runFailuresTotal:   failuresVec,
		runRejectedTotal:   rejectedVec,
		queueDepth:         queueDepthVec,
	}, nil
}

// RecordRunDuration records how long a finished run took.
func (m *MetricsExporter) RecordRunDuration(poolName string, duration time.Duration, successful bool) {
	if m == nil {
		return
	}
	m.runDurationSeconds.WithLabelValues(normalizeLabel(poolName, "unknown"), resultLabel(successful)).Observe(duration.Seconds())
}

// RecordRunFailure records a failure captured from a failed run.
func (m *MetricsExporter) RecordRunFailure(poolName string, err error) {
	if m == nil {
		return
	}
	m.runFailuresTotal.WithLabelValues(normalizeLabel(poolName, "unknown"), failureKind(err)).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(poolName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(poolName, "unknown")).Set(float64(depth))
}

// RecordRunRejected records admission rejections.
func (m *MetricsExporter) RecordRunRejected(poolName string, reason string) {
	if m == nil {
		return
	}
	m.runRejectedTotal.WithLabelValues(normalizeLabel(poolName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func resultLabel(successful bool) string {
	if successful {
		return "successful"
	}
	return "failed"
}

func failureKind(err error) string {
	var processErr *core.ProcessFailedError
	var panicErr *core.PanicError
	switch {
	case errors.As(err, &processErr):
		return "process"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "error"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

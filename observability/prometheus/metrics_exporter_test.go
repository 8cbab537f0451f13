package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-process-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("processpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordRunDuration("pool-a", 250*time.Millisecond, true)
	exporter.RecordRunFailure("pool-a", &core.ProcessFailedError{Command: "false", ExitCode: 1})
	exporter.RecordRunFailure("pool-a", &core.PanicError{Value: "boom"})
	exporter.RecordRunFailure("pool-a", errors.New("plain"))
	exporter.RecordQueueDepth("pool-a", 7)
	exporter.RecordRunRejected("pool-a", "not_running")

	for _, kind := range []string{"process", "panic", "error"} {
		if got := testutil.ToFloat64(exporter.runFailuresTotal.WithLabelValues("pool-a", kind)); got != 1 {
			t.Errorf("failures{kind=%s} = %v, want 1", kind, got)
		}
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("pool-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.runRejectedTotal.WithLabelValues("pool-a", "not_running"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.runDurationSeconds.WithLabelValues("pool-a", "successful"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("processpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("processpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordRunRejected("pool-a", "invalid_argument")
	second.RecordRunRejected("pool-a", "invalid_argument")

	got := testutil.ToFloat64(first.runRejectedTotal.WithLabelValues("pool-a", "invalid_argument"))
	if got != 2 {
		t.Fatalf("shared rejected counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter

	exporter.RecordRunDuration("p", time.Second, false)
	exporter.RecordRunFailure("p", errors.New("x"))
	exporter.RecordQueueDepth("p", 1)
	exporter.RecordRunRejected("p", "")
}

// TestMetricsExporter_WithPool verifies a pool reports through the exporter
// Given: A pool configured with the exporter and a failing callback
// When: The pool runs to completion
// Then: Both durations, the failure and the final queue depth are exported
func TestMetricsExporter_WithPool(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{DurationBuckets: []float64{0.1, 1}})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	cfg := core.DefaultPoolConfig()
	cfg.Name = "jobs"
	cfg.Metrics = exporter
	pool, err := core.NewPool(cfg, func() error { return nil }, func() error { return errors.New("boom") })
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	// Act
	pool.Run(0)

	// Assert
	if got := testutil.ToFloat64(exporter.runFailuresTotal.WithLabelValues("jobs", "error")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("jobs")); got != 0 {
		t.Errorf("queue depth = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(exporter.runDurationSeconds); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}

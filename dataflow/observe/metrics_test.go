package observe

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	if m.Gauge != nil {
		return m.Gauge.GetValue()
	}
	return 0
}

func TestMetricsRecordCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncrementRetries("run-1", "n1", "transient")
	m.IncrementRetries("run-1", "n1", "transient")
	if got := counterValue(t, m.retries.WithLabelValues("run-1", "n1", "transient")); got != 2 {
		t.Fatalf("expected retries counter = 2, got %v", got)
	}

	m.IncrementRestarts("run-1", "n1")
	if got := counterValue(t, m.restarts.WithLabelValues("run-1", "n1")); got != 1 {
		t.Fatalf("expected restarts counter = 1, got %v", got)
	}

	m.IncrementBackpressure("run-1", "n1")
	if got := counterValue(t, m.backpressure.WithLabelValues("run-1", "n1")); got != 1 {
		t.Fatalf("expected backpressure counter = 1, got %v", got)
	}
}

func TestMetricsSetGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetInflightNodes(3)
	if got := counterValue(t, m.inflightNodes); got != 3 {
		t.Fatalf("expected inflight gauge = 3, got %v", got)
	}

	m.SetEdgeQueueDepth("run-1", "a", "b", 7)
	if got := counterValue(t, m.edgeQueueDepth.WithLabelValues("run-1", "a", "b")); got != 7 {
		t.Fatalf("expected queue depth = 7, got %v", got)
	}
}

func TestMetricsDisableSuppressesRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Disable()

	m.IncrementRetries("run-1", "n1", "transient")
	m.SetInflightNodes(5)
	m.RecordItemLatency("run-1", "n1", 10*time.Millisecond, "ok")

	if got := counterValue(t, m.retries.WithLabelValues("run-1", "n1", "transient")); got != 0 {
		t.Fatalf("expected no recording while disabled, got %v", got)
	}
	if got := counterValue(t, m.inflightNodes); got != 0 {
		t.Fatalf("expected gauge untouched while disabled, got %v", got)
	}

	m.Enable()
	m.IncrementRetries("run-1", "n1", "transient")
	if got := counterValue(t, m.retries.WithLabelValues("run-1", "n1", "transient")); got != 1 {
		t.Fatalf("expected recording to resume after Enable, got %v", got)
	}
}

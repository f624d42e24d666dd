package observe

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus-compatible instrumentation for a running graph,
// namespaced "dataflow_":
//
//   - inflight_nodes (gauge): nodes currently driving their item stream.
//   - edge_queue_depth (gauge): items buffered in edge transports, by node_id/edge.
//   - item_latency_ms (histogram): per-item processing duration, by node_id/status.
//   - retries_total (counter): item retry attempts, by node_id/reason.
//   - restarts_total (counter): node driver restarts, by node_id.
//   - backpressure_events_total (counter): sends blocked on a full edge buffer.
//   - branch_subscriber_backlog / _high_water / _completed / _faulted
//     (gauges): per-subscriber delivery health for a Branch node, by
//     node_id/port.
type Metrics struct {
	inflightNodes   prometheus.Gauge
	edgeQueueDepth  *prometheus.GaugeVec
	itemLatency     *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	restarts        *prometheus.CounterVec
	backpressure    *prometheus.CounterVec
	branchBacklog   *prometheus.GaugeVec
	branchHighWater *prometheus.GaugeVec
	branchCompleted *prometheus.GaugeVec
	branchFaulted   *prometheus.GaugeVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers every dataflow_* metric with registry (the default
// registerer if registry is nil) and returns a ready-to-use Metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "inflight_nodes",
		Help:      "Number of node drivers currently running",
	})

	m.edgeQueueDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "edge_queue_depth",
		Help:      "Items currently buffered in an edge's transport channel",
	}, []string{"run_id", "from_node", "to_node"})

	m.itemLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dataflow",
		Name:      "item_latency_ms",
		Help:      "Per-item processing duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "retries_total",
		Help:      "Cumulative item retry attempts",
	}, []string{"run_id", "node_id", "reason"})

	m.restarts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "restarts_total",
		Help:      "Cumulative node driver restarts issued by a pipeline error handler",
	}, []string{"run_id", "node_id"})

	m.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Name:      "backpressure_events_total",
		Help:      "Sends that blocked because a downstream edge buffer was full",
	}, []string{"run_id", "node_id"})

	m.branchBacklog = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "branch_subscriber_backlog",
		Help:      "Items currently buffered for one Branch subscriber port",
	}, []string{"run_id", "node_id", "port"})

	m.branchHighWater = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "branch_subscriber_high_water",
		Help:      "Peak backlog observed for one Branch subscriber port",
	}, []string{"run_id", "node_id", "port"})

	m.branchCompleted = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "branch_subscriber_completed",
		Help:      "Cumulative items successfully delivered to one Branch subscriber port",
	}, []string{"run_id", "node_id", "port"})

	m.branchFaulted = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Name:      "branch_subscriber_faulted",
		Help:      "1 if the most recent delivery to this Branch subscriber port failed, else 0",
	}, []string{"run_id", "node_id", "port"})

	return m
}

func (m *Metrics) RecordItemLatency(runID, nodeID string, latency time.Duration, status string) {
	if !m.enabled {
		return
	}
	m.itemLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) IncrementRetries(runID, nodeID, reason string) {
	if !m.enabled {
		return
	}
	m.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

func (m *Metrics) IncrementRestarts(runID, nodeID string) {
	if !m.enabled {
		return
	}
	m.restarts.WithLabelValues(runID, nodeID).Inc()
}

func (m *Metrics) SetEdgeQueueDepth(runID, fromNode, toNode string, depth int) {
	if !m.enabled {
		return
	}
	m.edgeQueueDepth.WithLabelValues(runID, fromNode, toNode).Set(float64(depth))
}

func (m *Metrics) SetInflightNodes(count int) {
	if !m.enabled {
		return
	}
	m.inflightNodes.Set(float64(count))
}

func (m *Metrics) IncrementBackpressure(runID, nodeID string) {
	if !m.enabled {
		return
	}
	m.backpressure.WithLabelValues(runID, nodeID).Inc()
}

// SetBranchSubscriberStats records one Branch subscriber port's delivery
// health: current backlog, the high-water backlog observed so far this run,
// cumulative completed deliveries, and whether the most recent delivery
// faulted.
func (m *Metrics) SetBranchSubscriberStats(runID, nodeID, port string, backlog, highWater int, completed int64, faulted bool) {
	if !m.enabled {
		return
	}
	m.branchBacklog.WithLabelValues(runID, nodeID, port).Set(float64(backlog))
	m.branchHighWater.WithLabelValues(runID, nodeID, port).Set(float64(highWater))
	m.branchCompleted.WithLabelValues(runID, nodeID, port).Set(float64(completed))
	faultVal := 0.0
	if faulted {
		faultVal = 1.0
	}
	m.branchFaulted.WithLabelValues(runID, nodeID, port).Set(faultVal)
}

// Disable stops recording without unregistering collectors (handy in tests).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

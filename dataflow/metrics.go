package dataflow

import "time"

// SchedulerMetrics receives instrumentation from a running Graph: inflight
// node count, edge queue depth, per-item latency, retry/restart counters,
// backpressure events, and per-subscriber Branch delivery stats. It is
// defined here (rather than imported from dataflow/observe) because observe
// itself imports this package for its ObserverAdapter — *observe.Metrics
// satisfies this interface structurally, with no import back into dataflow
// needed. Attach one via Builder's WithSchedulerMetrics option.
type SchedulerMetrics interface {
	SetInflightNodes(count int)
	SetEdgeQueueDepth(runID, fromNode, toNode string, depth int)
	RecordItemLatency(runID, nodeID string, latency time.Duration, status string)
	IncrementRetries(runID, nodeID, reason string)
	IncrementRestarts(runID, nodeID string)
	IncrementBackpressure(runID, nodeID string)
	SetBranchSubscriberStats(runID, nodeID, port string, backlog, highWater int, completed int64, faulted bool)
}

// noopMetrics is the zero-cost default when no SchedulerMetrics is attached.
type noopMetrics struct{}

func (noopMetrics) SetInflightNodes(int)                                 {}
func (noopMetrics) SetEdgeQueueDepth(string, string, string, int)        {}
func (noopMetrics) RecordItemLatency(string, string, time.Duration, string) {}
func (noopMetrics) IncrementRetries(string, string, string)               {}
func (noopMetrics) IncrementRestarts(string, string)                      {}
func (noopMetrics) IncrementBackpressure(string, string)                  {}
func (noopMetrics) SetBranchSubscriberStats(string, string, string, int, int, int64, bool) {}

// Package observe provides pluggable observability backends for a running
// dataflow graph: structured events, Prometheus metrics, and OpenTelemetry
// tracing, plus an adapter that bridges them to dataflow.Observer.
package observe

import "time"

// Event is a single observability record emitted by a node driver.
type Event struct {
	// RunID identifies the Run invocation that produced this event.
	RunID string
	// Seq is a monotonically increasing sequence number, unique within a
	// run, used to recover emission order from an Emitter that reorders or
	// batches (e.g. BufferedEmitter's query API).
	Seq int64
	// NodeID identifies the node that emitted this event.
	NodeID string
	// Msg is a short, stable event name ("node_started", "item_emitted",
	// "node_retried", "node_failed", "node_completed").
	Msg string
	// Meta carries event-specific structured data (e.g. "attempt",
	// "elapsed_ms", "cause", "item_count").
	Meta map[string]any
	// At is when the event occurred.
	At time.Time
}

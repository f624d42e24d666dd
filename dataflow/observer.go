package dataflow

import (
	"context"
	"time"
)

// Observer receives lifecycle notifications from every node driver in a
// run. Implementations must not block the caller for long; the scheduler
// invokes these synchronously on the node's goroutine. Wrap a slow sink
// (e.g. a network-backed Emitter) in your own buffering if needed — see
// dataflow/observe.BufferedEmitter for the reference approach.
type Observer interface {
	// NodeStarted fires once, before a node's driver begins consuming input.
	NodeStarted(nodeID string, kind NodeKind)
	// ItemProduced fires when a Source node emits an item upstream.
	ItemProduced(nodeID string)
	// ItemEmitted fires when any node successfully emits an item downstream.
	ItemEmitted(nodeID string, elapsed time.Duration)
	// NodeRetried fires each time a failed item is retried under a Resilient
	// strategy, before the backoff sleep.
	NodeRetried(nodeID string, attempt int, cause error)
	// NodeFailed fires when a node's driver terminates due to an
	// unrecoverable error (after retries/restarts are exhausted or a handler
	// returns FailPipeline).
	NodeFailed(nodeID string, cause error)
	// NodeCompleted fires once, when a node's driver exits normally (its
	// input is exhausted and all output has been emitted/acknowledged).
	NodeCompleted(nodeID string, itemCount int64)
}

// NoopObserver implements Observer with no-op methods; the zero value is
// ready to use and is the scheduler's default when no Observer is configured.
type NoopObserver struct{}

func (NoopObserver) NodeStarted(string, NodeKind)      {}
func (NoopObserver) ItemProduced(string)               {}
func (NoopObserver) ItemEmitted(string, time.Duration) {}
func (NoopObserver) NodeRetried(string, int, error)    {}
func (NoopObserver) NodeFailed(string, error)          {}
func (NoopObserver) NodeCompleted(string, int64)       {}

// DeadLetterEnvelope wraps an item that a node's error handler chose to
// dead-letter rather than retry or fail the pipeline over.
type DeadLetterEnvelope struct {
	NodeID           string
	OriginalItem     any
	ExceptionType    string
	ExceptionMessage string
	StackTrace       string
	Timestamp        time.Time
	CorrelationID    string
	SourceMetadata   map[string]string
}

// DeadLetterSink persists envelopes that per-item handlers routed to dead
// letter. Implementations live in dataflow/deadletter.
type DeadLetterSink interface {
	Persist(ctx context.Context, envelope DeadLetterEnvelope) error
}

package dataflow

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure per the engine's error taxonomy. Kinds 1-7
// are recoverable or expected in some configurations; FatalError never is.
type ErrorKind int

const (
	// ValidationError is a graph build-time failure. Never raised at runtime.
	ValidationError ErrorKind = iota
	// NodeInitError means a node failed to produce its output pipe / first item.
	NodeInitError
	// ItemProcessingError means a per-item body raised; routed to the per-node handler.
	ItemProcessingError
	// TransportError means an edge closed unexpectedly or its producer faulted.
	TransportError
	// CancellationError means cooperative cancellation occurred; not a failure.
	CancellationError
	// ResourceExhaustionError means a materialization cap or inflight cap was exceeded,
	// or a dead-letter sink was unavailable.
	ResourceExhaustionError
	// ConfigurationError means resilience was configured without a required handler,
	// or settings are mutually contradictory.
	ConfigurationError
	// FatalError means a handler reported the failure as non-recoverable.
	FatalError
)

func (k ErrorKind) String() string {
	switch k {
	case ValidationError:
		return "ValidationError"
	case NodeInitError:
		return "NodeInitError"
	case ItemProcessingError:
		return "ItemProcessingError"
	case TransportError:
		return "TransportError"
	case CancellationError:
		return "CancellationError"
	case ResourceExhaustionError:
		return "ResourceExhaustionError"
	case ConfigurationError:
		return "ConfigurationError"
	case FatalError:
		return "FatalError"
	default:
		return "UnknownError"
	}
}

// EngineError is a structured, code-tagged error raised by graph
// construction and scheduler bookkeeping (not per-item processing, which
// uses RunFailure): a human Message plus a machine Code.
type EngineError struct {
	Message string
	Code    string
	Kind    ErrorKind
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Sentinel errors raised at well-known points in the scheduler.
var (
	// ErrInvalidRetryPolicy is returned by RetryOptions.Validate.
	ErrInvalidRetryPolicy = errors.New("dataflow: invalid retry options")
	// ErrMaxAttemptsExceeded means a per-item retry budget was exhausted.
	ErrMaxAttemptsExceeded = errors.New("dataflow: max item retries exceeded")
	// ErrMaxRestartsExceeded means a node restart budget was exhausted.
	ErrMaxRestartsExceeded = errors.New("dataflow: max node restart attempts exceeded")
	// ErrMaterializationCapExceeded means a resilient wrapper over a streaming
	// pipe would need to buffer more than MaxMaterializedItems for restart.
	ErrMaterializationCapExceeded = errors.New("dataflow: materialization cap exceeded")
	// ErrCircuitOpen means the circuit breaker is open and short-circuiting work.
	ErrCircuitOpen = errors.New("dataflow: circuit breaker open")
	// ErrDeadLetterUnavailable means a dead-letter sink rejected delivery.
	ErrDeadLetterUnavailable = errors.New("dataflow: dead-letter sink unavailable")
	// ErrNoRoute means no downstream edge or routing decision applies.
	ErrNoRoute = errors.New("dataflow: no route from node")
)

// RunFailure is the single terminal error Run() returns when the pipeline
// fails. It aggregates the root cause with enough bookkeeping to diagnose
// which node failed and how many attempts were made.
type RunFailure struct {
	NodeID        string
	Kind          ErrorKind
	Attempts      int
	Restarts      int
	Cause         error
	CorrelationID string
}

func (f *RunFailure) Error() string {
	return fmt.Sprintf("dataflow: run failed at node %q (%s, attempts=%d, restarts=%d): %v",
		f.NodeID, f.Kind, f.Attempts, f.Restarts, f.Cause)
}

func (f *RunFailure) Unwrap() error { return f.Cause }

// IsCancellation reports whether err represents cooperative cancellation
// rather than a genuine failure.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var rf *RunFailure
	if errors.As(err, &rf) {
		return rf.Kind == CancellationError
	}
	return errors.Is(err, context.Canceled)
}

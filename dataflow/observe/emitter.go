package observe

import "context"

// Emitter receives Events from a running graph. Implementations must not
// block the emitting node's driver for long — buffer or hand off to
// another goroutine if the backend is slow.
type Emitter interface {
	// Emit sends a single event. Must not panic; swallow and log backend
	// errors internally instead.
	Emit(event Event)

	// EmitBatch sends multiple events, preserving their relative order.
	// Returns an error only for catastrophic, non-per-event failures.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until every buffered event has been delivered, or ctx
	// is cancelled. Safe to call more than once.
	Flush(ctx context.Context) error
}

package dataflow

import "sync/atomic"

// AckStrategy controls when an AckMessage's acknowledgment callback fires.
type AckStrategy int

const (
	// AckAutoOnSinkSuccess acknowledges automatically as soon as a Sink
	// processes the item successfully. When the item reaches several sinks,
	// the first one to succeed fires the callback; the others' calls have no
	// effect.
	AckAutoOnSinkSuccess AckStrategy = iota
	// AckManual requires the application to call Acknowledge itself,
	// typically from inside a Sink body once its own side effect commits.
	AckManual
	// AckDelayed lets the application call Acknowledge itself, and the Sink
	// driver also acknowledges once the sink processes the item
	// successfully, as under AckAutoOnSinkSuccess; whichever call comes
	// first fires the callback.
	AckDelayed
	// AckNone makes the Sink driver never acknowledge; only an explicit
	// Acknowledge call by the application fires the callback.
	AckNone
)

// AckFunc acknowledges delivery of the message it is attached to. Calling it
// more than once is safe; only the first call has effect.
type AckFunc func()

// Ackable is implemented by AckMessage[T] for every T. A Sink's driver type
// asserts an incoming item against this interface to apply AckStrategy
// without needing to know the message's body type.
type Ackable interface {
	Acknowledge()
}

// AckMessage wraps a source item with delivery metadata and an idempotent
// acknowledgment callback, letting a Source correlate downstream completion
// with its own at-least-once redelivery bookkeeping (e.g. deleting a queue
// message only once a sink has consumed it).
type AckMessage[T any] struct {
	Body T
	// MessageID is the source's own identifier for this delivery (e.g. a
	// queue receipt handle), opaque to the engine.
	MessageID string
	// SourceMetadata carries source-specific delivery attributes (partition,
	// offset, headers, ...).
	SourceMetadata map[string]string

	ack  AckFunc
	done *int32
}

// NewAckMessage builds an AckMessage whose Acknowledge calls ackFn exactly
// once, regardless of how many times Acknowledge is called.
func NewAckMessage[T any](body T, messageID string, metadata map[string]string, ackFn AckFunc) AckMessage[T] {
	done := int32(0)
	return AckMessage[T]{
		Body:           body,
		MessageID:      messageID,
		SourceMetadata: metadata,
		ack:            ackFn,
		done:           &done,
	}
}

// Acknowledge invokes the underlying ack callback exactly once. Safe to call
// from multiple goroutines and multiple times.
func (m AckMessage[T]) Acknowledge() {
	if m.ack == nil || m.done == nil {
		return
	}
	if atomic.CompareAndSwapInt32(m.done, 0, 1) {
		m.ack()
	}
}

// WithBody returns a new AckMessage carrying newBody but sharing this
// message's acknowledgment callback — used when a Transform produces a
// different type but the original delivery still needs acknowledging once
// the new body reaches a sink.
func WithBody[T, U any](m AckMessage[T], newBody U) AckMessage[U] {
	return AckMessage[U]{
		Body:           newBody,
		MessageID:      m.MessageID,
		SourceMetadata: m.SourceMetadata,
		ack:            m.ack,
		done:           m.done,
	}
}

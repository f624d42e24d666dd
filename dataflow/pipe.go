package dataflow

import "context"

// DataPipe is a lazy sequence of T. Implementations fall into two variants,
// distinguished by Replayable:
//
//   - Materialized / replayable (Replayable() == true): backed by an
//     in-memory collection; Each may be called any number of times.
//   - Streaming (Replayable() == false): single-consumer; Each consumes the
//     underlying source and must not be called twice.
//
// Implementers must stop producing promptly (at the next item boundary)
// when ctx is cancelled, and must report faults through the standard error
// taxonomy in errors.go rather than panicking.
type DataPipe[T any] interface {
	// Each calls fn for every item in the pipe, in order, until the pipe is
	// exhausted, fn returns a non-nil error, or ctx is cancelled. It returns
	// the first error encountered (ctx.Err() on cancellation).
	Each(ctx context.Context, fn func(T) error) error

	// Replayable reports whether Each may be invoked more than once.
	Replayable() bool

	// Name is an optional diagnostic label (e.g. the node id that produced
	// this pipe). May be empty.
	Name() string
}

// slicePipe is the materialized/replayable DataPipe backed by an in-memory
// slice. Constructed with NewMaterializedPipe.
type slicePipe[T any] struct {
	name  string
	items []T
}

// NewMaterializedPipe builds a replayable DataPipe over items already held
// in memory. Each call to Each enumerates the full slice from the start.
func NewMaterializedPipe[T any](name string, items []T) DataPipe[T] {
	return &slicePipe[T]{name: name, items: items}
}

func (p *slicePipe[T]) Each(ctx context.Context, fn func(T) error) error {
	for _, item := range p.items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func (p *slicePipe[T]) Replayable() bool { return true }
func (p *slicePipe[T]) Name() string     { return p.name }

// chanPipe is the single-consumer streaming DataPipe backed by a channel.
// Constructed with NewStreamingPipe; the producer side is the returned
// StreamWriter.
type chanPipe[T any] struct {
	name    string
	ch      <-chan streamItem[T]
	drained bool
}

type streamItem[T any] struct {
	val T
	err error
}

// StreamWriter is the producer handle for a streaming DataPipe created by
// NewStreamingPipe. Send delivers items in order; Close (or CloseWithError)
// must be called exactly once when production ends.
type StreamWriter[T any] struct {
	ch chan<- streamItem[T]
}

// Send delivers item downstream, blocking if the internal buffer is full
// (this is the pipe-level half of edge backpressure — see Edge for the
// bounded-transport half used by the scheduler). Returns ctx.Err() if ctx
// is cancelled before the send completes.
func (w StreamWriter[T]) Send(ctx context.Context, item T) error {
	select {
	case w.ch <- streamItem[T]{val: item}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that production has finished successfully.
func (w StreamWriter[T]) Close() { close(w.ch) }

// CloseWithError signals that production ended in failure; the error is
// surfaced to the single consumer's next Each call.
func (w StreamWriter[T]) CloseWithError(err error) {
	w.ch <- streamItem[T]{err: err}
	close(w.ch)
}

// NewStreamingPipe creates a single-consumer DataPipe and its producer
// handle. capacity bounds the internal buffer; 0 means unbuffered (every
// Send blocks until Each consumes it), which the scheduler uses as one form
// of edge backpressure.
func NewStreamingPipe[T any](name string, capacity int) (DataPipe[T], StreamWriter[T]) {
	ch := make(chan streamItem[T], capacity)
	return &chanPipe[T]{name: name, ch: ch}, StreamWriter[T]{ch: ch}
}

func (p *chanPipe[T]) Each(ctx context.Context, fn func(T) error) error {
	if p.drained {
		return &EngineError{Message: "streaming pipe already consumed: " + p.name, Code: "PIPE_ALREADY_CONSUMED"}
	}
	p.drained = true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-p.ch:
			if !ok {
				return nil
			}
			if item.err != nil {
				return item.err
			}
			if err := fn(item.val); err != nil {
				return err
			}
		}
	}
}

func (p *chanPipe[T]) Replayable() bool { return false }
func (p *chanPipe[T]) Name() string     { return p.name }

// Collect drains pipe into a slice. Intended for tests and for sinks that
// need the whole stream materialized; production sinks should prefer Each.
func Collect[T any](ctx context.Context, pipe DataPipe[T]) ([]T, error) {
	var out []T
	err := pipe.Each(ctx, func(item T) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

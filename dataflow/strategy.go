package dataflow

import "context"

// ItemProcessor is the per-item body an ExecutionStrategy drives. It maps
// one input item to zero or more output items — zero for a filtering
// Transform, more than one for a node that fans a single input into several
// outputs (e.g. a Branch node's per-subscriber copies).
type ItemProcessor func(ctx context.Context, item any) ([]any, error)

// itemSource is the pull side an ExecutionStrategy consumes from: the next
// item, or ok=false once the upstream transport is exhausted.
type itemSource func(ctx context.Context) (item any, ok bool, err error)

// itemSink is the push side an ExecutionStrategy delivers to.
type itemSink func(ctx context.Context, item any) error

// ExecutionStrategy controls how a node's ItemProcessor is invoked against
// its input stream: one at a time, concurrently, or with retry/resilience
// wrapped around either. Strategies compose by wrapping: a Resilient
// strategy typically wraps a Sequential or Parallel one (see
// ResilientStrategy.Inner).
type ExecutionStrategy interface {
	// Run drives body over every item from next until next reports ok=false,
	// ctx is cancelled, or an unrecoverable error occurs. Outputs are
	// delivered to emit in an order the strategy documents.
	Run(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error
}

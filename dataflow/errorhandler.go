package dataflow

import "context"

// NodeErrorDecision is returned by a NodeErrorHandler for a single failed
// item.
type NodeErrorDecision int

const (
	// DecisionFail propagates the error as a RunFailure, stopping the node
	// (and, unless the pipeline handler intervenes, the run).
	DecisionFail NodeErrorDecision = iota
	// DecisionSkip drops the item and continues with the next one.
	DecisionSkip
	// DecisionRetry retries the same item, subject to RetryOptions.
	DecisionRetry
	// DecisionDeadLetter routes the item to the configured DeadLetterSink and
	// continues with the next one.
	DecisionDeadLetter
)

// NodeErrorHandler decides how to handle a single item's processing
// failure. I is the node's input item type; handlers are attached per node
// via Builder.WithErrorHandler.
type NodeErrorHandler[I any] interface {
	HandleItemError(ctx context.Context, item I, err error) NodeErrorDecision
}

// NodeErrorHandlerFunc adapts a plain function to NodeErrorHandler.
type NodeErrorHandlerFunc[I any] func(ctx context.Context, item I, err error) NodeErrorDecision

func (f NodeErrorHandlerFunc[I]) HandleItemError(ctx context.Context, item I, err error) NodeErrorDecision {
	return f(ctx, item, err)
}

// PipelineErrorDecision is returned by a PipelineErrorHandler when a node's
// driver fails outright (its retry/restart budget under the Resilient
// strategy is exhausted, or it failed without resilience at all).
type PipelineErrorDecision int

const (
	// FailPipeline stops the entire run; Run() returns a RunFailure.
	FailPipeline PipelineErrorDecision = iota
	// RestartNode restarts the node's driver from scratch, subject to
	// RetryOptions.MaxNodeRestartAttempts and the materialization cap.
	RestartNode
)

// PipelineErrorHandler decides what happens when a node driver itself
// fails, as opposed to a single item. Registered engine-wide via
// Builder.AddPipelineErrorHandler; the first handler to return a decision
// other than its zero value wins, in registration order.
type PipelineErrorHandler interface {
	HandleNodeFailure(ctx context.Context, nodeID string, err error) PipelineErrorDecision
}

// PipelineErrorHandlerFunc adapts a plain function to PipelineErrorHandler.
type PipelineErrorHandlerFunc func(ctx context.Context, nodeID string, err error) PipelineErrorDecision

func (f PipelineErrorHandlerFunc) HandleNodeFailure(ctx context.Context, nodeID string, err error) PipelineErrorDecision {
	return f(ctx, nodeID, err)
}

// erasedNodeErrorHandler is the type-erased form the scheduler drives;
// typed NodeErrorHandler[I] values are adapted to this via
// wrapNodeErrorHandler at Builder.Build time.
type erasedNodeErrorHandler interface {
	handleErased(ctx context.Context, item any, err error) NodeErrorDecision
}

type erasedNodeErrorHandlerFunc func(ctx context.Context, item any, err error) NodeErrorDecision

func (f erasedNodeErrorHandlerFunc) handleErased(ctx context.Context, item any, err error) NodeErrorDecision {
	return f(ctx, item, err)
}

func wrapNodeErrorHandler[I any](h NodeErrorHandler[I]) erasedNodeErrorHandler {
	if h == nil {
		return nil
	}
	return erasedNodeErrorHandlerFunc(func(ctx context.Context, item any, err error) NodeErrorDecision {
		return h.HandleItemError(ctx, item.(I), err)
	})
}

package dataflow

import "context"

// batchExpander is implemented by unbatcherNode[T] without exposing T.
type batchExpander interface {
	expandErased(in any) []any
}

// runUnbatcherNode flattens each incoming batch back into individual items,
// preserving order within a batch and across batches.
func runUnbatcherNode(ctx context.Context, node Node, in []*transport, out *outgoing, mat *materializer) (int64, error) {
	expander, ok := node.(batchExpander)
	if !ok {
		return 0, &EngineError{Message: "unbatcher node missing expander", Code: "BAD_UNBATCHER", Kind: NodeInitError}
	}
	next := mergedSource(ctx, in, mat)
	var count int64
	for {
		batch, ok, err := next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		for _, item := range expander.expandErased(batch) {
			if err := out.sendAll(ctx, item); err != nil {
				return count, err
			}
			count++
		}
	}
}

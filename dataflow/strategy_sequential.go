package dataflow

import "context"

// SequentialStrategy processes one item at a time, in input order, on the
// node's single driver goroutine. This is the default for every node kind
// unless overridden via Builder.WithExecutionStrategy.
type SequentialStrategy struct{}

// NewSequentialStrategy returns the default, order-preserving strategy.
func NewSequentialStrategy() *SequentialStrategy { return &SequentialStrategy{} }

func (s *SequentialStrategy) Run(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error {
	for {
		item, ok, err := next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		outputs, err := body(ctx, item)
		if err != nil {
			return err
		}
		for _, out := range outputs {
			if err := emit(ctx, out); err != nil {
				return err
			}
		}
	}
}

package dataflow

import (
	"context"
	"time"
)

// aggregateDriver is the full set of methods the Aggregate driver needs
// from an aggregateNode[T, A], beyond the public erasedAggregate contract.
type aggregateDriver interface {
	erasedAggregate
	windowAssigner() WindowAssigner
}

// runAggregateNode folds items into a running accumulator per window,
// emitting the final accumulator once a window's watermark closes it (or,
// for late items past AllowedLateness, per the assigner's LatePolicy).
func runAggregateNode(ctx context.Context, node Node, in []*transport, out *outgoing, mat *materializer) (int64, error) {
	agg, ok := node.(aggregateDriver)
	if !ok {
		return 0, &EngineError{Message: "aggregate node missing driver", Code: "BAD_AGGREGATE", Kind: NodeInitError}
	}
	assigner := agg.windowAssigner()
	next := mergedSource(ctx, in, mat)

	state := make(map[Window]any)
	closed := make(map[Window]bool)
	var count int64

	emitWindow := func(w Window) error {
		acc, ok := state[w]
		if !ok {
			return nil
		}
		delete(state, w)
		if err := out.sendAll(ctx, acc); err != nil {
			return err
		}
		count++
		return nil
	}

	for {
		item, ok, err := next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		ts := eventTimeOf(item)
		windows := assigner.AssignWindows(ts)
		for _, w := range windows {
			if closed[w] {
				switch assigner.OnLate() {
				case LateDrop:
					continue
				case LateEmitImmediately:
					acc := agg.zeroErased()
					acc, foldErr := agg.foldErased(acc, item)
					if foldErr != nil {
						return count, &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: foldErr, CorrelationID: CorrelationID(ctx)}
					}
					if err := out.sendAll(ctx, acc); err != nil {
						return count, err
					}
					count++
				default: // LateSideOutput
					// No side-output sink is wired at the node level, so the
					// late item is dropped, as under LateDrop.
				}
				continue
			}
			acc, ok := state[w]
			if !ok {
				acc = agg.zeroErased()
			}
			acc, err := agg.foldErased(acc, item)
			if err != nil {
				return count, &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: err, CorrelationID: CorrelationID(ctx)}
			}
			state[w] = acc
		}

		for _, w := range assigner.AdvanceWatermark(ts) {
			closed[w] = true
			if err := emitWindow(w); err != nil {
				return count, err
			}
		}
	}

	for w := range state {
		if err := emitWindow(w); err != nil {
			return count, err
		}
	}
	return count, nil
}

func eventTimeOf(item any) time.Time {
	if ts, ok := item.(Timestamped); ok {
		return ts.EventTime()
	}
	return time.Now()
}

package dataflow

import (
	"context"
	"time"
)

// batchOptionsProvider is implemented by batcherNode[T] without exposing T.
type batchOptionsProvider interface {
	batchOptions() BatchOptions
	wrapBatch(items []any) any
}

// runBatcherNode groups incoming items into slices, flushing whenever the
// batch reaches MaxBatchSize or, if set, MaxBatchLatency elapses since the
// batch's first item — whichever comes first. Any remaining partial batch
// is flushed once the input is exhausted.
func runBatcherNode(ctx context.Context, node Node, in []*transport, out *outgoing, mat *materializer) (int64, error) {
	provider, ok := node.(batchOptionsProvider)
	if !ok {
		return 0, &EngineError{Message: "batcher node missing options", Code: "BAD_BATCHER", Kind: NodeInitError}
	}
	opts := provider.batchOptions()
	next := mergedSource(ctx, in, mat)

	var count int64
	batch := newDynamicBatch()
	var flushTimer *time.Timer
	var timerC <-chan time.Time

	flush := func() error {
		if batch.len() == 0 {
			return nil
		}
		if err := out.sendAll(ctx, provider.wrapBatch(batch.drain())); err != nil {
			return err
		}
		count++
		if flushTimer != nil {
			flushTimer.Stop()
			flushTimer = nil
			timerC = nil
		}
		return nil
	}

	items := make(chan itemOrEnd)
	go func() {
		defer close(items)
		for {
			item, ok, err := next(ctx)
			if err != nil {
				items <- itemOrEnd{err: err}
				return
			}
			if !ok {
				return
			}
			items <- itemOrEnd{item: item}
		}
	}()

	for {
		select {
		case v, ok := <-items:
			if !ok {
				return count, flush()
			}
			if v.err != nil {
				_ = flush()
				return count, v.err
			}
			batch.add(v.item)
			if opts.MaxBatchLatency > 0 && flushTimer == nil {
				flushTimer = time.NewTimer(opts.MaxBatchLatency)
				timerC = flushTimer.C
			}
			if opts.MaxBatchSize > 0 && batch.len() >= opts.MaxBatchSize {
				if err := flush(); err != nil {
					return count, err
				}
			}
		case <-timerC:
			timerC = nil
			flushTimer = nil
			if err := flush(); err != nil {
				return count, err
			}
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
}

type itemOrEnd struct {
	item any
	err  error
}

// dynamicBatch accumulates items of a statically-unknown element type,
// erased as any; the node's wrapBatch converts the accumulated slice back
// to a concrete []T before it is sent downstream.
type dynamicBatch struct {
	items []any
}

func newDynamicBatch() *dynamicBatch { return &dynamicBatch{} }
func (b *dynamicBatch) add(item any)  { b.items = append(b.items, item) }
func (b *dynamicBatch) len() int      { return len(b.items) }
func (b *dynamicBatch) drain() []any {
	out := b.items
	b.items = nil
	return out
}

package dataflow

import (
	"container/heap"
	"context"
	"sync"
)

// QueuePolicy controls whether ParallelStrategy restores input order before
// emitting, or emits as soon as each concurrent worker finishes.
type QueuePolicy int

const (
	// Unordered emits results as workers complete, maximizing throughput at
	// the cost of output order matching input order.
	Unordered QueuePolicy = iota
	// Ordered buffers completed results in a reorder heap and emits them in
	// input order. The heap is not bounded: while an earlier item is still
	// being processed, results of later items accumulate in it.
	Ordered
)

// DropPolicy controls what happens when the inflight queue is full and a
// new item arrives from upstream.
type DropPolicy int

const (
	// DropPolicyBlock applies backpressure: the item source is not drained
	// further until a worker frees up room in the queue.
	DropPolicyBlock DropPolicy = iota
	// DropOldest evicts the oldest item still waiting in the queue to make
	// room for the new arrival.
	DropOldest
	// DropNewest discards the newly arrived item, leaving the queue as is.
	DropNewest
)

// ParallelStrategy fans work out across a bounded pool of P worker
// goroutines reading from a bounded inflight queue of depth Q, distinct
// from P: Q governs how many items may be buffered ahead of the workers
// before DropPolicy (or plain backpressure) kicks in, while P governs how
// many of those items are processed concurrently.
type ParallelStrategy struct {
	Concurrency int
	Policy      QueuePolicy
	// QueueDepth bounds the inflight queue. Zero defaults to Concurrency,
	// i.e. no buffering beyond one item per worker.
	QueueDepth int
	// DropPolicy governs what happens when the queue is full. Zero value
	// (DropPolicyBlock) means ordinary backpressure.
	DropPolicy DropPolicy
}

// NewParallelStrategy builds a strategy that runs up to concurrency items
// at once, buffering up to queueDepth items ahead of the worker pool.
// concurrency <= 1 behaves like SequentialStrategy but still pays goroutine
// overhead; callers wanting strict sequential processing should use
// SequentialStrategy instead. queueDepth <= 0 defaults to concurrency.
func NewParallelStrategy(concurrency int, policy QueuePolicy, queueDepth int, dropPolicy DropPolicy) *ParallelStrategy {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ParallelStrategy{Concurrency: concurrency, Policy: policy, QueueDepth: queueDepth, DropPolicy: dropPolicy}
}

func (s *ParallelStrategy) queueDepth() int {
	if s.QueueDepth > 0 {
		return s.QueueDepth
	}
	return s.Concurrency
}

type sequencedResult struct {
	seq     int64
	outputs []any
	err     error
}

// resultHeap orders sequencedResult by seq, ascending; used to drain the
// Ordered policy's reorder buffer in input order.
type resultHeap []sequencedResult

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)         { *h = append(*h, x.(sequencedResult)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func (s *ParallelStrategy) Run(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error {
	if s.Policy == Ordered {
		return s.runOrdered(ctx, next, emit, body)
	}
	return s.runUnordered(ctx, next, emit, body)
}

// enqueue pushes item onto queue according to DropPolicy, returning false if
// the item was dropped instead of queued.
func (s *ParallelStrategy) enqueue(ctx context.Context, queue chan any, item any) bool {
	switch s.DropPolicy {
	case DropNewest:
		select {
		case queue <- item:
			return true
		default:
			return false
		}
	case DropOldest:
		select {
		case queue <- item:
			return true
		default:
		}
		select {
		case <-queue:
		default:
		}
		select {
		case queue <- item:
			return true
		case <-ctx.Done():
			return false
		}
	default: // DropPolicyBlock
		select {
		case queue <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (s *ParallelStrategy) runUnordered(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan any, s.queueDepth())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	hasErr := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	var emitMu sync.Mutex

	wg.Add(s.Concurrency)
	for i := 0; i < s.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for item := range queue {
				outputs, err := body(ctx, item)
				if err != nil {
					setErr(err)
					continue
				}
				emitMu.Lock()
				for _, out := range outputs {
					if err := emit(ctx, out); err != nil {
						setErr(err)
						break
					}
				}
				emitMu.Unlock()
			}
		}()
	}

	func() {
		defer close(queue)
		for {
			item, ok, err := next(ctx)
			if err != nil {
				setErr(err)
				return
			}
			if !ok {
				return
			}
			s.enqueue(ctx, queue, item)
			if hasErr() {
				return
			}
		}
	}()
	wg.Wait()
	return firstErr
}

type queuedItem struct {
	seq  int64
	item any
}

func (s *ParallelStrategy) runOrdered(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan queuedItem, s.queueDepth())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	h := &resultHeap{}
	var nextToEmit int64
	// drainMu keeps a second drain from popping and emitting the next result
	// while the first is still emitting with mu released.
	var drainMu sync.Mutex

	drain := func() error {
		drainMu.Lock()
		defer drainMu.Unlock()
		mu.Lock()
		defer mu.Unlock()
		for h.Len() > 0 && (*h)[0].seq == nextToEmit {
			r := heap.Pop(h).(sequencedResult)
			if r.err != nil && firstErr == nil {
				firstErr = r.err
			}
			nextToEmit++
			if firstErr != nil {
				continue
			}
			for _, out := range r.outputs {
				mu.Unlock()
				err := emit(ctx, out)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	}

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}
	pushResult := func(r sequencedResult) {
		mu.Lock()
		heap.Push(h, r)
		mu.Unlock()
	}

	wg.Add(s.Concurrency)
	for i := 0; i < s.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for qi := range queue {
				outputs, err := body(ctx, qi.item)
				pushResult(sequencedResult{seq: qi.seq, outputs: outputs, err: err})
				if err != nil {
					setErr(err)
				}
				if drainErr := drain(); drainErr != nil {
					setErr(drainErr)
				}
			}
		}()
	}

	var seq int64
	func() {
		defer close(queue)
		for {
			item, ok, err := next(ctx)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if !ok {
				return
			}
			mySeq := seq
			seq++

			// Order must be preserved even for a dropped item: record an
			// empty result at its sequence number so drain() doesn't stall
			// waiting for a seq that will never arrive from a worker.
			if !s.enqueue(ctx, queue, queuedItem{seq: mySeq, item: item}) {
				pushResult(sequencedResult{seq: mySeq})
				_ = drain()
			}

			mu.Lock()
			stop := firstErr != nil
			mu.Unlock()
			if stop {
				return
			}
		}
	}()
	wg.Wait()
	_ = drain()
	return firstErr
}

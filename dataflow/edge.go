package dataflow

import (
	"context"
	"fmt"
)

// Edge declares a connection from one node's output port to another node's
// input port. Most nodes have a single implicit port (""); Branch and Join
// nodes use named ports ("left"/"right" for Join, subscriber names for
// Branch) to disambiguate multiple edges touching the same node.
type Edge struct {
	From     string
	FromPort string
	To       string
	ToPort   string
}

// transport is the bounded, type-erased channel backing a compiled Edge. Its
// capacity is the one knob the scheduler exposes for backpressure: a full
// transport blocks its producer's send until the consumer drains it.
type transport struct {
	from, to         string
	fromPort, toPort string
	ch               chan any
	closed           chan struct{}
	runID            string
	metrics          SchedulerMetrics
}

func newTransport(e Edge, capacity int, runID string, metrics SchedulerMetrics) *transport {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &transport{
		from: e.From, to: e.To,
		fromPort: e.FromPort, toPort: e.ToPort,
		ch:      make(chan any, capacity),
		closed:  make(chan struct{}),
		runID:   runID,
		metrics: metrics,
	}
}

// send delivers item downstream, blocking while the transport is full. It
// returns ctx.Err() on cancellation and a TransportError-kind EngineError if
// the transport was already closed by the producer side. The first attempt
// is non-blocking so a full buffer is reported as a backpressure event
// before send falls back to blocking; queue depth is reported on every
// successful send so SetEdgeQueueDepth tracks real occupancy.
func (t *transport) send(ctx context.Context, item any) error {
	select {
	case t.ch <- item:
		t.metrics.SetEdgeQueueDepth(t.runID, t.from, t.to, len(t.ch))
		return nil
	default:
	}
	t.metrics.IncrementBackpressure(t.runID, t.from)
	select {
	case t.ch <- item:
		t.metrics.SetEdgeQueueDepth(t.runID, t.from, t.to, len(t.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return &EngineError{
			Message: fmt.Sprintf("send on closed transport %s->%s", t.from, t.to),
			Code:    "TRANSPORT_CLOSED",
			Kind:    TransportError,
		}
	}
}

// recv receives the next item, or ok=false once the producer has closed the
// transport and all buffered items are drained.
func (t *transport) recv(ctx context.Context) (item any, ok bool, err error) {
	select {
	case v, open := <-t.ch:
		return v, open, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// close signals no more items will be sent. Safe to call exactly once.
func (t *transport) close() {
	close(t.ch)
	close(t.closed)
}

package dataflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

// nodeExecConfig holds the per-node execution knobs a Builder collects
// before Build assembles the Graph: which ExecutionStrategy drives the
// node's items, its edge capacity override, and its error handling.
type nodeExecConfig struct {
	strategy       ExecutionStrategy
	retry          *RetryOptions
	errorHandler   erasedNodeErrorHandler
	deadLetterSink DeadLetterSink
	edgeCapacity   *int
	subscribers    []string // Branch only: declared port names, in order
	ackStrategy    AckStrategy
	nodeTimeout    time.Duration
	faultPropagation FaultPropagation // Branch only
}

// outgoing groups a node's outbound transports by declared port, so Branch
// can route selectively while every other kind broadcasts to all of them.
type outgoing struct {
	byPort map[string][]*transport
	all    []*transport
}

// sendAll fans item out to every outbound transport independently, so one
// slow or blocked consumer doesn't delay delivery to the others. The first
// delivery error cancels the rest (via a derived context) and is returned
// once every goroutine has settled.
func (o *outgoing) sendAll(ctx context.Context, item any) error {
	if len(o.all) <= 1 {
		for _, t := range o.all {
			if err := t.send(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}

	deliverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	for _, t := range o.all {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.send(deliverCtx, item); err != nil {
				errOnce.Do(func() { firstErr = err })
				cancel()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (o *outgoing) closeAll() {
	for _, t := range o.all {
		t.close()
	}
}

// Run executes the graph once: every node's driver runs concurrently, items
// flow across bounded transports, and Run blocks until every node completes,
// one fails unrecoverably, or ctx is cancelled and the shutdown budget
// elapses. A nil error means every Sink drained successfully.
func (g *Graph) Run(ctx context.Context) error {
	runID := newCorrelationID(nil)
	corrID := newCorrelationID(g.corrIDGen)
	observer := g.observer
	if observer == nil {
		observer = NoopObserver{}
	}
	metrics := g.metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	rs := newRunState(runID, corrID, observer, metrics)
	ctx = withRunIdentity(ctx, runID, corrID)

	transports := make(map[edgeKey]*transport)
	for _, e := range g.edges {
		capacity := g.edgeCapacity
		if cfg, ok := g.nodeConfig[e.From]; ok && cfg.edgeCapacity != nil {
			capacity = *cfg.edgeCapacity
		}
		transports[edgeKey{e.From, e.FromPort, e.To, e.ToPort}] = newTransport(e, capacity, runID, metrics)
	}

	inbound := make(map[string][]*transport)
	outbound := make(map[string]*outgoing)
	for id := range g.nodes {
		outbound[id] = &outgoing{byPort: make(map[string][]*transport)}
	}
	for _, e := range g.edges {
		t := transports[edgeKey{e.From, e.FromPort, e.To, e.ToPort}]
		inbound[e.To] = append(inbound[e.To], t)
		out := outbound[e.From]
		out.all = append(out.all, t)
		out.byPort[e.FromPort] = append(out.byPort[e.FromPort], t)
	}

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range g.order {
		id := id
		node := g.nodes[id]
		cfg := g.nodeConfig[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			nodeCtx := withNodeID(runCtx, id)
			observer.NodeStarted(id, node.Kind())
			rs.adjustInflight(1)
			defer rs.adjustInflight(-1)

			maxRestarts := 0
			if cfg != nil && cfg.retry != nil {
				maxRestarts = cfg.retry.MaxNodeRestartAttempts
			}

			// One materializer per node, created once and reused across
			// restart attempts: it is what lets a RestartNode decision
			// replay items the node already pulled off its inbound
			// transports before failing.
			var mat *materializer
			if cfg != nil && cfg.retry != nil && maxRestarts > 0 && node.Kind() != KindSource {
				mat = newMaterializer(id, cfg.retry.MaxMaterializedItems)
			}

			var count int64
			var err error
			for restarts := 0; ; restarts++ {
				count, err = runNodeDriver(nodeCtx, g, node, cfg, inbound[id], outbound[id], rs, mat)
				if err == nil || IsCancellation(err) {
					break
				}
				decision := FailPipeline
				for _, h := range g.pipelineHandlers {
					decision = h.HandleNodeFailure(nodeCtx, id, err)
					if decision == RestartNode {
						break
					}
				}
				if decision != RestartNode {
					break
				}
				if restarts >= maxRestarts {
					err = &RunFailure{
						NodeID:        id,
						Kind:          ResourceExhaustionError,
						Restarts:      restarts + 1,
						Cause:         errors.Join(ErrMaxRestartsExceeded, err),
						CorrelationID: CorrelationID(nodeCtx),
					}
					break
				}
				observer.NodeRetried(id, restarts+1, err)
				metrics.IncrementRestarts(runID, id)
			}

			outbound[id].closeAll()
			if err != nil && !IsCancellation(err) {
				observer.NodeFailed(id, err)
				rs.recordFailure(id, err)
				cancel()
				return
			}
			observer.NodeCompleted(id, count)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(g.shutdownBudget()):
			cancel()
			<-done
		}
	}

	if err, ok := rs.failure(); ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (g *Graph) shutdownBudget() time.Duration {
	if g.shutdownBudgetDur > 0 {
		return g.shutdownBudgetDur
	}
	return 30 * time.Second
}

type edgeKey struct {
	from, fromPort, to, toPort string
}

// runNodeDriver dispatches to the kind-specific driver loop for node and
// returns the number of items it successfully emitted, for NodeCompleted.
func runNodeDriver(ctx context.Context, g *Graph, node Node, cfg *nodeExecConfig, in []*transport, out *outgoing, rs *runState, mat *materializer) (int64, error) {
	switch node.Kind() {
	case KindSource:
		return runSourceNode(ctx, node, out, rs)
	case KindSink:
		return runSinkNode(ctx, node, cfg, in, rs, mat)
	case KindTransform, KindLookup, KindPassThrough:
		return runErasedRunnerNode(ctx, node, cfg, in, out, rs, mat)
	case KindBranch:
		return runBranchNode(ctx, node, cfg, in, out, rs, mat)
	case KindBatcher:
		return runBatcherNode(ctx, node, in, out, mat)
	case KindUnbatcher:
		return runUnbatcherNode(ctx, node, in, out, mat)
	case KindAggregate:
		return runAggregateNode(ctx, node, in, out, mat)
	case KindJoin:
		return runJoinNode(ctx, node, in, out, mat)
	case KindMarker:
		return 0, nil
	default:
		return 0, &EngineError{Message: "unknown node kind", Code: "UNKNOWN_KIND", Kind: ConfigurationError}
	}
}

func runSourceNode(ctx context.Context, node Node, out *outgoing, rs *runState) (int64, error) {
	src, ok := node.(erasedSource)
	if !ok {
		return 0, &EngineError{Message: "source node missing producer", Code: "BAD_SOURCE", Kind: NodeInitError}
	}
	pipe, err := src.produceErased(ctx)
	if err != nil {
		return 0, &RunFailure{NodeID: node.ID(), Kind: NodeInitError, Cause: err, CorrelationID: CorrelationID(ctx)}
	}
	var count int64
	start := time.Now()
	err = pipe.Each(ctx, func(item any) error {
		rs.observer.ItemProduced(node.ID())
		if sendErr := out.sendAll(ctx, item); sendErr != nil {
			return sendErr
		}
		count++
		rs.observer.ItemEmitted(node.ID(), time.Since(start))
		return nil
	})
	if err != nil {
		return count, &RunFailure{NodeID: node.ID(), Kind: classifyTransportErr(err), Cause: err, CorrelationID: CorrelationID(ctx)}
	}
	return count, nil
}

func runSinkNode(ctx context.Context, node Node, cfg *nodeExecConfig, in []*transport, rs *runState, mat *materializer) (int64, error) {
	sink, ok := node.(erasedSink)
	if !ok {
		return 0, &EngineError{Message: "sink node missing consumer", Code: "BAD_SINK", Kind: NodeInitError}
	}
	strategy := strategyFor(cfg, node.ID(), rs)
	ackStrategy := AckAutoOnSinkSuccess
	if cfg != nil {
		ackStrategy = cfg.ackStrategy
	}
	timeout := time.Duration(0)
	if cfg != nil {
		timeout = cfg.nodeTimeout
	}
	body := func(ctx context.Context, item any) ([]any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		itemStart := time.Now()
		if err := sink.consumeErased(ctx, item); err != nil {
			rs.metrics.RecordItemLatency(rs.runID, node.ID(), time.Since(itemStart), "error")
			return nil, err
		}
		rs.metrics.RecordItemLatency(rs.runID, node.ID(), time.Since(itemStart), "success")
		// AckManual leaves acknowledgment entirely to the application; every
		// other strategy acknowledges automatically once the sink succeeds
		// (AckDelayed's only difference from AckAutoOnSinkSuccess is that it
		// additionally tolerates an earlier explicit call, which Acknowledge
		// already makes idempotent).
		if ackStrategy == AckAutoOnSinkSuccess || ackStrategy == AckDelayed {
			if ackable, ok := item.(Ackable); ok {
				ackable.Acknowledge()
			}
		}
		return nil, nil
	}

	var count int64
	next := mergedSource(ctx, in, mat)
	emit := func(ctx context.Context, item any) error { return nil }
	err := strategy.Run(ctx, func(ctx context.Context) (any, bool, error) {
		item, ok, err := next(ctx)
		if ok {
			count++
		}
		return item, ok, err
	}, emit, body)
	return count, err
}

func runErasedRunnerNode(ctx context.Context, node Node, cfg *nodeExecConfig, in []*transport, out *outgoing, rs *runState, mat *materializer) (int64, error) {
	runner, ok := node.(erasedRunner)
	if !ok {
		return 0, &EngineError{Message: "node missing runner", Code: "BAD_RUNNER", Kind: NodeInitError}
	}
	strategy := strategyFor(cfg, node.ID(), rs)
	timeout := time.Duration(0)
	if cfg != nil {
		timeout = cfg.nodeTimeout
	}
	body := func(ctx context.Context, item any) ([]any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		itemStart := time.Now()
		v, err := runner.runErased(ctx, item)
		if err != nil {
			if errors.Is(err, errLookupSkip) {
				rs.metrics.RecordItemLatency(rs.runID, node.ID(), time.Since(itemStart), "skipped")
				return nil, nil
			}
			rs.metrics.RecordItemLatency(rs.runID, node.ID(), time.Since(itemStart), "error")
			return nil, err
		}
		rs.metrics.RecordItemLatency(rs.runID, node.ID(), time.Since(itemStart), "success")
		return []any{v}, nil
	}

	var count int64
	next := mergedSource(ctx, in, mat)
	start := time.Now()
	err := strategy.Run(ctx, next, func(ctx context.Context, item any) error {
		if err := out.sendAll(ctx, item); err != nil {
			return err
		}
		count++
		rs.observer.ItemEmitted(node.ID(), time.Since(start))
		return nil
	}, body)
	return count, err
}

// strategyFor returns the node's configured ExecutionStrategy, defaulting
// to Sequential, wrapped in a ResilientStrategy when the node declared
// RetryOptions — the breaker and consecutive-failure streak then live for
// the lifetime of the node's driver rather than being rebuilt per item.
func strategyFor(cfg *nodeExecConfig, nodeID string, rs *runState) ExecutionStrategy {
	var base ExecutionStrategy = NewSequentialStrategy()
	if cfg != nil && cfg.strategy != nil {
		base = cfg.strategy
	}
	if cfg == nil || cfg.retry == nil {
		return base
	}
	var sink DeadLetterSink
	if cfg.deadLetterSink != nil {
		sink = cfg.deadLetterSink
	}
	return NewResilientStrategy(base, *cfg.retry, cfg.errorHandler, sink, nodeID, rs.observer, rs.metrics)
}

// materializer buffers the items a restartable node's driver consumes from
// its inbound transports, so that a RestartNode decision can replay them
// instead of silently losing whatever was already pulled off the channel
// when the node failed. It persists across restart attempts: the first call
// to the wrapped source on each attempt replays everything buffered by
// earlier attempts before resuming consumption of new items. A nil *int cap
// means unbounded; a non-nil cap makes the wrapped source fail the node with
// ErrMaterializationCapExceeded rather than growing without bound.
type materializer struct {
	mu      sync.Mutex
	cap     int // -1 means unbounded
	origCap *int
	nodeID  string
	items   []any
}

func newMaterializer(nodeID string, capPtr *int) *materializer {
	c := -1
	if capPtr != nil {
		c = *capPtr
	}
	return &materializer{cap: c, origCap: capPtr, nodeID: nodeID}
}

// capOf returns the *int cap a materializer was built from, for splitting a
// single configured cap across several independent sources (e.g. Join's
// left/right ports).
func capOf(m *materializer) *int {
	if m == nil {
		return nil
	}
	return m.origCap
}

// wrap replays buffered items first (from index 0 of this attempt), then
// pulls fresh items from next, appending each to the buffer.
func (m *materializer) wrap(next itemSource) itemSource {
	if m == nil {
		return next
	}
	pos := 0
	return func(ctx context.Context) (any, bool, error) {
		m.mu.Lock()
		if pos < len(m.items) {
			item := m.items[pos]
			pos++
			m.mu.Unlock()
			return item, true, nil
		}
		m.mu.Unlock()

		item, ok, err := next(ctx)
		if err != nil || !ok {
			return item, ok, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.cap >= 0 && len(m.items) >= m.cap {
			return nil, false, &RunFailure{NodeID: m.nodeID, Kind: ResourceExhaustionError, Cause: ErrMaterializationCapExceeded}
		}
		m.items = append(m.items, item)
		pos++
		return item, true, nil
	}
}

// mergedSource fans multiple inbound transports into a single itemSource,
// draining whichever has an item ready; it returns ok=false only once every
// transport is exhausted. A non-nil mat records every item yielded so a
// later restart of the consuming node can replay it.
func mergedSource(ctx context.Context, in []*transport, mat *materializer) itemSource {
	if len(in) == 1 {
		t := in[0]
		return mat.wrap(func(ctx context.Context) (any, bool, error) {
			return t.recv(ctx)
		})
	}

	type msg struct {
		item any
		ok   bool
		err  error
	}
	out := make(chan msg)
	var wg sync.WaitGroup
	for _, t := range in {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok, err := t.recv(ctx)
				select {
				case out <- msg{item, ok, err}:
				case <-ctx.Done():
					return
				}
				if !ok || err != nil {
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	remaining := len(in)
	return mat.wrap(func(ctx context.Context) (any, bool, error) {
		for {
			if remaining <= 0 {
				return nil, false, nil
			}
			select {
			case m, chOk := <-out:
				if !chOk {
					return nil, false, nil
				}
				if !m.ok || m.err != nil {
					remaining--
					if m.err != nil {
						return nil, false, m.err
					}
					continue
				}
				return m.item, true, nil
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
		}
	})
}

func classifyTransportErr(err error) ErrorKind {
	if IsCancellation(err) {
		return CancellationError
	}
	return TransportError
}

package dataflow

import (
	"context"
	"sync"
)

// FaultPropagation controls how a Branch node reacts when delivery to one
// subscriber port fails.
type FaultPropagation int

const (
	// FaultPropagationAbort cancels every other in-flight delivery for the
	// current item and fails the node. This is the default: it matches the
	// pre-existing sequential-delivery behavior, where one subscriber's
	// error stopped the rest from ever being attempted.
	FaultPropagationAbort FaultPropagation = iota
	// FaultPropagationIsolate lets every other subscriber's delivery
	// complete regardless of one failing; the failure is recorded via
	// SchedulerMetrics.SetBranchSubscriberStats rather than failing the node.
	FaultPropagationIsolate
)

// branchPortState is one subscriber port's delivery bookkeeping for the
// lifetime of a Branch node's driver.
type branchPortState struct {
	completed   int64
	highWater   int
	lastBacklog int
	faulted     bool
}

// branchStats tracks per-subscriber delivery health across every item a
// Branch node routes, reporting it to SchedulerMetrics after each delivery.
type branchStats struct {
	nodeID string
	mu     sync.Mutex
	byPort map[string]*branchPortState
}

func newBranchStats(nodeID string, out *outgoing) *branchStats {
	bs := &branchStats{nodeID: nodeID, byPort: make(map[string]*branchPortState)}
	for p := range out.byPort {
		bs.byPort[p] = &branchPortState{}
	}
	return bs
}

func (bs *branchStats) record(port string, backlog int, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	st, ok := bs.byPort[port]
	if !ok {
		st = &branchPortState{}
		bs.byPort[port] = st
	}
	if backlog > st.highWater {
		st.highWater = backlog
	}
	st.lastBacklog = backlog
	st.faulted = err != nil
	if err == nil {
		st.completed++
	}
}

func (bs *branchStats) flush(rs *runState) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for port, st := range bs.byPort {
		rs.metrics.SetBranchSubscriberStats(rs.runID, bs.nodeID, port, st.lastBacklog, st.highWater, st.completed, st.faulted)
	}
}

// runBranchNode multicasts each input item to a subset of the node's
// declared subscriber ports, as decided by the Branch node's routing
// function. Every declared port has an edge, since ConnectPort declares the
// port and adds its edge together; a routed name the Builder never declared
// fails the node with an UNKNOWN_SUBSCRIBER error.
func runBranchNode(ctx context.Context, node Node, cfg *nodeExecConfig, in []*transport, out *outgoing, rs *runState, mat *materializer) (int64, error) {
	branch, ok := node.(erasedBranch)
	if !ok {
		return 0, &EngineError{Message: "branch node missing router", Code: "BAD_BRANCH", Kind: NodeInitError}
	}
	next := mergedSource(ctx, in, mat)
	fp := FaultPropagationAbort
	if cfg != nil {
		fp = cfg.faultPropagation
	}
	stats := newBranchStats(node.ID(), out)
	var count int64
	for {
		item, ok, err := next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		ports, err := branch.routeErased(ctx, item)
		if err != nil {
			return count, &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: err, CorrelationID: CorrelationID(ctx)}
		}
		if len(ports) > 0 && cfg != nil {
			declared := make(map[string]bool, len(cfg.subscribers))
			for _, s := range cfg.subscribers {
				declared[s] = true
			}
			for _, p := range ports {
				if !declared[p] {
					return count, &EngineError{
						Message: "branch routed to undeclared subscriber " + p,
						Code:    "UNKNOWN_SUBSCRIBER", Kind: ConfigurationError,
					}
				}
			}
		}
		if err := deliverToSubscribers(ctx, out, ports, item, fp, stats, rs); err != nil {
			return count, err
		}
		count++
		rs.observer.ItemEmitted(node.ID(), 0)
	}
}

// deliverToSubscribers sends item to every transport behind the routed
// ports independently — one goroutine per transport — so a slow or
// blocked subscriber no longer stalls delivery to the rest. An empty ports
// list broadcasts to every declared port. Under FaultPropagationAbort, the first delivery error
// cancels the others' context and is returned once every goroutine has
// settled; under FaultPropagationIsolate every delivery runs to completion
// and a failure is only visible through the flushed per-subscriber stats.
func deliverToSubscribers(ctx context.Context, out *outgoing, ports []string, item any, fp FaultPropagation, stats *branchStats, rs *runState) error {
	targets := ports
	if len(targets) == 0 {
		targets = make([]string, 0, len(out.byPort))
		for p := range out.byPort {
			targets = append(targets, p)
		}
	}

	deliverCtx := ctx
	var cancel context.CancelFunc
	if fp == FaultPropagationAbort {
		deliverCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	for _, p := range targets {
		for _, t := range out.byPort[p] {
			p, t := p, t
			wg.Add(1)
			go func() {
				defer wg.Done()
				sendErr := t.send(deliverCtx, item)
				stats.record(p, len(t.ch), sendErr)
				if sendErr != nil {
					errOnce.Do(func() { firstErr = sendErr })
					if fp == FaultPropagationAbort && cancel != nil {
						cancel()
					}
				}
			}()
		}
	}
	wg.Wait()
	stats.flush(rs)

	if fp == FaultPropagationAbort {
		return firstErr
	}
	return nil
}

package dataflow

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// contextKey namespaces values this package stores on a context.Context, so
// they never collide with a caller's own context keys.
type contextKey string

const (
	ctxKeyCorrelationID contextKey = "dataflow.correlationID"
	ctxKeyNodeID        contextKey = "dataflow.nodeID"
	ctxKeyRunID         contextKey = "dataflow.runID"
)

// CorrelationID returns the run's correlation id from ctx, or "" if ctx was
// not produced by this package's scheduler.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyCorrelationID).(string)
	return v
}

// CurrentNodeID returns the id of the node whose body is currently
// executing on ctx, or "" outside of a node body.
func CurrentNodeID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyNodeID).(string)
	return v
}

// RunID returns the scheduler-assigned id for the current Run invocation.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRunID).(string)
	return v
}

func withNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyNodeID, id)
}

func withRunIdentity(ctx context.Context, runID, correlationID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyRunID, runID)
	return context.WithValue(ctx, ctxKeyCorrelationID, correlationID)
}

// newCorrelationID mints a fresh correlation id, defaulting to a random
// UUIDv4 unless a deterministic generator was configured (useful for tests
// that assert on specific ids).
func newCorrelationID(gen func() string) string {
	if gen != nil {
		return gen()
	}
	return uuid.NewString()
}

// runState holds the bookkeeping shared by every node driver during a
// single Run invocation: shared parameters set by the caller, the count of
// node drivers still running, and each node's failure along with the first
// one recorded, all scoped to one Run call.
type runState struct {
	runID         string
	correlationID string
	params        map[string]any
	paramsMu      sync.RWMutex

	observer Observer
	metrics  SchedulerMetrics
	inflight int64

	mu          sync.Mutex
	nodeErrs    map[string]error
	firstErr    error
	firstErrSet bool
}

func newRunState(runID, correlationID string, observer Observer, metrics SchedulerMetrics) *runState {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &runState{
		runID:         runID,
		correlationID: correlationID,
		params:        make(map[string]any),
		observer:      observer,
		metrics:       metrics,
		nodeErrs:      make(map[string]error),
	}
}

// adjustInflight changes the count of node drivers currently running and
// reports the new total to the metrics recorder.
func (rs *runState) adjustInflight(delta int) {
	n := atomic.AddInt64(&rs.inflight, int64(delta))
	rs.metrics.SetInflightNodes(int(n))
}

// Param returns a value set via SetParam, with ok=false if absent.
func (rs *runState) Param(key string) (any, bool) {
	rs.paramsMu.RLock()
	defer rs.paramsMu.RUnlock()
	v, ok := rs.params[key]
	return v, ok
}

// SetParam stores a run-scoped parameter visible to every node via Param.
func (rs *runState) SetParam(key string, value any) {
	rs.paramsMu.Lock()
	defer rs.paramsMu.Unlock()
	rs.params[key] = value
}

// recordFailure stores nodeID's failure and, if this is the first failure
// seen this run, remembers it as the one Run() ultimately returns.
func (rs *runState) recordFailure(nodeID string, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.nodeErrs[nodeID] = err
	if !rs.firstErrSet {
		rs.firstErr = err
		rs.firstErrSet = true
	}
}

func (rs *runState) failure() (error, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.firstErr, rs.firstErrSet
}

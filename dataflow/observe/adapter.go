package observe

import (
	"sync/atomic"
	"time"

	"github.com/coriolis-labs/dataflow"
)

// ObserverAdapter implements dataflow.Observer by turning each lifecycle
// callback into an Event and forwarding it to an Emitter. Seq is assigned
// from a per-adapter counter, since node drivers call these methods
// concurrently and Emitter implementations may reorder or batch.
type ObserverAdapter struct {
	emitter Emitter
	runID   string
	seq     int64
}

// NewObserverAdapter returns a dataflow.Observer that emits every event
// through emitter, tagged with runID.
func NewObserverAdapter(emitter Emitter, runID string) *ObserverAdapter {
	return &ObserverAdapter{emitter: emitter, runID: runID}
}

func (a *ObserverAdapter) next() int64 {
	return atomic.AddInt64(&a.seq, 1)
}

func (a *ObserverAdapter) event(nodeID, msg string, meta map[string]any) Event {
	return Event{
		RunID:  a.runID,
		Seq:    a.next(),
		NodeID: nodeID,
		Msg:    msg,
		Meta:   meta,
		At:     time.Now(),
	}
}

func (a *ObserverAdapter) NodeStarted(nodeID string, kind dataflow.NodeKind) {
	a.emitter.Emit(a.event(nodeID, "node_started", map[string]any{"kind": kind.String()}))
}

func (a *ObserverAdapter) ItemProduced(nodeID string) {
	a.emitter.Emit(a.event(nodeID, "item_produced", nil))
}

func (a *ObserverAdapter) ItemEmitted(nodeID string, elapsed time.Duration) {
	a.emitter.Emit(a.event(nodeID, "item_emitted", map[string]any{"elapsed_ms": elapsed.Milliseconds()}))
}

func (a *ObserverAdapter) NodeRetried(nodeID string, attempt int, cause error) {
	meta := map[string]any{"attempt": attempt}
	if cause != nil {
		meta["cause"] = cause.Error()
	}
	a.emitter.Emit(a.event(nodeID, "node_retried", meta))
}

func (a *ObserverAdapter) NodeFailed(nodeID string, cause error) {
	meta := map[string]any{}
	if cause != nil {
		meta["cause"] = cause.Error()
	}
	a.emitter.Emit(a.event(nodeID, "node_failed", meta))
}

func (a *ObserverAdapter) NodeCompleted(nodeID string, itemCount int64) {
	a.emitter.Emit(a.event(nodeID, "node_completed", map[string]any{"item_count": itemCount}))
}

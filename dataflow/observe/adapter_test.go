package observe

import (
	"errors"
	"testing"
	"time"

	"github.com/coriolis-labs/dataflow"
)

func TestObserverAdapterAssignsMonotonicSeq(t *testing.T) {
	buf := NewBufferedEmitter()
	adapter := NewObserverAdapter(buf, "run-1")

	adapter.NodeStarted("n1", dataflow.KindSource)
	adapter.ItemProduced("n1")
	adapter.ItemEmitted("n1", 5*time.Millisecond)
	adapter.NodeCompleted("n1", 1)

	history := buf.GetHistory("run-1")
	if len(history) != 4 {
		t.Fatalf("expected 4 events, got %d", len(history))
	}
	for i, e := range history {
		if e.Seq != int64(i+1) {
			t.Fatalf("event %d: expected Seq %d, got %d", i, i+1, e.Seq)
		}
	}
	if history[0].Msg != "node_started" || history[0].Meta["kind"] != "Source" {
		t.Fatalf("unexpected first event: %+v", history[0])
	}
}

func TestObserverAdapterCarriesFailureCause(t *testing.T) {
	buf := NewBufferedEmitter()
	adapter := NewObserverAdapter(buf, "run-1")

	adapter.NodeFailed("n1", errors.New("boom"))
	history := buf.GetHistory("run-1")
	if len(history) != 1 {
		t.Fatalf("expected 1 event, got %d", len(history))
	}
	if history[0].Meta["cause"] != "boom" {
		t.Fatalf("expected cause to be carried in Meta, got %+v", history[0].Meta)
	}
}

func TestObserverAdapterRetryIncludesAttempt(t *testing.T) {
	buf := NewBufferedEmitter()
	adapter := NewObserverAdapter(buf, "run-1")

	adapter.NodeRetried("n1", 2, errors.New("transient"))
	history := buf.GetHistory("run-1")
	if history[0].Meta["attempt"] != 2 {
		t.Fatalf("expected attempt=2, got %+v", history[0].Meta)
	}
}

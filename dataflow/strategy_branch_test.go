package dataflow

import (
	"context"
	"testing"
	"time"
)

func TestRunBranchMulticastsToEverySubscriberByDefault(t *testing.T) {
	src := passThroughSource("src", []int{1, 2, 3})
	branch := NewBranch("branch", func(ctx context.Context, v int) []string { return nil })
	a := &collectingSink[int]{}
	b2 := &collectingSink[int]{}

	b := NewBuilder()
	b.AddNode(src)
	b.AddNode(branch)
	b.AddNode(NewSink("a", a.sinkFunc()))
	b.AddNode(NewSink("b", b2.sinkFunc()))
	b.Connect("src", "branch")
	b.ConnectPort("branch", "a", "a", "")
	b.ConnectPort("branch", "b", "b", "")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := a.snapshot(); len(got) != 3 {
		t.Fatalf("expected an empty ports list to broadcast to every declared subscriber, got %v on a", got)
	}
	if got := b2.snapshot(); len(got) != 3 {
		t.Fatalf("expected an empty ports list to broadcast to every declared subscriber, got %v on b", got)
	}
}

// newTestOutgoing builds an outgoing with one transport per named port,
// each with capacity 1 so delivery can be observed without a consumer
// goroutine draining it.
func newTestOutgoing(ports ...string) (*outgoing, map[string]*transport) {
	out := &outgoing{byPort: make(map[string][]*transport)}
	byName := make(map[string]*transport)
	for _, p := range ports {
		tr := newTransport(Edge{From: "branch", FromPort: p, To: p, ToPort: ""}, 1, "run-1", nil)
		out.byPort[p] = []*transport{tr}
		out.all = append(out.all, tr)
		byName[p] = tr
	}
	return out, byName
}

// fillTransport occupies a transport's single buffer slot so its next
// send() must take the blocking path.
func fillTransport(tr *transport) {
	tr.ch <- "occupant"
}

func TestDeliverToSubscribersAbortCancelsSiblingsOnFirstFailure(t *testing.T) {
	out, byName := newTestOutgoing("ok", "broken")
	fillTransport(byName["broken"])

	// A pre-cancelled context makes broken's send fail immediately once it
	// falls to the blocking path (its buffer is full), with no real wait:
	// ok's buffer is empty so its send succeeds on the non-blocking attempt
	// regardless of ctx state.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := newRunState("run-1", "corr-1", NoopObserver{}, nil)
	stats := newBranchStats("branch", out)

	err := deliverToSubscribers(ctx, out, nil, 42, FaultPropagationAbort, stats, rs)
	if err == nil {
		t.Fatal("expected an error from the full, never-drained subscriber's transport")
	}
}

func TestDeliverToSubscribersIsolateDeliversToHealthySubscriberDespiteFailure(t *testing.T) {
	out, byName := newTestOutgoing("ok", "broken")
	fillTransport(byName["broken"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := newRunState("run-1", "corr-1", NoopObserver{}, nil)
	stats := newBranchStats("branch", out)

	err := deliverToSubscribers(ctx, out, nil, 42, FaultPropagationIsolate, stats, rs)
	if err != nil {
		t.Fatalf("expected FaultPropagationIsolate to swallow the failure, got: %v", err)
	}

	select {
	case v := <-byName["ok"].ch:
		if v != 42 {
			t.Fatalf("got %v, want 42", v)
		}
	default:
		t.Fatal("expected the healthy subscriber to receive the item despite the other's failure")
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if !stats.byPort["broken"].faulted {
		t.Fatal("expected the broken subscriber's stats to record a fault")
	}
	if stats.byPort["ok"].completed != 1 {
		t.Fatalf("expected the healthy subscriber's completed count to be 1, got %d", stats.byPort["ok"].completed)
	}
}

func TestDeliverToSubscribersRoutesOnlyToNamedPorts(t *testing.T) {
	out, byName := newTestOutgoing("a", "b")
	rs := newRunState("run-1", "corr-1", NoopObserver{}, nil)
	stats := newBranchStats("branch", out)

	if err := deliverToSubscribers(context.Background(), out, []string{"a"}, "x", FaultPropagationAbort, stats, rs); err != nil {
		t.Fatalf("deliverToSubscribers: %v", err)
	}

	select {
	case <-byName["a"].ch:
	default:
		t.Fatal("expected port a to receive the item")
	}
	select {
	case v := <-byName["b"].ch:
		t.Fatalf("expected port b to receive nothing, got %v", v)
	default:
	}
}

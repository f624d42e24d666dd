package dataflow

import (
	"context"
	"testing"
	"time"
)

func lookupFunc(known map[int]string) LookupFunc[int, string] {
	return func(ctx context.Context, key int) (string, error) {
		v, ok := known[key]
		if !ok {
			return "", ErrLookupMiss
		}
		return v, nil
	}
}

func TestLookupMissFailFailsTheItem(t *testing.T) {
	src := passThroughSource("src", []int{1, 2})
	lookup := NewLookup("lookup", func(v int) int { return v },
		lookupFunc(map[int]string{1: "one"}),
		func(item int, value string) string { return value },
		LookupOptions{OnMiss: LookupMissFail})
	sink := &collectingSink[string]{}

	b := NewBuilder()
	b.AddNode(src)
	b.AddNode(lookup)
	b.AddNode(NewSink("sink", sink.sinkFunc()))
	b.Connect("src", "lookup")
	b.Connect("lookup", "sink")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err == nil {
		t.Fatal("expected Run to fail on an unresolved lookup key")
	}
}

func TestLookupMissSkipDropsTheItem(t *testing.T) {
	src := passThroughSource("src", []int{1, 2, 3})
	lookup := NewLookup("lookup", func(v int) int { return v },
		lookupFunc(map[int]string{1: "one", 3: "three"}),
		func(item int, value string) string { return value },
		LookupOptions{OnMiss: LookupMissSkip})
	sink := &collectingSink[string]{}

	b := NewBuilder()
	b.AddNode(src)
	b.AddNode(lookup)
	b.AddNode(NewSink("sink", sink.sinkFunc()))
	b.Connect("src", "lookup")
	b.Connect("lookup", "sink")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected the missed key to be skipped, got %v", got)
	}
}

func TestLookupMissZeroMergesZeroValue(t *testing.T) {
	src := passThroughSource("src", []int{1, 2})
	lookup := NewLookup("lookup", func(v int) int { return v },
		lookupFunc(map[int]string{1: "one"}),
		func(item int, value string) string { return value },
		LookupOptions{OnMiss: LookupMissZero})
	sink := &collectingSink[string]{}

	b := NewBuilder()
	b.AddNode(src)
	b.AddNode(lookup)
	b.AddNode(NewSink("sink", sink.sinkFunc()))
	b.Connect("src", "lookup")
	b.Connect("lookup", "sink")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected both items through, got %v", got)
	}
	var sawZero bool
	for _, v := range got {
		if v == "" {
			sawZero = true
		}
	}
	if !sawZero {
		t.Fatalf("expected one item merged with the zero value, got %v", got)
	}
}

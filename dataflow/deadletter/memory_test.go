package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/coriolis-labs/dataflow"
)

func TestMemorySinkPersistAndList(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	err := sink.Persist(ctx, dataflow.DeadLetterEnvelope{
		NodeID:           "n1",
		OriginalItem:     map[string]any{"id": 1},
		ExceptionType:    "error",
		ExceptionMessage: "boom",
		Timestamp:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	err = sink.Persist(ctx, dataflow.DeadLetterEnvelope{
		NodeID:           "n2",
		OriginalItem:     "other",
		ExceptionMessage: "also boom",
		Timestamp:        time.Now(),
	})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	t.Run("lists everything with empty nodeID", func(t *testing.T) {
		got, err := sink.List(ctx, "", 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
	})

	t.Run("filters by nodeID", func(t *testing.T) {
		got, err := sink.List(ctx, "n1", 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].NodeID != "n1" {
			t.Fatalf("expected 1 record for n1, got %v", got)
		}
		if got[0].ItemJSON != `{"id":1}` {
			t.Fatalf("expected item to be JSON-encoded, got %q", got[0].ItemJSON)
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		got, err := sink.List(ctx, "", 1)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected limit=1 to cap results, got %d", len(got))
		}
	})

	t.Run("assigns monotonically increasing ids", func(t *testing.T) {
		got, _ := sink.List(ctx, "", 0)
		if got[0].ID != 1 || got[1].ID != 2 {
			t.Fatalf("expected sequential ids, got %d, %d", got[0].ID, got[1].ID)
		}
	})

	t.Run("Clear empties the sink", func(t *testing.T) {
		sink.Clear()
		got, _ := sink.List(ctx, "", 0)
		if len(got) != 0 {
			t.Fatalf("expected empty sink after Clear, got %v", got)
		}
	})
}

package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/coriolis-labs/dataflow"
)

func TestSQLiteSinkPersistAndList(t *testing.T) {
	sink, err := NewSQLiteSink(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	for i, nodeID := range []string{"n1", "n1", "n2"} {
		err := sink.Persist(ctx, dataflow.DeadLetterEnvelope{
			NodeID:           nodeID,
			OriginalItem:     map[string]any{"seq": i},
			ExceptionType:    "error",
			ExceptionMessage: "boom",
			Timestamp:        time.Now(),
		})
		if err != nil {
			t.Fatalf("Persist %d: %v", i, err)
		}
	}

	t.Run("lists all records in insertion order", func(t *testing.T) {
		got, err := sink.List(ctx, "", 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		if got[0].ID >= got[1].ID || got[1].ID >= got[2].ID {
			t.Fatalf("expected ascending ids, got %v", got)
		}
	})

	t.Run("filters by node id", func(t *testing.T) {
		got, err := sink.List(ctx, "n1", 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records for n1, got %d", len(got))
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
}

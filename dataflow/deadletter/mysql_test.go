package deadletter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/coriolis-labs/dataflow"
)

// TestMySQLSink exercises MySQLSink against a real server. Set
// TEST_MYSQL_DSN to run it, e.g.:
//
//	export TEST_MYSQL_DSN="user:password@tcp(localhost:3306)/test_db"
//	go test -run TestMySQLSink ./dataflow/deadletter
func TestMySQLSink(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL sink test: set TEST_MYSQL_DSN to run")
	}

	sink, err := NewMySQLSink(dsn)
	if err != nil {
		t.Fatalf("NewMySQLSink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	err = sink.Persist(ctx, dataflow.DeadLetterEnvelope{
		NodeID:           "mysql-test-node",
		OriginalItem:     map[string]any{"id": 1},
		ExceptionType:    "error",
		ExceptionMessage: "boom",
		Timestamp:        time.Now(),
	})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, err := sink.List(ctx, "mysql-test-node", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one persisted record")
	}
}

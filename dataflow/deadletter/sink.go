// Package deadletter provides dataflow.DeadLetterSink implementations for
// items a node's error handler routed to dead letter instead of retrying
// or failing the pipeline: an in-memory sink for tests, and SQLite/MySQL/
// Postgres sinks for production persistence.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coriolis-labs/dataflow"
)

// Record is the persisted, JSON-friendly form of a dataflow.DeadLetterEnvelope.
// OriginalItem is marshaled to JSON at persist time since the original Go
// type is not available when reading records back.
type Record struct {
	ID               int64  `json:"id"`
	NodeID           string `json:"node_id"`
	ItemJSON         string `json:"item_json"`
	ExceptionType    string `json:"exception_type"`
	ExceptionMessage string `json:"exception_message"`
	StackTrace       string `json:"stack_trace,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
	SourceMetaJSON   string `json:"source_meta_json,omitempty"`
	Timestamp        string `json:"timestamp"`
}

// Querier is implemented by sinks that can list back what they persisted.
// Not every dataflow.DeadLetterSink needs it — a write-only forwarding sink
// (e.g. one that republishes to a message broker) has nothing to list.
type Querier interface {
	List(ctx context.Context, nodeID string, limit int) ([]Record, error)
}

func toRecord(envelope dataflow.DeadLetterEnvelope) (Record, error) {
	itemJSON, err := json.Marshal(envelope.OriginalItem)
	if err != nil {
		return Record{}, fmt.Errorf("deadletter: marshal item: %w", err)
	}
	var metaJSON []byte
	if len(envelope.SourceMetadata) > 0 {
		metaJSON, err = json.Marshal(envelope.SourceMetadata)
		if err != nil {
			return Record{}, fmt.Errorf("deadletter: marshal source metadata: %w", err)
		}
	}
	return Record{
		NodeID:           envelope.NodeID,
		ItemJSON:         string(itemJSON),
		ExceptionType:    envelope.ExceptionType,
		ExceptionMessage: envelope.ExceptionMessage,
		StackTrace:       envelope.StackTrace,
		CorrelationID:    envelope.CorrelationID,
		SourceMetaJSON:   string(metaJSON),
		Timestamp:        envelope.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
	}, nil
}

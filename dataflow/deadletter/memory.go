package deadletter

import (
	"context"
	"sync"

	"github.com/coriolis-labs/dataflow"
)

// MemorySink stores dead-lettered envelopes in memory. Useful for tests and
// for short-lived graphs where losing dead letters on process exit is fine.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// NewMemorySink returns an empty MemorySink. Safe for concurrent use.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Persist(_ context.Context, envelope dataflow.DeadLetterEnvelope) error {
	rec, err := toRecord(envelope)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return nil
}

func (m *MemorySink) List(_ context.Context, nodeID string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if nodeID != "" && r.NodeID != nodeID {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Clear removes every stored record. Intended for test teardown.
func (m *MemorySink) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

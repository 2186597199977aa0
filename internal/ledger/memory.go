package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and local runs. It keeps the same
// append-only contract as the MySQL store: no uniqueness on transaction id.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, rec Record) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, rec)

	return rec.ID, nil
}

// CountByTransaction implements Store.
func (m *Memory) CountByTransaction(_ context.Context, transactionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, rec := range m.records {
		if rec.TransactionID == transactionID {
			count++
		}
	}

	return count, nil
}

// Records returns a copy of every stored record in insertion order.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, len(m.records))
	copy(out, m.records)

	return out
}

package attendance

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger is a map-backed Ledger for standalone kiosks and tests. It
// preserves insertion order so equal-timestamp records keep arrival order.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []Record
	byKey   map[string]int
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byKey: make(map[string]int)}
}

// FindByStudentAndDate returns the record for the dedup key, or nil.
func (m *MemoryLedger) FindByStudentAndDate(_ context.Context, studentID, date string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.byKey[studentID+"|"+date]; ok {
		rec := m.records[i]
		return &rec, nil
	}
	return nil, nil
}

// Insert appends a new record, enforcing the dedup key.
func (m *MemoryLedger) Insert(_ context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPresent
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[rec.Key()]; ok {
		return Record{}, ErrAlreadyPresent
	}
	m.byKey[rec.Key()] = len(m.records)
	m.records = append(m.records, rec)
	return rec, nil
}

// ListByStudent returns one student's records in insertion order.
func (m *MemoryLedger) ListByStudent(_ context.Context, studentID string) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.StudentID == studentID }), nil
}

// ListByDate returns records for one calendar date in insertion order.
func (m *MemoryLedger) ListByDate(_ context.Context, date string) ([]Record, error) {
	return m.filter(func(r Record) bool { return r.Date == date }), nil
}

// ListAll returns every record in insertion order.
func (m *MemoryLedger) ListAll(_ context.Context) ([]Record, error) {
	return m.filter(func(Record) bool { return true }), nil
}

// DeleteAll wipes the ledger.
func (m *MemoryLedger) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.byKey = make(map[string]int)
	return nil
}

func (m *MemoryLedger) filter(keep func(Record) bool) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

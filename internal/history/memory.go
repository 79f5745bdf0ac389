package history

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record // newest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.ID == rec.ID {
			return storageErr("insert "+rec.ID.String(), fmt.Errorf("duplicate id"))
		}
	}

	rec.Timestamp = StoredTime(rec.Timestamp)
	rec.ImageData = clone(rec.ImageData)
	// Insert before the first record that is not newer, so records with
	// equal timestamps list the latest write first.
	i := sort.Search(len(m.records), func(i int) bool {
		return m.records[i].Timestamp.Before(rec.Timestamp) ||
			m.records[i].Timestamp.Equal(rec.Timestamp)
	})
	m.records = append(m.records, Record{})
	copy(m.records[i+1:], m.records[i:])
	m.records[i] = rec
	return nil
}

func (m *MemoryStore) ListAll(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, len(m.records))
	for i, r := range m.records {
		r.ImageData = clone(r.ImageData)
		out[i] = r
	}
	return out, nil
}

func (m *MemoryStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// clone keeps nil and empty apart, as the database does.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

package session

import (
	"context"
	"sync"
)

// MemoryRepository keeps the record in process memory.
type MemoryRepository struct {
	mu  sync.Mutex
	rec Record
}

func (m *MemoryRepository) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

func (m *MemoryRepository) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	m.rec = r
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Clear(context.Context) error {
	m.mu.Lock()
	m.rec = Record{}
	m.mu.Unlock()
	return nil
}

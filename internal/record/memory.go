package record

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is a process-local store for dev and tests.
type Memory struct {
	mu      sync.RWMutex
	records []Student
}

// NewMemory creates an empty store, optionally seeded.
func NewMemory(seed ...Student) *Memory {
	m := &Memory{}
	m.records = append(m.records, seed...)
	return m
}

// Insert appends a copy of s.
func (m *Memory) Insert(ctx context.Context, s Student) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, err
	}
	if err := s.Validate(); err != nil {
		return Student{}, err
	}
	s = stamp(s)
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.records = append(m.records, s)
	m.mu.Unlock()
	return s, nil
}

// ListAll returns records in insertion order.
func (m *Memory) ListAll(ctx context.Context) ([]Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Student, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Package storage persists slice values as one durable key per slice.
package storage

import (
	"context"
	"sync"
)

// Store is the durable backing for the slice store. Persist applies the whole
// batch atomically or not at all.
type Store interface {
	Load(ctx context.Context, keys []string) (map[string][]byte, error)
	Persist(ctx context.Context, values map[string][]byte) error
	Reset(ctx context.Context) error
	Close() error
}

// Memory is an in-process Store used by tests and ephemeral worlds.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Load returns the stored value for each key that exists. Missing keys are
// simply absent from the result.
func (m *Memory) Load(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := m.values[key]; ok {
			out[key] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

func (m *Memory) Persist(ctx context.Context, values map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range values {
		m.values[key] = append([]byte(nil), value...)
	}
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

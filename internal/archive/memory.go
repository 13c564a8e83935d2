package archive

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func NewMemory(prefix string) Store {
	return &memoryStore{prefix: prefix, objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, key string, payload []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	data := make([]byte, len(payload))
	copy(data, payload)

	m.mu.Lock()
	m.objects[joinPrefix(m.prefix, key)] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.objects[joinPrefix(m.prefix, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type noopStore struct{}

// NewNoop discards receipts.
func NewNoop() Store {
	return noopStore{}
}

func (noopStore) Put(context.Context, string, []byte) error { return nil }

func (noopStore) Get(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

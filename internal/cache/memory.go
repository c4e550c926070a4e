package cache

import (
	"context"
	"sync"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// Memory keeps payloads in process memory
type Memory struct {
	mu      sync.RWMutex
	entries map[string]models.RawPayload
}

// NewMemory creates an empty in-memory cache
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.RawPayload)}
}

func (m *Memory) Lookup(_ context.Context, key Key) (models.RawPayload, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[key.String()]
	return p, ok, nil
}

func (m *Memory) Store(_ context.Context, key Key, payload models.RawPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key.String()
	if _, ok := m.entries[k]; ok {
		return nil
	}
	m.entries[k] = append(models.RawPayload(nil), payload...)
	return nil
}

// Len returns the number of stored payloads
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

package media

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is the default Backend: an in-process map, no durability across
// restarts. Grounded on the teacher's artifacts.MemoryRepository, simplified
// since this package has no session/edge metadata to carry.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry)}
}

func (m *Memory) Put(ctx context.Context, id string, data []byte, mimeType string) (string, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.items[id] = entry{Data: cp, MimeType: mimeType, StoredAt: time.Now(), Reference: "mem://" + id}
	m.mu.Unlock()
	return "mem://" + id, nil
}

func (m *Memory) Get(ctx context.Context, id string) ([]byte, string, error) {
	m.mu.RLock()
	e, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("media: id %q not found", id)
	}
	return e.Data, e.MimeType, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	_, ok := m.items[id]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Close() error { return nil }

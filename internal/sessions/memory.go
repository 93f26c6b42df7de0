package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// maxMessagesPerRecord bounds in-memory growth per record; once exceeded,
// the oldest messages are trimmed. Matches the teacher's per-session cap.
const maxMessagesPerRecord = 1000

// MemoryStore is an in-process Store, suited to tests and single-run CLI
// invocations that don't need resume-after-crash.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*Record{}}
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errNilRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneRecord(rec)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	m.records[clone.ID] = clone

	rec.ID = clone.ID
	rec.CreatedAt = clone.CreatedAt
	rec.UpdatedAt = clone.UpdatedAt
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) AppendMessages(ctx context.Context, id string, msgs []message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Messages = append(rec.Messages, msgs...)
	if len(rec.Messages) > maxMessagesPerRecord {
		excess := len(rec.Messages) - maxMessagesPerRecord
		rec.Messages = rec.Messages[excess:]
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetMetadata(ctx context.Context, id string, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	for k, v := range kv {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return []*Record{}, nil
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

func (m *MemoryStore) Close() error { return nil }

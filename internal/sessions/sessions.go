// Package sessions is a supplemental, optional durable store for resuming a
// conversation across process restarts. spec.md's core agent loop (pkg/
// conversation) keeps history in memory only — by design, the core never
// persists state across processes. This package backs cmd/gadgetrun's "run
// --resume" flow: the CLI loads a Record before starting a run and saves one
// after, the core package never imports it.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// ErrNotFound is returned by Get/AppendMessages/SetMetadata when the
// session ID is unknown to the store.
var ErrNotFound = errors.New("sessions: not found")

var errNilRecord = errors.New("sessions: record is required")

// Record is one durable conversation: the run ID that produced it, its full
// message history, and small caller-defined metadata (e.g. the model name
// last used, so a resumed run can default to the same provider).
type Record struct {
	ID        string
	RunID     string
	Messages  []message.Message
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Messages != nil {
		clone.Messages = append([]message.Message(nil), r.Messages...)
	}
	if r.Metadata != nil {
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// ListOptions configures Store.List.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the interface for session persistence. Implementations must be
// safe for concurrent use.
type Store interface {
	// Create inserts a new record. If rec.ID is empty, an ID is generated
	// and written back onto rec.
	Create(ctx context.Context, rec *Record) error
	// Get returns a copy of the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// AppendMessages appends msgs to the record's history and bumps
	// UpdatedAt, or returns ErrNotFound.
	AppendMessages(ctx context.Context, id string, msgs []message.Message) error
	// SetMetadata merges kv into the record's metadata and bumps
	// UpdatedAt, or returns ErrNotFound.
	SetMetadata(ctx context.Context, id string, kv map[string]string) error
	// Delete removes a record. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error
	// List returns records ordered by UpdatedAt descending.
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	// Close releases any resources the store holds (file handles,
	// database connections). Safe to call multiple times.
	Close() error
}

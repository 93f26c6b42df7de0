package media

import (
	"context"

	"github.com/google/uuid"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// MediaStore adapts a Backend to exec.MediaStore. A single Backend method
// named Put cannot satisfy two interfaces with different Put signatures, so
// MediaStore and SpilloverStore are thin wrappers sharing one Backend.
type MediaStore struct {
	backend Backend
}

func NewMediaStore(backend Backend) *MediaStore {
	return &MediaStore{backend: backend}
}

func (m *MediaStore) Put(ctx context.Context, data []byte, mimeType string) (message.MediaHandle, error) {
	id := uuid.NewString()
	reference, err := m.backend.Put(ctx, id, data, mimeType)
	if err != nil {
		return message.MediaHandle{}, err
	}
	return message.MediaHandle{ID: id, MimeType: mimeType, SizeBytes: int64(len(data)), Path: reference}, nil
}

// Get retrieves a previously stored media payload by handle ID. Not part of
// exec.MediaStore (gadgets only write media); nothing in this module calls
// it outside tests.
func (m *MediaStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	return m.backend.Get(ctx, id)
}

// SpilloverStore adapts a Backend to exec.SpilloverStore.
type SpilloverStore struct {
	backend Backend
}

func NewSpilloverStore(backend Backend) *SpilloverStore {
	return &SpilloverStore{backend: backend}
}

func (s *SpilloverStore) Put(ctx context.Context, content string) (string, error) {
	id := uuid.NewString()
	if _, err := s.backend.Put(ctx, id, []byte(content), "text/plain"); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves previously spilled output by ID, the retrieval half of
// exec.SpilloverStore that the GadgetOutputViewer gadget calls to expand a
// stub reference back to its full body.
func (s *SpilloverStore) Get(ctx context.Context, id string) (string, error) {
	data, _, err := s.backend.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

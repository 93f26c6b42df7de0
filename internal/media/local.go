package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Local persists media under a base directory, date-bucketed (YYYY/MM/DD)
// with the file extension chosen from the MIME type, with an on-disk index
// and atomic temp-file-then-rename writes. Grounded on the teacher's
// artifacts.LocalStore almost verbatim. Cleanup removes the directory; the
// agent does not expose or call it, and the directory stays in place until
// Cleanup is called.
type Local struct {
	mu        sync.RWMutex
	basePath  string
	indexPath string
	index     map[string]string // id -> relative path
}

// NewLocal creates (or reopens) a filesystem-backed store rooted at
// basePath. Callers typically pass os.MkdirTemp's result so each agent run
// gets its own directory.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("media: create directory: %w", err)
	}
	s := &Local{
		basePath:  basePath,
		indexPath: filepath.Join(basePath, "index.json"),
		index:     make(map[string]string),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Local) Put(ctx context.Context, id string, data []byte, mimeType string) (string, error) {
	now := time.Now()
	dir := filepath.Join(s.basePath,
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()), fmt.Sprintf("%02d", now.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media: create bucket dir: %w", err)
	}

	filename := id + extensionForMime(mimeType)
	filePath := filepath.Join(dir, filename)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("media: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", fmt.Errorf("media: rename into place: %w", err)
	}

	relPath := filepath.Join(
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()), fmt.Sprintf("%02d", now.Day()), filename)

	s.mu.Lock()
	s.index[id] = relPath
	err := s.persistIndexLocked()
	s.mu.Unlock()
	if err != nil {
		os.Remove(filePath) //nolint:errcheck
		return "", fmt.Errorf("media: persist index: %w", err)
	}
	return "file://" + filePath, nil
}

func (s *Local) Get(ctx context.Context, id string) ([]byte, string, error) {
	s.mu.RLock()
	relPath, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("media: id %q not found", id)
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, relPath))
	if err != nil {
		return nil, "", fmt.Errorf("media: read file: %w", err)
	}
	return data, mimeForExtension(filepath.Ext(relPath)), nil
}

func (s *Local) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	relPath, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(s.basePath, relPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.mu.Lock()
	delete(s.index, id)
	err := s.persistIndexLocked()
	s.mu.Unlock()
	return err
}

func (s *Local) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	relPath, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.basePath, relPath))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Local) Close() error { return nil }

// Cleanup removes the entire backing directory, releasing every media
// payload stored under it. Neither the agent nor the CLI calls it.
func (s *Local) Cleanup() error {
	return os.RemoveAll(s.basePath)
}

func (s *Local) loadIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("media: read index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("media: parse index: %w", err)
	}
	if stored != nil {
		s.index = stored
	}
	return nil
}

func (s *Local) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.indexPath)
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	default:
		return ".dat"
	}
}

func mimeForExtension(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

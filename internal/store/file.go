package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Ensure File implements the interface.
var _ KV = (*File)(nil)

// File persists keys as a single JSON object in one file. Writes go through
// a temp file + rename so a crash never leaves a truncated store behind.
type File struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// NewFile opens (or creates) a file-backed KV at path. The parent directory
// is created if missing. A corrupt or unreadable file is treated as empty.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	f := &File{path: path, data: make(map[string]string)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read store file: %w", err)
		}
		return f, nil
	}
	// Best-effort: a corrupt file starts over empty.
	_ = json.Unmarshal(raw, &f.data)
	return f, nil
}

// Load returns the stored value for key, if any.
func (f *File) Load(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

// Save stores the value for key and rewrites the backing file.
func (f *File) Save(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value

	raw, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// Close is a no-op; Save already flushed everything.
func (f *File) Close() error { return nil }

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fetchkit/pkg/logger"
)

// FileStore persists the session blob as plain JSON on disk
type FileStore struct {
	path   string
	logger logger.Logger
	mu     sync.Mutex
}

// NewFileStore creates a file-backed session store at the given path
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	return &FileStore{
		path:   path,
		logger: logger.GetLogger(),
	}, nil
}

// Load reads the persisted session. Corrupt or stale files are removed so
// the next run starts clean.
func (f *FileStore) Load() (*Blob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.WithError(err).Warn("Failed to read session file")
		}
		return nil, false
	}

	var blob Blob
	if err := json.Unmarshal(content, &blob); err != nil {
		f.logger.WithError(err).Warn("Session file is corrupt, discarding")
		f.remove()
		return nil, false
	}

	if !blob.Valid() {
		f.logger.WithFields(map[string]interface{}{
			"version":  blob.Version,
			"expected": SchemaVersion,
		}).Warn("Session schema mismatch, discarding")
		f.remove()
		return nil, false
	}

	return &blob, true
}

// Save writes the session atomically via a temp file and rename
func (f *FileStore) Save(blob *Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if blob == nil {
		return fmt.Errorf("cannot save nil session")
	}

	// Stamp a copy so the caller's blob is not mutated
	stamped := *blob
	stamped.UpdatedAt = time.Now()

	tempPath := f.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&stamped); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename session file: %w", err)
	}

	return nil
}

// Invalidate removes the persisted session
func (f *FileStore) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// remove deletes the session file best-effort. Caller holds the lock.
func (f *FileStore) remove() {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		f.logger.WithError(err).Warn("Failed to remove session file")
	}
}

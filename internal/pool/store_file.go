package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mohatt/github-api-utils/internal/credential"
)

const lockRetryDelay = 25 * time.Millisecond

// FileStore persists the pool as a single JSON file guarded by advisory
// locks: shared for reads, exclusive for writes. The file is authoritative;
// the store keeps no in-memory copy between calls.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path. The file and its
// parent directories are created lazily on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads a snapshot under a shared lock. A missing or empty file is an
// empty pool.
func (s *FileStore) Load(ctx context.Context) ([]*credential.Credential, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}
	lock := flock.New(s.path)
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("acquire shared pool lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}
	return decode(data)
}

// Update rewrites the file under an exclusive lock: read, transform, truncate,
// write, flush. The lock is released on every exit path.
func (s *FileStore) Update(ctx context.Context, fn func([]*credential.Credential) ([]*credential.Credential, error)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("prepare pool directory: %w", err)
	}
	lock := flock.New(s.path)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("acquire exclusive pool lock: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read pool file: %w", err)
	}
	current, err := decode(data)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	out, err := encode(next)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open pool file: %w", err)
	}
	if _, err := file.Write(out); err != nil {
		file.Close()
		return fmt.Errorf("write pool file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("flush pool file: %w", err)
	}
	return file.Close()
}

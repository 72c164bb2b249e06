package nvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// File is a region persisted as a plain file of exactly Size bytes.
type File struct {
	*buffer
	path string

	mu     sync.Mutex
	closed bool
}

// OpenFile opens the region stored at path, creating its directory if
// needed. A missing file reads as erased; the file itself is first written
// on Commit.
func OpenFile(path string, size int) (*File, error) {
	buf, err := newBuffer(size)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating region directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		buf.load(data)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading region file: %w", err)
	}

	return &File{buffer: buf, path: path}, nil
}

// Path returns the region file path.
func (f *File) Path() string { return f.path }

// Commit replaces the region file with the current shadow. The new content
// is written to a temporary file in the same directory and renamed over the
// old one, so a crash leaves either the old or the new image.
func (f *File) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	data := f.snapshot()
	dir, base := filepath.Split(f.path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary region file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("writing region file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("syncing region file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing region file: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("setting region file permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing region file: %w", err)
	}
	return nil
}

// Erase resets every byte to 0xFF and commits.
func (f *File) Erase() error {
	f.erase()
	return f.Commit()
}

// Close marks the region closed. Uncommitted writes are discarded.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

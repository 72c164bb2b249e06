package nvstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// erasedByte is the value of every byte of a region that was never written.
const erasedByte = 0xFF

// buffer is the in-memory shadow shared by every backend.
type buffer struct {
	mu   sync.RWMutex
	data []byte
}

func newBuffer(size int) (*buffer, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &buffer{data: bytes.Repeat([]byte{erasedByte}, size)}, nil
}

// Size returns the region size in bytes.
func (b *buffer) Size() int {
	return len(b.data)
}

// ReadAt follows io.ReaderAt: a read running past the end returns the bytes
// available and io.EOF.
func (b *buffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if off < 0 || off > int64(len(b.data)) {
		return 0, fmt.Errorf("%w: read at %d, size %d", ErrOutOfRange, off, len(b.data))
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt changes the shadow only. Writes that do not fit are rejected
// whole.
func (b *buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return 0, fmt.Errorf("%w: write of %d bytes at %d, size %d", ErrOutOfRange, len(p), off, len(b.data))
	}
	return copy(b.data[off:], p), nil
}

func (b *buffer) snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bytes.Clone(b.data)
}

// load replaces the shadow with stored bytes. A shorter stored region leaves
// the tail erased; a longer one is truncated.
func (b *buffer) load(stored []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(b.data, stored)
	for i := n; i < len(b.data); i++ {
		b.data[i] = erasedByte
	}
}

func (b *buffer) erase() {
	b.load(nil)
}

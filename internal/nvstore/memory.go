package nvstore

import "sync/atomic"

// Memory is a volatile region. It is what the daemon uses when no storage
// is configured, and what tests use in place of flash.
type Memory struct {
	*buffer
	commits atomic.Int64
}

// NewMemory returns an erased region of size bytes.
func NewMemory(size int) (*Memory, error) {
	buf, err := newBuffer(size)
	if err != nil {
		return nil, err
	}
	return &Memory{buffer: buf}, nil
}

// Commit records the commit and returns nil.
func (m *Memory) Commit() error {
	m.commits.Add(1)
	return nil
}

// Commits returns how many times Commit was called.
func (m *Memory) Commits() int {
	return int(m.commits.Load())
}

// Erase resets every byte to 0xFF.
func (m *Memory) Erase() error {
	m.erase()
	return m.Commit()
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

package source

import (
	"io"
	"sync"
)

// Memory is a growable in-memory Source.
type Memory struct {
	mu sync.RWMutex
	b  []byte
}

// NewMemory returns a Memory that takes ownership of b.
func NewMemory(b []byte) *Memory {
	return &Memory{b: b}
}

func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.b))
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 {
		return 0, ErrOffset
	}
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off, growing the buffer with zeroes as necessary.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 {
		return 0, ErrOffset
	}
	if end := off + int64(len(p)); end > int64(len(m.b)) {
		if end > int64(cap(m.b)) {
			c := 2 * int64(cap(m.b))
			if c < end {
				c = end
			}
			b := make([]byte, len(m.b), c)
			copy(b, m.b)
			m.b = b
		}
		old := len(m.b)
		m.b = m.b[:end]
		clear(m.b[old:])
	}
	return copy(m.b[off:], p), nil
}

// Bytes returns a copy of the contents.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.b...)
}

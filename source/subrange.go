package source

import (
	"io"
)

// Subrange restricts a parent Source to a fixed window. It holds no bytes of
// its own.
type Subrange struct {
	*io.SectionReader
	parent Source
	base   int64
}

// NewSubrange returns a view of length bytes of parent starting at base.
func NewSubrange(parent Source, base, length int64) *Subrange {
	if base < 0 {
		base = 0
	}
	if length < 0 {
		length = 0
	}
	return &Subrange{
		SectionReader: io.NewSectionReader(parent, base, length),
		parent:        parent,
		base:          base,
	}
}

// Base returns the offset of the window within the parent.
func (s *Subrange) Base() int64 {
	return s.base
}

// WriteAt writes p into the window. Writes that would leave the window fail.
func (s *Subrange) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.Size() {
		return 0, ErrOffset
	}
	return s.parent.WriteAt(p, s.base+off)
}

package source

import "io"

// Zero is a read-only Source of the given length whose bytes are all zero.
// It backs sparse regions of remapped images.
type Zero int64

func (z Zero) Size() int64 {
	return int64(z)
}

func (z Zero) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrOffset
	}
	if off >= int64(z) {
		return 0, io.EOF
	}
	n := len(p)
	if remaining := int64(z) - off; int64(n) > remaining {
		n = int(remaining)
	}
	clear(p[:n])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (Zero) WriteAt([]byte, int64) (int, error) {
	return 0, ErrReadOnly
}

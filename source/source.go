/*
Package source implements random-access byte storage shared by the container
parsers. A Source is a sized io.ReaderAt that can also be written to; reads that
run past the end return the bytes that exist rather than failing.
*/
package source

import (
	"errors"
	"io"

	"go4.org/readerutil"
)

var (
	// ErrReadOnly is returned when writing to a Source that was opened read-only.
	ErrReadOnly = errors.New("source: read-only")
	// ErrOffset is returned for negative offsets and writes outside a window.
	ErrOffset = errors.New("source: offset out of range")
)

// Source is uniform random-access storage.
type Source interface {
	readerutil.SizeReaderAt
	io.WriterAt
}

// ReadRange returns up to n bytes of s starting at off. Reading past the end
// of s returns fewer bytes and no error.
func ReadRange(s Source, off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, ErrOffset
	}
	if remaining := s.Size() - off; remaining < int64(n) {
		if remaining <= 0 {
			return []byte{}, nil
		}
		n = int(remaining)
	}
	b := make([]byte, n)
	k, err := s.ReadAt(b, off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return b[:k], err
}

// WriteRange writes all of p to s at off.
func WriteRange(s Source, off int64, p []byte) error {
	if off < 0 {
		return ErrOffset
	}
	n, err := s.WriteAt(p, off)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// Bytes reads the whole of s.
func Bytes(s Source) ([]byte, error) {
	return ReadRange(s, 0, int(s.Size()))
}

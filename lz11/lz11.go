/*
Package lz11 implements a decompressor for the LZ11 variant of LZSS used to
compress archives and other assets on the console.

A stream starts with the tag byte 0x11 and a 24-bit little-endian
decompressed size, or a zero 24-bit field followed by a 32-bit size. The rest
is groups of a flag byte followed by eight tokens, most significant flag bit
first. A clear bit is a literal byte, a set bit a back-reference whose first
nibble selects one of three length encodings.
*/
package lz11

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nebula-modding/nebfs/buffer"
)

const (
	// Tag is the first byte of an LZ11 stream.
	Tag = 0x11

	// MaxSize is the largest decompressed size accepted.
	MaxSize = 0x800000
)

var (
	// ErrUnsupported is returned for streams that do not start with Tag.
	ErrUnsupported = errors.New("lz11: unsupported compression type")
	// ErrSize is returned when the declared size is zero or exceeds MaxSize.
	ErrSize = errors.New("lz11: bad decompressed size")
	// ErrDisplacement is returned for a back-reference before the start of
	// the output.
	ErrDisplacement = errors.New("lz11: displacement out of range")
)

// IsCompressed reports whether b looks like the start of an LZ11 stream.
func IsCompressed(b []byte) bool {
	return len(b) >= 4 && b[0] == Tag
}

type reader struct {
	r   io.ByteReader
	err error
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	c, err := r.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("lz11: %w", err)
	}
	return c
}

func (r *reader) uint(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(r.byte()) << (8 * i)
	}
	return v
}

// Decompress reads one LZ11 stream from r. On any error no output is
// returned.
func Decompress(r io.ByteReader) ([]byte, error) {
	br := &reader{r: r}

	if t := br.byte(); br.err != nil {
		return nil, br.err
	} else if t != Tag {
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupported, t)
	}

	size := br.uint(3)
	if size == 0 {
		size = br.uint(4)
	}
	if br.err != nil {
		return nil, br.err
	}
	if size == 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrSize, size)
	}

	out := make([]byte, 0, size)
	end := int(size)

	for len(out) < end {
		flags := br.byte()
		for bit := 7; bit >= 0 && len(out) < end; bit-- {
			if flags&(1<<bit) == 0 {
				out = append(out, br.byte())
				if br.err != nil {
					return nil, br.err
				}
				continue
			}

			var length, disp int

			token := br.byte()
			switch token >> 4 {
			case 0:
				b1, b2 := br.byte(), br.byte()
				length = (int(token)<<4 | int(b1)>>4) + 0x11
				disp = int(b1&0xf)<<8 | int(b2)
			case 1:
				b1, b2, b3 := br.byte(), br.byte(), br.byte()
				length = (int(token&0xf)<<12 | int(b1)<<4 | int(b2)>>4) + 0x111
				disp = int(b2&0xf)<<8 | int(b3)
			default:
				b1 := br.byte()
				length = int(token>>4) + 1
				disp = int(token&0xf)<<8 | int(b1)
			}
			if br.err != nil {
				return nil, br.err
			}
			if disp >= len(out) {
				return nil, fmt.Errorf("%w: %d with %d bytes produced", ErrDisplacement, disp, len(out))
			}

			// Source and destination may overlap so copy one byte at a time.
			for i := 0; i < length; i++ {
				if len(out) == end {
					break
				}
				out = append(out, out[len(out)-disp-1])
			}
		}
		if br.err != nil {
			return nil, br.err
		}
	}

	return out, nil
}

// DecompressBytes decompresses an LZ11 stream held in memory.
func DecompressBytes(b []byte) ([]byte, error) {
	return Decompress(bytes.NewReader(b))
}

// DecompressBuffer decompresses the stream at the cursor of b into a new
// Buffer.
func DecompressBuffer(b *buffer.Buffer) (*buffer.Buffer, error) {
	out, err := Decompress(b)
	if err != nil {
		return nil, err
	}
	return buffer.FromBytes(out), nil
}

// NewReader decompresses the stream read from r and returns a reader over
// the plaintext.
func NewReader(r io.Reader) (*bytes.Reader, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	out, err := Decompress(br)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out), nil
}

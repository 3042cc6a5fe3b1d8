/*
Package buffer implements a seekable cursor over a source.Source with typed
scalar and string I/O and a struct-like format mini-language for fixed layout
records.

Reads that run past the end of the data return zero values and still advance
the cursor, so truncated files decode to partial records instead of failing.
A Buffer is not safe for concurrent use.
*/
package buffer

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"

	"github.com/nebula-modding/nebfs/source"
)

// Buffer is a cursor over a source.Source.
type Buffer struct {
	src    source.Source
	pos    int64
	order  binary.ByteOrder
	logger *slog.Logger
}

// New returns a little-endian Buffer positioned at the start of src.
func New(src source.Source) *Buffer {
	return &Buffer{
		src:    src,
		order:  binary.LittleEndian,
		logger: slog.Default(),
	}
}

// FromBytes returns a Buffer over an in-memory source that takes ownership of
// b and grows on writes past its end.
func FromBytes(b []byte) *Buffer {
	return New(source.NewMemory(b))
}

// SetSource rebinds the Buffer to src and rewinds it.
func (b *Buffer) SetSource(src source.Source) {
	b.src = src
	b.pos = 0
}

func (b *Buffer) Source() source.Source {
	return b.src
}

// SetLogger sets the logger used to report format errors.
func (b *Buffer) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// SetBigEndian selects the byte order of multi-byte reads and writes.
func (b *Buffer) SetBigEndian(big bool) {
	if big {
		b.order = binary.BigEndian
	} else {
		b.order = binary.LittleEndian
	}
}

func (b *Buffer) BigEndian() bool {
	return b.order == binary.BigEndian
}

// Offset returns the cursor position.
func (b *Buffer) Offset() int64 {
	return b.pos
}

// Len returns the size of the underlying data.
func (b *Buffer) Len() int64 {
	if b.src == nil {
		return 0
	}
	return b.src.Size()
}

// AtEnd reports whether the cursor is at or beyond the end of the data.
func (b *Buffer) AtEnd() bool {
	return b.pos >= b.Len()
}

// Goto moves the cursor to an absolute position. Negative positions clamp to
// zero.
func (b *Buffer) Goto(pos int64) {
	if pos < 0 {
		pos = 0
	}
	b.pos = pos
}

// Skip moves the cursor relative to its current position, clamping at zero.
func (b *Buffer) Skip(n int64) {
	b.Goto(b.pos + n)
}

// Seek implements io.Seeker. Unlike Goto, it refuses negative results.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	default:
		return 0, errInvalidWhence
	case io.SeekStart:
		break
	case io.SeekCurrent:
		offset += b.pos
	case io.SeekEnd:
		offset += b.Len()
	}
	if offset < 0 {
		return 0, errNegativeOffset
	}
	b.pos = offset
	return offset, nil
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.AtEnd() {
		return 0, io.EOF
	}
	n, err := b.src.ReadAt(p, b.pos)
	b.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadByte implements io.ByteReader. Unlike ReadU8 it reports the end of the
// data.
func (b *Buffer) ReadByte() (byte, error) {
	if b.AtEnd() {
		return 0, io.EOF
	}
	var p [1]byte
	b.fill(p[:], true)
	return p[0], nil
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// fill reads len(p) bytes at the cursor, leaving zeroes where the data ends.
func (b *Buffer) fill(p []byte, advance bool) {
	clear(p)
	if b.src != nil {
		n, _ := b.src.ReadAt(p, b.pos)
		clear(p[n:])
	}
	if advance {
		b.pos += int64(len(p))
	}
}

func (b *Buffer) write(p []byte) error {
	if b.src == nil {
		b.src = source.NewMemory(nil)
	}
	if err := source.WriteRange(b.src, b.pos, p); err != nil {
		return err
	}
	b.pos += int64(len(p))
	return nil
}

// ReadBytes returns up to n bytes at the cursor and advances it by n.
func (b *Buffer) ReadBytes(n int) []byte {
	if b.src == nil || n <= 0 {
		return []byte{}
	}
	p, _ := source.ReadRange(b.src, b.pos, n)
	b.pos += int64(n)
	return p
}

// WriteBytes writes p at the cursor.
func (b *Buffer) WriteBytes(p []byte) error {
	return b.write(p)
}

func (b *Buffer) ReadU8() uint8 {
	var p [1]byte
	b.fill(p[:], true)
	return p[0]
}

func (b *Buffer) PeekU8() uint8 {
	var p [1]byte
	b.fill(p[:], false)
	return p[0]
}

func (b *Buffer) ReadI8() int8 {
	return int8(b.ReadU8())
}

func (b *Buffer) PeekI8() int8 {
	return int8(b.PeekU8())
}

func (b *Buffer) ReadU16() uint16 {
	var p [2]byte
	b.fill(p[:], true)
	return b.order.Uint16(p[:])
}

func (b *Buffer) PeekU16() uint16 {
	var p [2]byte
	b.fill(p[:], false)
	return b.order.Uint16(p[:])
}

func (b *Buffer) ReadI16() int16 {
	return int16(b.ReadU16())
}

func (b *Buffer) PeekI16() int16 {
	return int16(b.PeekU16())
}

func (b *Buffer) ReadU32() uint32 {
	var p [4]byte
	b.fill(p[:], true)
	return b.order.Uint32(p[:])
}

func (b *Buffer) PeekU32() uint32 {
	var p [4]byte
	b.fill(p[:], false)
	return b.order.Uint32(p[:])
}

func (b *Buffer) ReadI32() int32 {
	return int32(b.ReadU32())
}

func (b *Buffer) PeekI32() int32 {
	return int32(b.PeekU32())
}

func (b *Buffer) ReadU64() uint64 {
	var p [8]byte
	b.fill(p[:], true)
	return b.order.Uint64(p[:])
}

func (b *Buffer) PeekU64() uint64 {
	var p [8]byte
	b.fill(p[:], false)
	return b.order.Uint64(p[:])
}

func (b *Buffer) ReadI64() int64 {
	return int64(b.ReadU64())
}

func (b *Buffer) PeekI64() int64 {
	return int64(b.PeekU64())
}

func (b *Buffer) ReadF32() float32 {
	return math.Float32frombits(b.ReadU32())
}

func (b *Buffer) PeekF32() float32 {
	return math.Float32frombits(b.PeekU32())
}

func (b *Buffer) ReadF64() float64 {
	return math.Float64frombits(b.ReadU64())
}

func (b *Buffer) PeekF64() float64 {
	return math.Float64frombits(b.PeekU64())
}

func (b *Buffer) WriteU8(v uint8) error {
	return b.write([]byte{v})
}

func (b *Buffer) WriteI8(v int8) error {
	return b.WriteU8(uint8(v))
}

func (b *Buffer) WriteU16(v uint16) error {
	var p [2]byte
	b.order.PutUint16(p[:], v)
	return b.write(p[:])
}

func (b *Buffer) WriteI16(v int16) error {
	return b.WriteU16(uint16(v))
}

func (b *Buffer) WriteU32(v uint32) error {
	var p [4]byte
	b.order.PutUint32(p[:], v)
	return b.write(p[:])
}

func (b *Buffer) WriteI32(v int32) error {
	return b.WriteU32(uint32(v))
}

func (b *Buffer) WriteU64(v uint64) error {
	var p [8]byte
	b.order.PutUint64(p[:], v)
	return b.write(p[:])
}

func (b *Buffer) WriteI64(v int64) error {
	return b.WriteU64(uint64(v))
}

func (b *Buffer) WriteF32(v float32) error {
	return b.WriteU32(math.Float32bits(v))
}

func (b *Buffer) WriteF64(v float64) error {
	return b.WriteU64(math.Float64bits(v))
}

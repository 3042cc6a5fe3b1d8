package buffer

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrFormat is returned when a format string contains an unknown code or
	// Pack is given a value that does not fit its code.
	ErrFormat = errors.New("buffer: bad format")

	errInvalidWhence  = errors.New("buffer: invalid whence")
	errNegativeOffset = errors.New("buffer: negative position")
)

// Format codes understood by Unpack and Pack:
//
//	b B  int8 uint8
//	h H  int16 uint16
//	i I  int32 uint32
//	q Q  int64 uint64
//	f d  float32 float64
//	x    one pad byte, no value
//
// A leading '<' or '>' forces little or big endian for that call only. A
// decimal count before a code repeats it; a count of zero is read as one.
var widths = map[byte]int{
	'b': 1, 'B': 1,
	'h': 2, 'H': 2,
	'i': 4, 'I': 4,
	'q': 8, 'Q': 8,
	'f': 4, 'd': 8,
	'x': 1,
}

type item struct {
	code  byte
	count int
}

// parse splits format into its endianness override and repeated codes. On an
// unknown code it returns the items before it along with the error.
func parse(format string) (order byte, items []item, err error) {
	if len(format) > 0 && (format[0] == '<' || format[0] == '>') {
		order, format = format[0], format[1:]
	}

	count := -1
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c >= '0' && c <= '9' {
			if count < 0 {
				count = 0
			}
			count = count*10 + int(c-'0')
			continue
		}
		if _, ok := widths[c]; !ok {
			return order, items, fmt.Errorf("%w: unknown code %q at %d", ErrFormat, c, i)
		}
		// An omitted or zero count means one
		if count <= 0 {
			count = 1
		}
		items = append(items, item{code: c, count: count})
		count = -1
	}
	return order, items, nil
}

// withOrder applies an endianness override and returns a func restoring the
// previous one.
func (b *Buffer) withOrder(order byte) func() {
	saved := b.order
	switch order {
	case '<':
		b.SetBigEndian(false)
	case '>':
		b.SetBigEndian(true)
	}
	return func() { b.order = saved }
}

// Unpack decodes values at the cursor according to format. Values are
// returned as the Go type matching each code. Decoding stops with
// io.ErrUnexpectedEOF before any value that would run past the end of the
// data, and with ErrFormat at an unknown code; in both cases the values
// decoded so far are returned.
func (b *Buffer) Unpack(format string) ([]any, error) {
	order, items, perr := parse(format)
	defer b.withOrder(order)()

	var values []any
	for _, it := range items {
		for i := 0; i < it.count; i++ {
			if b.pos+int64(widths[it.code]) > b.Len() {
				return values, io.ErrUnexpectedEOF
			}
			switch it.code {
			case 'b':
				values = append(values, b.ReadI8())
			case 'B':
				values = append(values, b.ReadU8())
			case 'h':
				values = append(values, b.ReadI16())
			case 'H':
				values = append(values, b.ReadU16())
			case 'i':
				values = append(values, b.ReadI32())
			case 'I':
				values = append(values, b.ReadU32())
			case 'q':
				values = append(values, b.ReadI64())
			case 'Q':
				values = append(values, b.ReadU64())
			case 'f':
				values = append(values, b.ReadF32())
			case 'd':
				values = append(values, b.ReadF64())
			case 'x':
				b.Skip(1)
			}
		}
	}

	if perr != nil {
		b.logger.Error("unpack", "format", format, "error", perr)
	}
	return values, perr
}

// Pack encodes values at the cursor according to format. Integer codes take
// any Go integer type and keep the low bits. Float codes take any float or
// integer type. Pad codes only move the cursor, leaving the bytes under them
// untouched. Like Unpack, an unknown code stops the call after everything
// before it has been written.
func (b *Buffer) Pack(format string, values ...any) error {
	order, items, perr := parse(format)
	defer b.withOrder(order)()

	next := 0
	for _, it := range items {
		for i := 0; i < it.count; i++ {
			if it.code == 'x' {
				b.Skip(1)
				continue
			}
			if next >= len(values) {
				err := fmt.Errorf("%w: %d values for %q", ErrFormat, len(values), format)
				b.logger.Error("pack", "format", format, "error", err)
				return err
			}
			if err := b.packOne(it.code, values[next]); err != nil {
				b.logger.Error("pack", "format", format, "index", next, "error", err)
				return err
			}
			next++
		}
	}

	if perr != nil {
		b.logger.Error("pack", "format", format, "error", perr)
	}
	return perr
}

func (b *Buffer) packOne(code byte, v any) error {
	if code == 'f' || code == 'd' {
		f, ok := float(v)
		if !ok {
			return fmt.Errorf("%w: %T for %q", ErrFormat, v, code)
		}
		if code == 'f' {
			return b.WriteF32(float32(f))
		}
		return b.WriteF64(f)
	}

	u, ok := integer(v)
	if !ok {
		return fmt.Errorf("%w: %T for %q", ErrFormat, v, code)
	}
	switch code {
	case 'b', 'B':
		return b.WriteU8(uint8(u))
	case 'h', 'H':
		return b.WriteU16(uint16(u))
	case 'i', 'I':
		return b.WriteU32(uint32(u))
	default:
		return b.WriteU64(u)
	}
}

// integer returns the two's complement bits of any integer value.
func integer(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func float(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if u, ok := integer(v); ok {
		switch v.(type) {
		case uint, uint8, uint16, uint32, uint64, uintptr, bool:
			return float64(u), true
		}
		return float64(int64(u)), true
	}
	return math.NaN(), false
}

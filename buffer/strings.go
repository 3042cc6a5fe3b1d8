package buffer

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Encoding selects how strings are stored.
type Encoding int

const (
	// ASCII strings are one byte per character.
	ASCII Encoding = iota
	// UTF8 strings are variable width. Lengths count bytes.
	UTF8
	// UTF16 strings use the Buffer's byte order. Lengths count 16-bit units.
	UTF16
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ascii"
	case UTF8:
		return "utf-8"
	case UTF16:
		return "utf-16"
	}
	return "unknown"
}

func (b *Buffer) utf16() encoding.Encoding {
	if b.BigEndian() {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// ReadString reads a string at the cursor. With n < 0 it reads up to and
// including a NUL terminator. Otherwise it reads at most n units, stopping
// early after a NUL. Invalid sequences decode as U+FFFD.
func (b *Buffer) ReadString(enc Encoding, n int) string {
	if enc == UTF16 {
		return b.readUTF16(n)
	}

	var raw []byte
	for i := 0; n < 0 || i < n; i++ {
		if n < 0 && b.AtEnd() {
			break
		}
		c := b.ReadU8()
		if c == 0 {
			break
		}
		raw = append(raw, c)
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

func (b *Buffer) readUTF16(n int) string {
	var raw []byte
	for i := 0; n < 0 || i < n; i++ {
		if n < 0 && b.AtEnd() {
			break
		}
		p := b.ReadBytes(2)
		if len(p) < 2 {
			p = append(p, make([]byte, 2-len(p))...)
		}
		if p[0] == 0 && p[1] == 0 {
			break
		}
		raw = append(raw, p...)
	}
	s, err := b.utf16().NewDecoder().Bytes(raw)
	if err != nil {
		return strings.Repeat("\uFFFD", len(raw)/2)
	}
	return string(s)
}

// PeekString is ReadString without moving the cursor.
func (b *Buffer) PeekString(enc Encoding, n int) string {
	pos := b.pos
	defer func() { b.pos = pos }()
	return b.ReadString(enc, n)
}

// WriteString writes s at the cursor, followed by a NUL terminator of the
// encoding's width when terminate is set.
func (b *Buffer) WriteString(enc Encoding, s string, terminate bool) error {
	var p []byte
	switch enc {
	case UTF16:
		var err error
		if p, err = b.utf16().NewEncoder().Bytes([]byte(s)); err != nil {
			return err
		}
		if terminate {
			p = append(p, 0, 0)
		}
	default:
		p = []byte(s)
		if terminate {
			p = append(p, 0)
		}
	}
	return b.write(p)
}

package lz11

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/nebula-modding/nebfs/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Literal runs followed by a short back-reference.
var shortStream = []byte{
	0x11, 0x20, 0x00, 0x00,
	0x00, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H',
	0x00, 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P',
	0x00, 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X',
	0x04, 'Y', 'Z', 'a', 'b', 'c', 0x20, 0x02,
}

// Both long encodings, each overlapping its own output.
var longStream = []byte{
	0x11, 0x24, 0x01, 0x00,
	0x50,
	'A',
	0x00, 0x00, 0x00,
	'B',
	0x10, 0x00, 0x00, 0x01,
}

func TestDecompress(t *testing.T) {
	t.Parallel()

	tables := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			name: "short back-reference",
			in:   shortStream,
			want: []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcabc"),
		},
		{
			name: "long back-references",
			in:   longStream,
			want: []byte(strings.Repeat("A", 18) + "B" + strings.Repeat("AB", 136) + "A"),
		},
		{
			name: "extended size field",
			in:   []byte{0x11, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 'x', 'y', 'z'},
			want: []byte("xyz"),
		},
		{
			name: "stops mid flag byte",
			in:   []byte{0x11, 0x05, 0x00, 0x00, 0x20, 'a', 'b', 0x40, 0x01},
			want: []byte("ababa"),
		},
	}

	for _, table := range tables {
		table := table

		t.Run(table.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecompressBytes(table.in)
			require.NoError(t, err)
			assert.Equal(t, table.want, got)
			assert.Len(t, got, len(table.want))
		})
	}
}

func TestDecompressErrors(t *testing.T) {
	t.Parallel()

	tables := []struct {
		name string
		in   []byte
		err  error
	}{
		{"empty", nil, io.ErrUnexpectedEOF},
		{"wrong tag", []byte{0x10, 0x04, 0x00, 0x00}, ErrUnsupported},
		{"zero size", []byte{0x11, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, ErrSize},
		{"too large", []byte{0x11, 0x00, 0x00, 0x00, 0x00, 0x00, 0x90, 0x00}, ErrSize},
		{"displacement", []byte{0x11, 0x04, 0x00, 0x00, 0x40, 'A', 0x20, 0x05}, ErrDisplacement},
		{"reference first", []byte{0x11, 0x04, 0x00, 0x00, 0x80, 0x20, 0x00}, ErrDisplacement},
		{"truncated literal", []byte{0x11, 0x10, 0x00, 0x00, 0x00, 'A'}, io.ErrUnexpectedEOF},
		{"truncated token", []byte{0x11, 0x10, 0x00, 0x00, 0x40, 'A', 0x10, 0x00}, io.ErrUnexpectedEOF},
	}

	for _, table := range tables {
		table := table

		t.Run(table.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecompressBytes(table.in)
			assert.ErrorIs(t, err, table.err)
			assert.Nil(t, got)
		})
	}
}

func TestIsCompressed(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCompressed(shortStream))
	assert.False(t, IsCompressed([]byte{0x11, 0x00}))
	assert.False(t, IsCompressed([]byte{0x55, 0xaa, 0x38, 0x2d}))
}

func TestDecompressBuffer(t *testing.T) {
	t.Parallel()

	in := buffer.FromBytes(append([]byte{0xff, 0xff}, shortStream...))
	in.Goto(2)

	out, err := DecompressBuffer(in)
	require.NoError(t, err)
	assert.EqualValues(t, 32, out.Len())
	assert.EqualValues(t, 0, out.Offset())
	assert.Equal(t, "ABCDEFGH", out.ReadString(buffer.ASCII, 8))
	assert.True(t, in.AtEnd())
}

func TestNewReader(t *testing.T) {
	t.Parallel()

	r, err := NewReader(io.MultiReader(bytes.NewReader(longStream[:5]), bytes.NewReader(longStream[5:])))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, got, 292)
}

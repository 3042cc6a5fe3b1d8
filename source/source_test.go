package source

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGrowsOnWrite(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	require.NoError(t, WriteRange(m, 4, []byte("abcd")))

	assert.EqualValues(t, 8, m.Size())
	assert.Equal(t, []byte{0, 0, 0, 0, 'a', 'b', 'c', 'd'}, m.Bytes())

	require.NoError(t, WriteRange(m, 2, []byte("xy")))
	assert.Equal(t, []byte{0, 0, 'x', 'y', 'a', 'b', 'c', 'd'}, m.Bytes())
}

func TestReadRangeTruncates(t *testing.T) {
	t.Parallel()

	m := NewMemory([]byte("0123456789"))

	cases := []struct {
		name string
		off  int64
		n    int
		want string
	}{
		{name: "inside", off: 2, n: 3, want: "234"},
		{name: "straddles end", off: 8, n: 10, want: "89"},
		{name: "at end", off: 10, n: 4, want: ""},
		{name: "past end", off: 50, n: 4, want: ""},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ReadRange(m, tc.off, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}

	_, err := ReadRange(m, -1, 1)
	assert.ErrorIs(t, err, ErrOffset)
}

func TestReadRangeIsRepeatable(t *testing.T) {
	t.Parallel()

	m := NewMemory([]byte("repeatable bytes"))
	a, err := ReadRange(m, 3, 8)
	require.NoError(t, err)
	b, err := ReadRange(m, 3, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSubrangeWindow(t *testing.T) {
	t.Parallel()

	parent := NewMemory([]byte("....window...."))
	s := NewSubrange(parent, 4, 6)

	assert.EqualValues(t, 6, s.Size())
	assert.EqualValues(t, 4, s.Base())

	got, err := Bytes(s)
	require.NoError(t, err)
	assert.Equal(t, "window", string(got))

	got, err = ReadRange(s, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "dow", string(got))

	n, err := s.ReadAt(make([]byte, 2), 6)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, WriteRange(s, 0, []byte("WIN")))
	assert.Equal(t, "....WINdow....", string(parent.Bytes()))

	err = WriteRange(s, 4, []byte("xyz"))
	assert.ErrorIs(t, err, ErrOffset)
	assert.Equal(t, "....WINdow....", string(parent.Bytes()))
}

func TestNestedSubrange(t *testing.T) {
	t.Parallel()

	parent := NewMemory([]byte("aaaabbbbccccdddd"))
	outer := NewSubrange(parent, 4, 8)
	inner := NewSubrange(outer, 4, 4)

	got, err := Bytes(inner)
	require.NoError(t, err)
	assert.Equal(t, "cccc", string(got))
}

func TestDisk(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "disc.bin", []byte("hello, disk"), 0o644))

	d, err := OpenDisk(fs, "disc.bin")
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	assert.EqualValues(t, 11, d.Size())

	got, err := ReadRange(d, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, "disk", string(got))

	err = WriteRange(d, 0, []byte("x"))
	assert.True(t, errors.Is(err, ErrReadOnly))
}

func TestDiskWritable(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	d, err := OpenDiskWritable(fs, "scratch.bin")
	require.NoError(t, err)

	require.NoError(t, WriteRange(d, 0, []byte("abc")))
	require.NoError(t, WriteRange(d, 3, []byte("def")))
	assert.EqualValues(t, 6, d.Size())
	require.NoError(t, d.Close())

	b, err := afero.ReadFile(fs, "scratch.bin")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(b))
}

func TestDiskConcurrentReads(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "blob", data, 0o644))

	d, err := OpenDisk(fs, "blob")
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				off := int64((g*64 + i) % 4000)
				got, err := ReadRange(d, off, 16)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, data[off:off+16], got)
			}
		}(g)
	}
	wg.Wait()
}

func TestZero(t *testing.T) {
	t.Parallel()

	z := Zero(5)
	p := []byte("xxxxxxxx")
	n, err := z.ReadAt(p, 2)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte{0, 0, 0, 'x', 'x', 'x', 'x', 'x'}, p)

	assert.ErrorIs(t, WriteRange(z, 0, []byte{1}), ErrReadOnly)
}

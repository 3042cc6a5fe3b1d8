package u8

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path"
	"slices"
	"strings"

	"github.com/nebula-modding/nebfs"
)

// File is one input to Write. A path with a trailing slash and no data
// declares a directory, which is only needed for empty ones as every
// ancestor of a file is created implicitly.
type File struct {
	Path string
	Data []byte
}

type item struct {
	path  string
	isDir bool
	data  []byte
}

// comparePaths orders paths element by element so that every directory is
// immediately followed by its whole subtree.
func comparePaths(a, b string) int {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}

func plan(files []File) ([]item, error) {
	kinds := make(map[string]bool)
	var items []item

	add := func(p string, isDir bool, data []byte) error {
		if wasDir, ok := kinds[p]; ok {
			if wasDir && isDir {
				return nil
			}
			return fmt.Errorf("u8: duplicate path %q", p)
		}
		kinds[p] = isDir
		items = append(items, item{path: p, isDir: isDir, data: data})
		return nil
	}

	for _, f := range files {
		p := nebfs.Clean(f.Path)
		if p == "" || p == ".." || strings.HasPrefix(p, "../") {
			return nil, fmt.Errorf("u8: bad path %q", f.Path)
		}
		isDir := strings.HasSuffix(f.Path, "/") && f.Data == nil

		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if err := add(dir, true, nil); err != nil {
				return nil, err
			}
		}
		if err := add(p, isDir, f.Data); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(items, func(a, b item) int {
		return comparePaths(a.path, b.path)
	})

	return items, nil
}

func align(x, boundary int64) int64 {
	return (x + boundary - 1) & -boundary
}

// Write encodes files as a U8 archive. Nodes are written depth first with
// siblings sorted by name. The data section starts on a 64-byte boundary
// and each file on a 32-byte one.
func Write(w io.Writer, files []File) error {
	items, err := plan(files)
	if err != nil {
		return err
	}

	total := int64(len(items) + 1)
	index := make(map[string]uint32, len(items))
	names := []byte{0}
	nodes := make([]node, 0, total)

	nodes = append(nodes, node{Type: dirType, Size: uint32(total)})

	for i, it := range items {
		index[it.path] = uint32(i + 1)

		if len(names) > math.MaxUint16 {
			return fmt.Errorf("u8: string table too large at %q", it.path)
		}
		n := node{NameOffset: uint16(len(names))}
		names = append(names, path.Base(it.path)...)
		names = append(names, 0)

		if it.isDir {
			n.Type = dirType
			if dir := path.Dir(it.path); dir != "." {
				n.DataOffset = index[dir]
			}
			end := i + 1
			for end < len(items) && nebfs.Under(it.path, items[end].path) {
				end++
			}
			n.Size = uint32(end + 1)
		} else {
			n.Type = fileType
			n.Size = uint32(len(it.data))
		}
		nodes = append(nodes, n)
	}

	tableSize := total*nodeSize + int64(len(names))
	dataOffset := align(headerSize+tableSize, dataAlignment)

	// Place the files now the start of the data is known
	off := dataOffset
	for i, it := range items {
		if it.isDir {
			continue
		}
		if off > math.MaxUint32 {
			return fmt.Errorf("u8: archive too large at %q", it.path)
		}
		nodes[i+1].DataOffset = uint32(off)
		off += align(int64(len(it.data)), fileAlignment)
	}

	h := struct {
		header
		_ [16]byte
	}{
		header: header{
			Magic:          Magic,
			RootNodeOffset: headerSize,
			HeaderSize:     uint32(tableSize),
			DataOffset:     uint32(dataOffset),
		},
	}

	bw := bufio.NewWriter(w)

	if err = binary.Write(bw, binary.BigEndian, &h); err != nil {
		return err
	}
	if err = binary.Write(bw, binary.BigEndian, nodes); err != nil {
		return err
	}
	if _, err = bw.Write(names); err != nil {
		return err
	}
	if _, err = bw.Write(make([]byte, dataOffset-headerSize-tableSize)); err != nil {
		return err
	}

	for _, it := range items {
		if it.isDir {
			continue
		}
		if _, err = bw.Write(it.data); err != nil {
			return err
		}
		pad := align(int64(len(it.data)), fileAlignment) - int64(len(it.data))
		if _, err = bw.Write(make([]byte, pad)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

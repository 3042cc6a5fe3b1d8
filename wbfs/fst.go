package wbfs

import (
	"encoding/binary"
	"fmt"
	"slices"

	"golang.org/x/text/encoding/charmap"
)

// readFST decrypts the file system table and indexes every file by path.
func (w *WBFS) readFST() error {
	info, err := w.readData(fstInfo, 8)
	if err != nil {
		return fmt.Errorf("wbfs: fst location: %w", err)
	}
	offset := int64(binary.BigEndian.Uint32(info)) << 2

	root, err := w.readData(offset, fstEntrySize)
	if err != nil {
		return fmt.Errorf("wbfs: fst root: %w", err)
	}
	total := int64(binary.BigEndian.Uint32(root[8:]))
	if total == 0 || total > maxFSTEntries {
		return fmt.Errorf("%w: %d fst entries", ErrFormat, total)
	}

	table, err := w.readData(offset, int(total*fstEntrySize))
	if err != nil {
		return fmt.Errorf("wbfs: fst: %w", err)
	}
	names := offset + total*fstEntrySize

	type frame struct {
		prefix string
		end    int64
	}

	frames := []frame{{prefix: "", end: total}}
	w.files = make(map[string]entry)

	for i := int64(1); i < total; i++ {
		for len(frames) > 1 && i >= frames[len(frames)-1].end {
			frames = frames[:len(frames)-1]
		}

		e := table[i*fstEntrySize:]
		typeName := binary.BigEndian.Uint32(e[0:])
		value := binary.BigEndian.Uint32(e[4:])
		size := binary.BigEndian.Uint32(e[8:])

		name, err := w.readName(names + int64(typeName&0xffffff))
		if err != nil {
			return err
		}
		prefix := frames[len(frames)-1].prefix

		if typeName>>24 == 1 {
			frames = append(frames, frame{prefix: prefix + name + "/", end: int64(size)})
			continue
		}

		w.files[prefix+name] = entry{
			offset: int64(value) << 2,
			size:   int64(size),
		}
	}

	w.paths = make([]string, 0, len(w.files))
	for p := range w.files {
		w.paths = append(w.paths, p)
	}
	slices.Sort(w.paths)

	return nil
}

// readName reads a NUL terminated name from the string table in chunks.
// Names are Latin-1.
func (w *WBFS) readName(off int64) (string, error) {
	var raw []byte

	for scanned := int64(0); scanned < maxNameBytesToScan; scanned += nameChunkSize {
		n := min(int64(nameChunkSize), w.capacity()-(off+scanned))
		if n <= 0 {
			break
		}
		chunk, err := w.readData(off+scanned, int(n))
		if err != nil {
			return "", err
		}

		for _, c := range chunk {
			switch {
			case c == 0:
				s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
				if err != nil {
					return "", err
				}
				return string(s), nil
			case c < 0x20 || (c >= 0x7f && c < 0xa0):
				return "", fmt.Errorf("%w: byte %#02x in name at %#x", ErrFormat, c, off)
			}
			if raw = append(raw, c); len(raw) > maxNameLength {
				return "", fmt.Errorf("%w: name too long at %#x", ErrFormat, off)
			}
		}
	}

	return "", fmt.Errorf("%w: unterminated name at %#x", ErrFormat, off)
}

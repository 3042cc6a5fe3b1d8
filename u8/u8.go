/*
Package u8 implements reading and writing U8 archives, the hierarchical
container used for game assets, usually with an .arc extension and often
LZ11 compressed on disc.

An archive is a header, a flat depth-first table of 12-byte nodes, a string
table of NUL-terminated names and the file data. Directory nodes record the
index of the first node after their subtree, which is all that is needed to
recover the hierarchy.
*/
package u8

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/nebula-modding/nebfs"
	"github.com/nebula-modding/nebfs/buffer"
	"github.com/nebula-modding/nebfs/lz11"
	"github.com/nebula-modding/nebfs/source"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

const (
	// Extension is the conventional file extension.
	Extension = ".arc"

	nodeSize = 12
	dirType  = 0x0100
	fileType = 0x0000

	headerSize     = 0x20
	dataAlignment  = 0x40
	fileAlignment  = 0x20
	scanChunkSize  = 64 << 10
	maxStringTable = 16 << 20
)

// Magic is the four byte tag that starts every archive.
var Magic = [4]byte{0x55, 0xaa, 0x38, 0x2d}

var (
	// ErrBadMagic is returned when no archive tag can be found.
	ErrBadMagic = errors.New("u8: bad magic")
	// ErrTruncated is returned when the header or node table lies outside
	// the source.
	ErrTruncated = errors.New("u8: truncated archive")
)

type header struct {
	Magic          [4]byte
	RootNodeOffset uint32
	HeaderSize     uint32
	DataOffset     uint32
}

type node struct {
	Type       uint16
	NameOffset uint16
	DataOffset uint32
	Size       uint32
}

// Entry is one file or directory in an archive. Offset is absolute within the
// archive's source.
type Entry struct {
	Path   string
	IsDir  bool
	Offset int64
	Size   int64
}

// Archive is a parsed U8 archive. Its index is built once by New and never
// changes, so an Archive is safe for concurrent use.
type Archive struct {
	nebfs.ReadOnly

	src     source.Source
	entries []Entry
	index   map[string]int
	logger  *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used to report malformed nodes.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// findMagic returns the offset of the first archive tag in r.
func findMagic(r readerutil.SizeReaderAt) (int64, error) {
	chunk := make([]byte, scanChunkSize+len(Magic)-1)
	for off := int64(0); off < r.Size(); off += scanChunkSize {
		n, err := r.ReadAt(chunk, off)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if i := bytes.Index(chunk[:n], Magic[:]); i >= 0 {
			return off + int64(i), nil
		}
	}
	return 0, ErrBadMagic
}

// New parses the archive in src. Leading bytes before the archive tag are
// ignored and every offset is taken relative to the tag.
func New(src source.Source, opts ...Option) (*Archive, error) {
	a := &Archive{
		src:    src,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	base, err := findMagic(src)
	if err != nil {
		return nil, err
	}

	var h header
	if err = binary.Read(io.NewSectionReader(src, base, src.Size()-base), binary.BigEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrTruncated, err)
	}

	b := buffer.New(src)
	b.SetBigEndian(true)

	nodeBase := base + int64(h.RootNodeOffset)
	if nodeBase+nodeSize > src.Size() {
		return nil, fmt.Errorf("%w: root node at %#x", ErrTruncated, nodeBase)
	}

	b.Goto(nodeBase)
	root := readNode(b)
	if root.Type != dirType || root.Size == 0 {
		return nil, fmt.Errorf("%w: bad root node", ErrTruncated)
	}

	// Read as many nodes as the source holds
	total := int64(root.Size)
	count := total - 1
	if available := (src.Size() - b.Offset()) / nodeSize; count > available {
		a.logger.Warn("node table truncated", "nodes", total, "available", available+1)
		count = available
	}
	nodes := make([]node, count)
	for i := range nodes {
		nodes[i] = readNode(b)
	}

	// The string table runs from the end of the nominal node table to the
	// start of the data
	tableOffset := nodeBase + total*nodeSize
	tableSize := int64(h.DataOffset) - int64(h.RootNodeOffset) - total*nodeSize
	tableSize = max(0, min(tableSize, maxStringTable))
	table, err := source.ReadRange(src, tableOffset, int(tableSize))
	if err != nil {
		return nil, err
	}

	a.build(base, root.Size, nodes, buffer.FromBytes(table))

	a.logger.Debug("archive indexed", "offset", base, "nodes", total, "entries", len(a.entries))

	return a, nil
}

func readNode(b *buffer.Buffer) node {
	return node{
		Type:       b.ReadU16(),
		NameOffset: b.ReadU16(),
		DataOffset: b.ReadU32(),
		Size:       b.ReadU32(),
	}
}

// build turns the flat node list into entries. Each frame is a directory
// path and the node index at which its subtree ends.
func (a *Archive) build(base int64, total uint32, nodes []node, names *buffer.Buffer) {
	type frame struct {
		path string
		end  uint32
	}

	frames := []frame{{path: "", end: total}}
	a.entries = []Entry{{Path: "", IsDir: true}}

	for i, n := range nodes {
		index := uint32(i + 1)

		names.Goto(int64(n.NameOffset))
		name := names.ReadString(buffer.ASCII, -1)

		var parent string
		if len(frames) > 0 {
			parent = frames[len(frames)-1].path
		}
		full := nebfs.Join(parent, name)

		switch n.Type {
		case dirType:
			a.entries = append(a.entries, Entry{Path: full, IsDir: true})
			frames = append(frames, frame{path: full, end: n.Size})
		case fileType:
			offset, size := base+int64(n.DataOffset), int64(n.Size)
			if offset+size > a.src.Size() {
				a.logger.Warn("skipping file outside archive", "path", full, "offset", offset, "size", size)
				break
			}
			a.entries = append(a.entries, Entry{Path: full, Offset: offset, Size: size})
		default:
			a.logger.Warn("skipping unknown node", "path", full, "type", n.Type)
		}

		for len(frames) > 0 && index+1 == frames[len(frames)-1].end {
			frames = frames[:len(frames)-1]
		}
	}

	a.index = make(map[string]int, len(a.entries))
	for i, e := range a.entries {
		if first, ok := a.index[e.Path]; ok {
			a.logger.Warn("skipping duplicate path", "path", e.Path, "dir", e.IsDir, "kept_dir", a.entries[first].IsDir)
			continue
		}
		a.index[e.Path] = i
	}
}

// NewCompressed inflates the LZ11 stream in src and parses the result.
func NewCompressed(src source.Source, opts ...Option) (*Archive, error) {
	b := buffer.New(src)
	plain, err := lz11.DecompressBuffer(b)
	if err != nil {
		return nil, err
	}
	return New(plain.Source(), opts...)
}

// Open opens the archive name on fs, inflating it first if it is LZ11
// compressed. The returned Archive must be closed.
func Open(fs afero.Fs, name string, opts ...Option) (*Archive, error) {
	d, err := source.OpenDisk(fs, name)
	if err != nil {
		return nil, err
	}

	head, err := source.ReadRange(d, 0, len(Magic))
	if err != nil {
		return nil, multierror.Append(err, d.Close())
	}

	var a *Archive
	if lz11.IsCompressed(head) && !bytes.Equal(head, Magic[:]) {
		// Compressed archives are held in memory once inflated
		a, err = NewCompressed(d, opts...)
		if cerr := d.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	} else {
		a, err = New(d, opts...)
		if err != nil {
			err = multierror.Append(err, d.Close())
		}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the underlying source if it holds one open.
func (a *Archive) Close() error {
	if c, ok := a.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Source returns the bytes the archive was parsed from.
func (a *Archive) Source() source.Source {
	return a.src
}

// List returns every entry in node order, starting with the root.
func (a *Archive) List() []Entry {
	return append([]Entry(nil), a.entries...)
}

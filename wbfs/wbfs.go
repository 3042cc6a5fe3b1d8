/*
Package wbfs implements reading Wii disc images stored in the WBFS backup
container.

A WBFS file holds one disc split into fixed size blocks. A table of 16-bit
block numbers maps each block of the disc to a block of the file, with zero
marking a block that was never written. The disc's game partition is
encrypted in 0x8000 byte clusters with a per-title key, itself encrypted with
a common key that must be supplied through a keys.Store.
*/
package wbfs

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/nebula-modding/nebfs"
	"github.com/nebula-modding/nebfs/keys"
	"github.com/nebula-modding/nebfs/source"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

const (
	// Extension is the conventional file extension.
	Extension = ".wbfs"

	// ClusterSize is the size of an encrypted cluster on disc.
	ClusterSize = 0x8000
	// ClusterDataSize is the plaintext carried by each cluster.
	ClusterDataSize = ClusterSize - hashSize

	// DefaultCacheSize is the number of decrypted clusters kept by default.
	DefaultCacheSize = 256

	hashSize = 0x400
	ivOffset = 0x3d0

	discSectorShift = 15
	discSectorCount = 0x46090

	headerSize         = 0x200
	discHeaderSize     = 0x100
	partitionInfo      = 0x40000
	partitionHeader    = 0x2b8
	fstInfo            = 0x424
	maxFSTEntries      = 100000
	fstEntrySize       = 12
	nameChunkSize      = 256
	maxNameLength      = 255
	maxNameBytesToScan = 1024
)

// Magic is the four byte tag that starts every WBFS file.
var Magic = [4]byte{'W', 'B', 'F', 'S'}

var (
	// ErrBadMagic is returned when the file does not start with Magic.
	ErrBadMagic = errors.New("wbfs: bad magic")
	// ErrSectorSize is returned when the container block size is smaller
	// than a disc cluster.
	ErrSectorSize = errors.New("wbfs: sector size too small")
	// ErrFormat is returned for structures that fail sanity checks.
	ErrFormat = errors.New("wbfs: bad format")
	// ErrKey is returned when the title key cannot be recovered.
	ErrKey = errors.New("wbfs: bad key")
)

type header struct {
	Magic           [4]byte
	HDSectors       uint32
	HDSectorShift   uint8
	WBFSSectorShift uint8
	_               [2]byte
}

type entry struct {
	offset int64
	size   int64
}

// WBFS is an open disc image. Its file table is built once by New; after
// that the only shared mutable state is the cluster cache, which is safe for
// concurrent use, so a WBFS may be read from many goroutines.
type WBFS struct {
	nebfs.ReadOnly

	r      readerutil.SizeReaderAt
	disc   readerutil.SizeReaderAt
	logger *slog.Logger

	sectorSize int64
	discHeader []byte

	partition  int64
	dataOffset int64
	dataSize   int64
	key        cipher.Block
	cache      *lru.Cache[int64, []byte]
	cacheSize  int

	files map[string]entry
	paths []string
}

// Option configures a WBFS.
type Option func(*WBFS)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *WBFS) {
		w.logger = logger
	}
}

// WithCacheSize sets how many decrypted clusters are kept in memory.
func WithCacheSize(clusters int) Option {
	return func(w *WBFS) {
		w.cacheSize = clusters
	}
}

// New parses the WBFS image in r, resolving the common key from ks.
func New(r readerutil.SizeReaderAt, ks keys.Store, opts ...Option) (*WBFS, error) {
	w := &WBFS{
		r:         r,
		logger:    slog.Default(),
		cacheSize: DefaultCacheSize,
	}
	for _, o := range opts {
		o(w)
	}

	var err error
	if w.cache, err = lru.New[int64, []byte](max(1, w.cacheSize)); err != nil {
		return nil, err
	}

	if r.Size() < headerSize {
		return nil, fmt.Errorf("%w: file too small", ErrBadMagic)
	}

	var h header
	if err = binary.Read(io.NewSectionReader(r, 0, headerSize), binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.WBFSSectorShift < discSectorShift || h.WBFSSectorShift > 31 || h.HDSectorShift > 31 {
		return nil, fmt.Errorf("%w: 2^%d", ErrSectorSize, h.WBFSSectorShift)
	}

	hdSectorSize := int64(1) << h.HDSectorShift
	w.sectorSize = int64(1) << h.WBFSSectorShift

	// The disc header copy is followed by the block table
	w.discHeader = make([]byte, discHeaderSize)
	if _, err = r.ReadAt(w.discHeader, hdSectorSize); err != nil {
		return nil, fmt.Errorf("wbfs: disc header: %w", err)
	}

	discSectorsPerBlock := int64(1) << (h.WBFSSectorShift - discSectorShift)
	blocks := (discSectorCount + discSectorsPerBlock - 1) / discSectorsPerBlock

	table := make([]uint16, blocks)
	if err = binary.Read(io.NewSectionReader(r, hdSectorSize+discHeaderSize, blocks*2), binary.BigEndian, table); err != nil {
		return nil, fmt.Errorf("wbfs: block table: %w", err)
	}
	w.disc = w.remap(table)

	if err = w.openPartition(ks); err != nil {
		return nil, err
	}

	if err = w.readFST(); err != nil {
		return nil, err
	}

	w.logger.Debug("disc opened", "id", w.ID(), "name", w.Name(), "files", len(w.files))

	return w, nil
}

// remap builds the logical disc from the container blocks listed in table.
// Runs of unallocated blocks read as zeroes.
func (w *WBFS) remap(table []uint16) readerutil.SizeReaderAt {
	parts := make([]readerutil.SizeReaderAt, 0, len(table))

	var sparse int64
	for _, block := range table {
		if block == 0 {
			sparse += w.sectorSize
			continue
		}
		if sparse > 0 {
			parts = append(parts, source.Zero(sparse))
			sparse = 0
		}
		parts = append(parts, io.NewSectionReader(w.r, int64(block)*w.sectorSize, w.sectorSize))
	}
	if sparse > 0 {
		parts = append(parts, source.Zero(sparse))
	}

	return readerutil.NewMultiReaderAt(parts...)
}

// Open opens the WBFS image name on fs. The returned WBFS must be closed.
func Open(fs afero.Fs, name string, ks keys.Store, opts ...Option) (*WBFS, error) {
	d, err := source.OpenDisk(fs, name)
	if err != nil {
		return nil, err
	}

	w, err := New(d, ks, opts...)
	if err != nil {
		return nil, multierror.Append(err, d.Close())
	}
	return w, nil
}

// Close releases the underlying image if it holds one open.
func (w *WBFS) Close() error {
	w.cache.Purge()
	if c, ok := w.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Disc returns the logical disc image with the block table applied.
func (w *WBFS) Disc() readerutil.SizeReaderAt {
	return w.disc
}

// ID returns the six character game ID, such as SMNE01.
func (w *WBFS) ID() string {
	return string(w.discHeader[0:6])
}

// Name returns the game title from the disc header.
func (w *WBFS) Name() string {
	return strings.TrimRight(string(w.discHeader[0x20:0x60]), "\x00")
}

// DiscNumber returns the zero-based disc number of multi-disc games.
func (w *WBFS) DiscNumber() int {
	return int(w.discHeader[6])
}

// Region returns the region character of the game ID.
func (w *WBFS) Region() byte {
	return w.discHeader[3]
}

var regions = map[byte]string{
	'D': "German",
	'E': "USA",
	'F': "France",
	'I': "Italy",
	'J': "Japan",
	'K': "Korea",
	'P': "PAL",
	'R': "Russia",
	'S': "Spanish",
	'T': "Taiwan",
	'U': "Australia",
}

// RegionName returns a readable name for Region.
func (w *WBFS) RegionName() string {
	if name, ok := regions[w.Region()]; ok {
		return name
	}
	return "Unknown"
}

// UniversalID returns the game ID with the region replaced by 'x', which is
// the same for every release of a game.
func (w *WBFS) UniversalID() string {
	id := []byte(w.ID())
	id[3] = 'x'
	return string(id)
}

// PublisherCode returns the two character maker code at the end of the game
// ID.
func (w *WBFS) PublisherCode() string {
	return w.ID()[4:6]
}

// UsedSize returns the total size of every file on the disc.
func (w *WBFS) UsedSize() int64 {
	var total int64
	for _, e := range w.files {
		total += e.size
	}
	return total
}

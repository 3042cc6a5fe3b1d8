package wbfs

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/connesc/cipherio"
	"github.com/nebula-modding/nebfs/keys"
)

type ticket struct {
	_              [0x1bf]byte
	TitleKey       [aes.BlockSize]byte
	_              [0x0d]byte
	TitleID        [8]byte
	_              [0x0d]byte
	CommonKeyIndex uint8
	_              [0xb2]byte
}

// commonKeys maps the ticket's common key index to the key name.
var commonKeys = []string{keys.WiiCommon, keys.WiiKorean}

// openPartition finds the first partition, recovers its title key and
// records where its encrypted data lives.
func (w *WBFS) openPartition(ks keys.Store) error {
	pi := struct {
		Count       uint32
		TableOffset uint32
	}{}
	if err := binary.Read(io.NewSectionReader(w.disc, partitionInfo, 8), binary.BigEndian, &pi); err != nil {
		return fmt.Errorf("wbfs: partition info: %w", err)
	}
	if pi.Count == 0 {
		return fmt.Errorf("%w: no partitions", ErrFormat)
	}

	pe := struct {
		Offset uint32
		Type   uint32
	}{}
	if err := binary.Read(io.NewSectionReader(w.disc, int64(pi.TableOffset)<<2, 8), binary.BigEndian, &pe); err != nil {
		return fmt.Errorf("wbfs: partition table: %w", err)
	}
	w.partition = int64(pe.Offset) << 2

	var t ticket
	if err := binary.Read(io.NewSectionReader(w.disc, w.partition, int64(binary.Size(t))), binary.BigEndian, &t); err != nil {
		return fmt.Errorf("wbfs: ticket: %w", err)
	}

	if int(t.CommonKeyIndex) >= len(commonKeys) {
		return fmt.Errorf("%w: common key index %d", ErrKey, t.CommonKeyIndex)
	}
	name := commonKeys[t.CommonKeyIndex]

	common, err := ks.Key(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKey, err)
	}
	block, err := aes.NewCipher(common)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKey, err)
	}

	// The title ID is the IV, padded with zeroes
	iv := make([]byte, block.BlockSize())
	copy(iv, t.TitleID[:])

	key := t.TitleKey[:]
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(key, key)

	if w.key, err = aes.NewCipher(key); err != nil {
		return fmt.Errorf("%w: %w", ErrKey, err)
	}

	ph := struct {
		DataOffset uint32
		DataSize   uint32
	}{}
	if err = binary.Read(io.NewSectionReader(w.disc, w.partition+partitionHeader, 8), binary.BigEndian, &ph); err != nil {
		return fmt.Errorf("wbfs: partition header: %w", err)
	}
	w.dataOffset = int64(ph.DataOffset) << 2
	w.dataSize = int64(ph.DataSize) << 2

	w.logger.Debug("partition found",
		"offset", w.partition,
		"type", pe.Type,
		"key", name,
		"data_offset", w.dataOffset,
		"data_size", w.dataSize,
	)

	return nil
}

// cluster returns the plaintext of cluster i of the partition data. The
// returned slice is shared with the cache and must not be modified.
func (w *WBFS) cluster(i int64) ([]byte, error) {
	if b, ok := w.cache.Get(i); ok {
		return b, nil
	}

	base := w.partition + w.dataOffset + i*ClusterSize

	iv := make([]byte, w.key.BlockSize())
	if _, err := w.disc.ReadAt(iv, base+ivOffset); err != nil {
		return nil, fmt.Errorf("wbfs: cluster %d: %w", i, err)
	}

	sr := io.NewSectionReader(w.disc, base+hashSize, ClusterDataSize)
	cbc := cipherio.NewBlockReader(sr, cipher.NewCBCDecrypter(w.key, iv))

	b := make([]byte, ClusterDataSize)
	if _, err := io.ReadFull(cbc, b); err != nil {
		return nil, fmt.Errorf("wbfs: cluster %d: %w", i, err)
	}

	w.logger.Debug("cluster decrypted", "cluster", i)

	// Two goroutines missing on the same cluster both decrypt it and the
	// second Add wins; the bytes are identical.
	w.cache.Add(i, b)

	return b, nil
}

// capacity is the amount of plaintext in the partition.
func (w *WBFS) capacity() int64 {
	return w.dataSize / ClusterSize * ClusterDataSize
}

// ReadAt reads decrypted partition data, addressed in plaintext bytes.
func (w *WBFS) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrFormat)
	}
	if off >= w.capacity() {
		return 0, io.EOF
	}
	if remaining := w.capacity() - off; int64(len(p)) > remaining {
		p = p[:remaining]
		err = io.EOF
	}

	i, skip := off/ClusterDataSize, off%ClusterDataSize
	for n < len(p) {
		b, cerr := w.cluster(i)
		if cerr != nil {
			return n, cerr
		}
		n += copy(p[n:], b[skip:])
		i, skip = i+1, 0
	}
	return n, err
}

// Size returns the amount of plaintext in the partition, so a WBFS is itself
// a readerutil.SizeReaderAt over the decrypted data.
func (w *WBFS) Size() int64 {
	return w.capacity()
}

// readData reads exactly n bytes of plaintext at off.
func (w *WBFS) readData(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > w.capacity() {
		return nil, fmt.Errorf("%w: read of %d bytes at %#x outside partition data", ErrFormat, n, off)
	}
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	if _, err := w.ReadAt(b, off); err != nil {
		return nil, err
	}
	return b, nil
}

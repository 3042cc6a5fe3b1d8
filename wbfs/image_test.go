package wbfs

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/nebula-modding/nebfs/keys"
	"github.com/stretchr/testify/require"
)

var (
	commonKey  = []byte{0x3b, 0x1f, 0x62, 0x9a, 0x07, 0xc4, 0x55, 0xe1, 0x90, 0x2d, 0x7e, 0x48, 0xb6, 0x13, 0xaf, 0x0c}
	koreanKey  = []byte{0x63, 0xb8, 0x2b, 0xb4, 0xf4, 0x61, 0x4e, 0x2e, 0x13, 0xf2, 0xfe, 0xfb, 0xba, 0x4c, 0x9b, 0x7e}
	contentKey = []byte{0xd7, 0x0c, 0x41, 0x88, 0x5e, 0x2a, 0x93, 0x6f, 0x1b, 0xe4, 0x38, 0xc2, 0x79, 0x05, 0xfa, 0x66}
	titleID    = [8]byte{0x00, 0x01, 0x00, 0x00, 'S', 'M', 'N', 'E'}
)

const (
	testHDShift    = 9
	testBlockShift = 20
	testBlock      = 1 << testBlockShift
	testPartition  = 0x54000
	testDataOffset = 0x20000
	testClusters   = 20
	testFST        = 0x440
	testGameID     = "SMNE01"
	testGameName   = "NEW SUPER MARIO BROS. Wii"
)

type testFile struct {
	offset int64
	data   []byte
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7+i>>8) ^ seed
	}
	return b
}

// testFiles is the content of the test disc, by path. The second stage
// straddles two clusters and the stream straddles the container block
// boundary.
func testFiles() map[string]testFile {
	return map[string]testFile{
		"Stage/01-01.arc":        {offset: 0x1000, data: pattern(100, 0x11)},
		"Stage/02-01.arc":        {offset: 0x7b00, data: pattern(0x300, 0x22)},
		"opening.bnr":            {offset: 0x10000, data: pattern(0x40, 0x33)},
		"Sound/stream/big.brstm": {offset: 0x78000, data: pattern(0x20000, 0x44)},
	}
}

func testStore() keys.Static {
	return keys.Static{
		keys.WiiCommon: commonKey,
		keys.WiiKorean: koreanKey,
	}
}

func encrypt(t *testing.T, key, iv, b []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(b))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, b)
	return out
}

// buildImage assembles a WBFS image with 1 MiB blocks. Disc block 0 is
// stored in container block 2 and disc block 1 in container block 1, every
// other block is unallocated.
func buildImage(t *testing.T, commonIndex byte) []byte {
	t.Helper()

	be := binary.BigEndian

	// Decrypted partition data
	plain := make([]byte, testClusters*ClusterDataSize)
	be.PutUint32(plain[fstInfo:], testFST>>2)

	fst := []struct {
		dir   bool
		name  string
		value uint32
		size  uint32
	}{
		{true, "", 0, 8},
		{true, "Stage", 0, 4},
		{false, "01-01.arc", 0x1000 >> 2, 100},
		{false, "02-01.arc", 0x7b00 >> 2, 0x300},
		{false, "opening.bnr", 0x10000 >> 2, 0x40},
		{true, "Sound", 0, 8},
		{true, "stream", 5, 8},
		{false, "big.brstm", 0x78000 >> 2, 0x20000},
	}

	var names []byte
	for i, e := range fst {
		typeName := uint32(len(names))
		if i == 0 {
			typeName = 0
		} else {
			names = append(names, e.name...)
			names = append(names, 0)
		}
		if e.dir {
			typeName |= 1 << 24
		}
		off := testFST + i*fstEntrySize
		be.PutUint32(plain[off:], typeName)
		be.PutUint32(plain[off+4:], e.value)
		be.PutUint32(plain[off+8:], e.size)
	}
	be.PutUint32(plain[fstInfo+4:], uint32(len(fst)*fstEntrySize+len(names))>>2)
	copy(plain[testFST+len(fst)*fstEntrySize:], names)

	for _, f := range testFiles() {
		copy(plain[f.offset:], f.data)
	}

	// Logical disc, the two allocated blocks only
	disc := make([]byte, 2*testBlock)
	copy(disc, testGameID)

	be.PutUint32(disc[partitionInfo:], 1)
	be.PutUint32(disc[partitionInfo+4:], (partitionInfo+0x20)>>2)
	be.PutUint32(disc[partitionInfo+0x20:], testPartition>>2)

	key := commonKey
	if commonIndex == 1 {
		key = koreanKey
	}
	iv := make([]byte, aes.BlockSize)
	copy(iv, titleID[:])
	copy(disc[testPartition+0x1bf:], encrypt(t, key, iv, contentKey))
	copy(disc[testPartition+0x1dc:], titleID[:])
	disc[testPartition+0x1f1] = commonIndex

	be.PutUint32(disc[testPartition+partitionHeader:], testDataOffset>>2)
	be.PutUint32(disc[testPartition+partitionHeader+4:], testClusters*ClusterSize>>2)

	for k := 0; k < testClusters; k++ {
		cluster := disc[testPartition+testDataOffset+k*ClusterSize:][:ClusterSize]
		civ := pattern(aes.BlockSize, byte(0x80+k))
		copy(cluster[ivOffset:], civ)
		copy(cluster[hashSize:], encrypt(t, contentKey, civ, plain[k*ClusterDataSize:(k+1)*ClusterDataSize]))
	}

	// Container
	img := make([]byte, 3*testBlock)
	copy(img, Magic[:])
	be.PutUint32(img[4:], uint32(len(img)>>testHDShift))
	img[8] = testHDShift
	img[9] = testBlockShift

	hd := 1 << testHDShift
	copy(img[hd:], testGameID)
	copy(img[hd+0x20:], testGameName)
	be.PutUint16(img[hd+discHeaderSize:], 2)
	be.PutUint16(img[hd+discHeaderSize+2:], 1)

	copy(img[2*testBlock:], disc[:testBlock])
	copy(img[1*testBlock:], disc[testBlock:])

	return img
}

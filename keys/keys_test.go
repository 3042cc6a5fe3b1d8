package keys

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"00112233445566778899aabbccddeeff",
		"  0x00112233445566778899AABBCCDDEEFF\n",
		"00:11:22:33:44:55:66:77:88:99:aa:bb:cc:dd:ee:ff",
		"00112233 44556677 8899aabb ccddeeff",
	} {
		k, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, testKey, k, s)
	}

	_, err := Parse("0011")
	assert.ErrorIs(t, err, ErrSize)
	_, err = Parse("not hex at all")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := Static{WiiCommon: testKey, "short": {1, 2, 3}}

	k, err := s.Key(WiiCommon)
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	k[0] = 0xff
	again, err := s.Key(WiiCommon)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), again[0])

	_, err = s.Key(WiiKorean)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Key("short")
	assert.ErrorIs(t, err, ErrSize)
}

func TestViperStore(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
[keys]
wii-common = "00112233445566778899aabbccddeeff"
wii-korean = "tooshort"
`)))

	s := NewViperStore(v)

	k, err := s.Key(WiiCommon)
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = s.Key(WiiKorean)
	assert.Error(t, err)

	_, err = s.Key("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "raw.key", testKey, 0o600))
	require.NoError(t, afero.WriteFile(fs, "hex.key", []byte("00112233445566778899aabbccddeeff\n"), 0o600))

	for _, name := range []string{"raw.key", "hex.key"} {
		k, err := FromFile(fs, name)
		require.NoError(t, err, name)
		assert.Equal(t, testKey, k, name)
	}

	_, err := FromFile(fs, "missing.key")
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	t.Parallel()

	other := bytes.Repeat([]byte{0x42}, Size)
	c := Chain{Static{WiiKorean: other}, Static{WiiCommon: testKey, WiiKorean: testKey}}

	k, err := c.Key(WiiCommon)
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	k, err = c.Key(WiiKorean)
	require.NoError(t, err)
	assert.Equal(t, other, k)

	_, err = c.Key("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

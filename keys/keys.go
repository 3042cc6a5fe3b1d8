/*
Package keys resolves AES key material by name. Keys are never compiled in:
they are provisioned once at startup from configuration or a key file and
looked up by the parsers that need them.
*/
package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// Size is the length of an AES-128 key.
	Size = 16

	// WiiCommon names the common key used by most discs.
	WiiCommon = "wii-common"
	// WiiKorean names the common key used by Korean discs.
	WiiKorean = "wii-korean"

	// CommonKeyFile is the conventional name of a file holding the common
	// key next to a disc image.
	CommonKeyFile = "common.key"
)

var (
	// ErrNotFound is returned when no key is provisioned under a name.
	ErrNotFound = errors.New("keys: key not found")
	// ErrSize is returned for key material that is not Size bytes long.
	ErrSize = errors.New("keys: wrong key size")
)

// Store looks up keys by name.
type Store interface {
	Key(name string) ([]byte, error)
}

// Static is a Store backed by a map.
type Static map[string][]byte

func (s Static) Key(name string) ([]byte, error) {
	k, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if len(k) != Size {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSize, name, len(k))
	}
	return bytes.Clone(k), nil
}

// Parse decodes a key given as hex, ignoring surrounding space, an optional
// 0x prefix and separating colons or spaces.
func Parse(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(":", "", " ", "", "-", "").Replace(s)

	k, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	if len(k) != Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrSize, len(k))
	}
	return k, nil
}

type viperStore struct {
	v *viper.Viper
}

// NewViperStore returns a Store reading hex keys from the "keys" table of v,
// so wii-common is found at keys.wii-common.
func NewViperStore(v *viper.Viper) Store {
	return viperStore{v: v}
}

func (s viperStore) Key(name string) ([]byte, error) {
	raw := s.v.GetString("keys." + name)
	if raw == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	k, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return k, nil
}

// FromFile reads a key file holding either the raw key bytes or their hex
// encoding.
func FromFile(fs afero.Fs, name string) ([]byte, error) {
	b, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}
	if len(b) == Size {
		return b, nil
	}
	return Parse(string(b))
}

// Chain is a Store that tries each Store in turn.
type Chain []Store

func (c Chain) Key(name string) ([]byte, error) {
	for _, s := range c {
		k, err := s.Key(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return k, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

/*
Package nebfs provides a read-mostly virtual filesystem over console game
containers. Each container format lives in its own package (u8, wbfs) and
implements FS, so callers can list and read files without knowing which
container produced the bytes.

Paths use forward slashes and are relative to the container root, which is
the empty string. Leading and trailing slashes are ignored.
*/
package nebfs

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/nebula-modding/nebfs/source"
)

// ErrReadOnly is returned by mutating operations on containers that cannot
// be modified.
var ErrReadOnly = errors.New("read-only filesystem")

// FS is the capability set every container backend implements.
type FS interface {
	// Entries lists the direct children of dir. Directory names carry a
	// trailing slash. A missing directory has no entries.
	Entries(dir string) []string
	FileExists(name string) bool
	DirExists(name string) bool
	// File returns the contents of name. A missing file returns a
	// *fs.PathError wrapping fs.ErrNotExist.
	File(name string) (source.Source, error)
	// Dir returns a handle rooted at name.
	Dir(name string) (*Dir, error)
	// FileSize returns the size of name, or zero if it does not exist.
	FileSize(name string) int64

	Mutator
}

// Mutator is the set of operations that modify a container.
type Mutator interface {
	CreateDir(name string) error
	CreateFile(name string, data []byte) error
	RemoveFile(name string) error
	RemoveDir(name string) error
	Rename(from, to string) error
}

// ReadOnly can be embedded by backends to reject every mutation.
type ReadOnly struct{}

func readOnly(op, name string) error {
	return &fs.PathError{Op: op, Path: Clean(name), Err: ErrReadOnly}
}

func (ReadOnly) CreateDir(name string) error {
	return readOnly("mkdir", name)
}

func (ReadOnly) CreateFile(name string, _ []byte) error {
	return readOnly("create", name)
}

func (ReadOnly) RemoveFile(name string) error {
	return readOnly("remove", name)
}

func (ReadOnly) RemoveDir(name string) error {
	return readOnly("rmdir", name)
}

func (ReadOnly) Rename(from, _ string) error {
	return readOnly("rename", from)
}

// NotExist returns the error reported for a missing path.
func NotExist(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
}

// Clean normalizes name to the form used as a key by the backends: no
// leading or trailing slash, no empty or dot elements, "" for the root.
func Clean(name string) string {
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	if name = path.Clean(name); name == "." {
		return ""
	}
	return name
}

// Join joins a directory and a name relative to it.
func Join(dir, name string) string {
	return Clean(path.Join(dir, name))
}

// Child reports whether name is a direct child of dir and returns its base
// name.
func Child(dir, name string) (string, bool) {
	if dir != "" {
		if !strings.HasPrefix(name, dir+"/") {
			return "", false
		}
		name = name[len(dir)+1:]
	}
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Under reports whether name is strictly below dir.
func Under(dir, name string) bool {
	if dir == "" {
		return name != ""
	}
	return strings.HasPrefix(name, dir+"/")
}

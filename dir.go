package nebfs

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nebula-modding/nebfs/source"
)

// Dir is a directory handle: a backend and a path prefix. It holds no other
// state so it stays valid for as long as the backend does.
type Dir struct {
	fsys FS
	path string
}

// OpenDir returns a handle for the directory name in fsys.
func OpenDir(fsys FS, name string) (*Dir, error) {
	name = Clean(name)
	if !fsys.DirExists(name) {
		return nil, NotExist("opendir", name)
	}
	return &Dir{fsys: fsys, path: name}, nil
}

// Path returns the directory's path from the container root.
func (d *Dir) Path() string {
	return d.path
}

// FS returns the backend.
func (d *Dir) FS() FS {
	return d.fsys
}

// Entries lists the direct children, directories with a trailing slash.
func (d *Dir) Entries() []string {
	return d.fsys.Entries(d.path)
}

// Files lists the direct children that are files.
func (d *Dir) Files() []string {
	var out []string
	for _, e := range d.Entries() {
		if !strings.HasSuffix(e, "/") {
			out = append(out, e)
		}
	}
	return out
}

// Dirs lists the direct children that are directories, keeping the trailing
// slash.
func (d *Dir) Dirs() []string {
	var out []string
	for _, e := range d.Entries() {
		if strings.HasSuffix(e, "/") {
			out = append(out, e)
		}
	}
	return out
}

func (d *Dir) Dir(name string) (*Dir, error) {
	return OpenDir(d.fsys, Join(d.path, name))
}

func (d *Dir) File(name string) (source.Source, error) {
	return d.fsys.File(Join(d.path, name))
}

func (d *Dir) FileExists(name string) bool {
	return d.fsys.FileExists(Join(d.path, name))
}

func (d *Dir) DirExists(name string) bool {
	return d.fsys.DirExists(Join(d.path, name))
}

func (d *Dir) FileSize(name string) int64 {
	return d.fsys.FileSize(Join(d.path, name))
}

// WalkFunc is called by Walk for every entry below a directory with the
// entry's path relative to that directory. Returning fs.SkipDir from a
// directory skips its contents.
type WalkFunc func(name string, isDir bool) error

// Walk visits every entry below d depth first, in the order the backend lists
// them. It uses an explicit stack so container depth does not bound it.
func (d *Dir) Walk(fn WalkFunc) error {
	type frame struct {
		rel     string
		entries []string
	}

	stack := []frame{{entries: d.Entries()}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.entries) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		e := top.entries[0]
		top.entries = top.entries[1:]

		isDir := strings.HasSuffix(e, "/")
		rel := Join(top.rel, strings.TrimSuffix(e, "/"))

		if err := fn(rel, isDir); err != nil {
			if isDir && err == fs.SkipDir {
				continue
			}
			return err
		}
		if isDir {
			stack = append(stack, frame{rel: rel, entries: d.fsys.Entries(Join(d.path, rel))})
		}
	}
	return nil
}

// Tree writes an indented listing of everything below d to w, one "[F]" line
// per directory and one "[f]" line per file. With sizes set each file shows
// its size and a total follows.
func (d *Dir) Tree(w io.Writer, sizes bool) error {
	var total uint64

	err := d.Walk(func(name string, isDir bool) error {
		depth := strings.Count(name, "/")
		base := name[strings.LastIndex(name, "/")+1:]
		indent := strings.Repeat("\t", depth)

		var err error
		switch {
		case isDir:
			_, err = fmt.Fprintf(w, "%s[F] %s\n", indent, base)
		case sizes:
			size := uint64(d.FileSize(name))
			total += size
			_, err = fmt.Fprintf(w, "%s[f] %s <%s>\n", indent, base, humanize.IBytes(size))
		default:
			_, err = fmt.Fprintf(w, "%s[f] %s\n", indent, base)
		}
		return err
	})
	if err != nil {
		return err
	}

	if sizes {
		_, err = fmt.Fprintf(w, "VIRTUAL SIZE: %s\n", humanize.IBytes(total))
	}
	return err
}

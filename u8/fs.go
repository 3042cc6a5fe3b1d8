package u8

import (
	"github.com/nebula-modding/nebfs"
	"github.com/nebula-modding/nebfs/source"
)

var _ nebfs.FS = (*Archive)(nil)

func (a *Archive) lookup(name string) (Entry, bool) {
	i, ok := a.index[nebfs.Clean(name)]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Entries lists the direct children of dir in node order.
func (a *Archive) Entries(dir string) []string {
	dir = nebfs.Clean(dir)

	var out []string
	for _, e := range a.entries {
		name, ok := nebfs.Child(dir, e.Path)
		if !ok {
			continue
		}
		if e.IsDir {
			name += "/"
		}
		out = append(out, name)
	}
	return out
}

func (a *Archive) FileExists(name string) bool {
	e, ok := a.lookup(name)
	return ok && !e.IsDir
}

func (a *Archive) DirExists(name string) bool {
	e, ok := a.lookup(name)
	return ok && e.IsDir
}

// File returns a window onto the file's bytes in the archive source. Nothing
// is copied.
func (a *Archive) File(name string) (source.Source, error) {
	e, ok := a.lookup(name)
	if !ok || e.IsDir {
		return nil, nebfs.NotExist("open", nebfs.Clean(name))
	}
	return source.NewSubrange(a.src, e.Offset, e.Size), nil
}

func (a *Archive) Dir(name string) (*nebfs.Dir, error) {
	return nebfs.OpenDir(a, name)
}

func (a *Archive) FileSize(name string) int64 {
	e, ok := a.lookup(name)
	if !ok || e.IsDir {
		return 0
	}
	return e.Size
}

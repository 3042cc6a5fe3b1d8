package wbfs

import (
	"io"
	"strings"

	"github.com/nebula-modding/nebfs"
	"github.com/nebula-modding/nebfs/source"
)

var _ nebfs.FS = (*WBFS)(nil)

// Entries lists the direct children of dir in name order. Directories are
// implied by the files below them.
func (w *WBFS) Entries(dir string) []string {
	dir = nebfs.Clean(dir)

	var out []string
	seen := make(map[string]struct{})
	for _, p := range w.paths {
		if !nebfs.Under(dir, p) {
			continue
		}
		rest := p
		if dir != "" {
			rest = p[len(dir)+1:]
		}
		name := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			name = rest[:i+1]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (w *WBFS) FileExists(name string) bool {
	_, ok := w.files[nebfs.Clean(name)]
	return ok
}

func (w *WBFS) DirExists(name string) bool {
	name = nebfs.Clean(name)
	if name == "" {
		return true
	}
	for _, p := range w.paths {
		if nebfs.Under(name, p) {
			return true
		}
	}
	return false
}

// File decrypts the whole of name into memory.
func (w *WBFS) File(name string) (source.Source, error) {
	name = nebfs.Clean(name)
	e, ok := w.files[name]
	if !ok {
		return nil, nebfs.NotExist("open", name)
	}
	b, err := w.readData(e.offset, int(e.size))
	if err != nil {
		return nil, err
	}
	return source.NewMemory(b), nil
}

// Open returns a reader that decrypts name on demand, for files too large to
// hold in memory.
func (w *WBFS) Open(name string) (*io.SectionReader, error) {
	name = nebfs.Clean(name)
	e, ok := w.files[name]
	if !ok {
		return nil, nebfs.NotExist("open", name)
	}
	return io.NewSectionReader(w, e.offset, e.size), nil
}

func (w *WBFS) Dir(name string) (*nebfs.Dir, error) {
	return nebfs.OpenDir(w, name)
}

func (w *WBFS) FileSize(name string) int64 {
	return w.files[nebfs.Clean(name)].size
}

// Paths returns every file path in name order.
func (w *WBFS) Paths() []string {
	return append([]string(nil), w.paths...)
}

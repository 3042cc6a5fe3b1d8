package source

import (
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// Disk is a Source backed by a single file. The file offset is shared state
// so every seek and the read or write that follows it happen under one lock.
type Disk struct {
	mu       sync.Mutex
	f        afero.File
	size     int64
	writable bool
}

// OpenDisk opens name on fs for reading.
func OpenDisk(fs afero.Fs, name string) (*Disk, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	return newDisk(f, false)
}

// OpenDiskWritable opens name on fs for reading and writing, creating it if
// necessary.
func OpenDiskWritable(fs afero.Fs, name string) (*Disk, error) {
	f, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return newDisk(f, true)
}

func newDisk(f afero.File, writable bool) (*Disk, error) {
	info, err := f.Stat()
	if err != nil {
		err = multierror.Append(err, f.Close())
		return nil, err
	}

	return &Disk{
		f:        f,
		size:     info.Size(),
		writable: writable,
	}, nil
}

// Name returns the name of the underlying file.
func (d *Disk) Name() string {
	return d.f.Name()
}

func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *Disk) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, ErrOffset
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if off >= d.size {
		return 0, io.EOF
	}
	if _, err = d.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err = io.ReadFull(d.f, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return
}

func (d *Disk) WriteAt(p []byte, off int64) (n int, err error) {
	if !d.writable {
		return 0, ErrReadOnly
	}
	if off < 0 {
		return 0, ErrOffset
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err = d.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err = d.f.Write(p)
	if end := off + int64(n); end > d.size {
		d.size = end
	}
	return
}

func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

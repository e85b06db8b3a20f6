//go:build unix

package sim

import (
	"os"

	"golang.org/x/sys/unix"
)

// Dump is a memory dump loaded from a file. Writes to its bytes are
// private to the process and never reach the file.
type Dump struct {
	b      []byte
	mapped bool
}

// LoadDump maps the file at path copy on write.
func LoadDump(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return &Dump{}, nil
	}
	b, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &Dump{b: b, mapped: true}, nil
}

// Bytes returns the contents of the dump.
func (d *Dump) Bytes() []byte { return d.b }

// Close releases the dump. Its bytes must not be used afterwards.
func (d *Dump) Close() error {
	if !d.mapped {
		return nil
	}
	d.mapped = false
	return unix.Munmap(d.b)
}

//go:build !unix

package sim

import "os"

// Dump is a memory dump loaded from a file.
type Dump struct {
	b []byte
}

// LoadDump reads the file at path.
func LoadDump(path string) (*Dump, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Dump{b: b}, nil
}

// Bytes returns the contents of the dump.
func (d *Dump) Bytes() []byte { return d.b }

func (d *Dump) Close() error { return nil }

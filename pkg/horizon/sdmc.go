package horizon

import (
	"io/fs"
	"path"
	"strings"
)

// SDMCPrefix is the archive prefix of SD card paths.
const SDMCPrefix = "sd:"

// SDMC is the SD card. Paths are given in console form, e.g.
// "sd:/pnp/plugin.wasm", and resolved inside an fs.FS holding the card
// contents.
type SDMC struct {
	fsys fs.FS
}

// NewSDMC returns an SD card backed by fsys.
func NewSDMC(fsys fs.FS) *SDMC {
	return &SDMC{fsys: fsys}
}

func (s *SDMC) resolve(p string) (string, error) {
	if !strings.HasPrefix(p, SDMCPrefix) {
		return "", &fs.PathError{Op: "open", Path: p, Err: fs.ErrInvalid}
	}
	p = path.Clean("/" + strings.TrimPrefix(p, SDMCPrefix))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		p = "."
	}
	if !fs.ValidPath(p) {
		return "", &fs.PathError{Op: "open", Path: p, Err: fs.ErrInvalid}
	}
	return p, nil
}

// ReadDir returns the names of the regular files in dir, in listing order.
func (s *SDMC) ReadDir(dir string) ([]string, error) {
	p, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(s.fsys, p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// ReadFile reads a whole file.
func (s *SDMC) ReadFile(name string) ([]byte, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(s.fsys, p)
}

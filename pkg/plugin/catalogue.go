// Package plugin finds plugin modules on the SD card and implements the
// on screen menu used to switch between them.
package plugin

import (
	"path"
	"strings"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
)

// Catalogue is the ordered list of plugin paths available to a title.
type Catalogue []string

// Names returns the file name of every plugin.
func (c Catalogue) Names() []string {
	r := make([]string, len(c))
	for i, p := range c {
		r[i] = path.Base(p)
	}
	return r
}

// Dirs returns the directories searched for plugins of title, most
// specific first.
func Dirs(root, vendorDir string, title horizon.TitleID) []string {
	global := strings.TrimSuffix(root, "/") + "/" + strings.Trim(vendorDir, "/")
	return []string{global + "/" + title.String(), global}
}

// Discover lists the plugins for title: files ending in ext in the title
// directory, then in the global plugin directory. Directories that do not
// exist are skipped. A plugin present in both places is listed twice.
func Discover(sd *horizon.SDMC, root, vendorDir, ext string, title horizon.TitleID) Catalogue {
	var r Catalogue
	for _, dir := range Dirs(root, vendorDir, title) {
		names, err := sd.ReadDir(dir)
		if err != nil {
			logflags.MenuLogger().Debugf("skipping plugin directory %s: %v", dir, err)
			continue
		}
		for _, name := range names {
			if strings.HasSuffix(name, ext) {
				r = append(r, dir+"/"+name)
			}
		}
	}
	return r
}

// Finder discovers and reads plugins with a fixed directory layout.
type Finder struct {
	SD        *horizon.SDMC
	Root      string
	VendorDir string
	Ext       string
}

// Discover lists the plugins for title.
func (f *Finder) Discover(title horizon.TitleID) Catalogue {
	return Discover(f.SD, f.Root, f.VendorDir, f.Ext, title)
}

// Read returns the contents of a plugin.
func (f *Finder) Read(p string) ([]byte, error) {
	return f.SD.ReadFile(p)
}

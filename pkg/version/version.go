package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"text/tabwriter"
)

// Version represents the current version of pnp.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// PnpVersion is the current version of pnp.
var PnpVersion = Version{
	Major: "0", Minor: "3", Patch: "0", Metadata: "",
	Build: "$Id$",
}

func (v Version) String() string {
	fixBuild(&v)
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

// Short returns the version in the single line form shown in the plugin
// menu header, e.g. "0.3.0 1a2b3c4".
func (v Version) Short() string {
	fixBuild(&v)
	ver := fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	build := v.Build
	if strings.HasPrefix(build, "$Id") {
		return ver
	}
	if len(build) > 7 {
		build = build[:7]
	}
	return ver + " " + build
}

// BuildInfo describes the toolchain, VCS state and dependencies pnp was
// built with.
func BuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return runtime.Version() + "\nno module information"
	}
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "go\t%s\n", info.GoVersion)
	fmt.Fprintf(w, "main\t%s\t%s\n", info.Main.Path, info.Main.Version)
	for _, setting := range info.Settings {
		if strings.HasPrefix(setting.Key, "vcs.") {
			fmt.Fprintf(w, "%s\t%s\n", setting.Key, setting.Value)
		}
	}
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		fmt.Fprintf(w, "dep\t%s\t%s\n", mod.Path, mod.Version)
	}
	w.Flush()
	return sb.String()
}

func fixBuild(v *Version) {
	// Return if v.Build already set, but not if it is Git ident expand file blob hash
	if !strings.HasPrefix(v.Build, "$Id$") {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			v.Build = setting.Value
			return
		}
	}
}

package main

import (
	"os"

	"github.com/pnp3ds/pnp/cmd/pnp/cmds"
	"github.com/pnp3ds/pnp/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.PnpVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}

package service

import (
	"time"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/memory"
)

// DefaultLaunchAttempts bounds the waits of the launch notification
// handler.
const DefaultLaunchAttempts = 100000

// Config provides the configuration to start the pnp service.
type Config struct {
	// Kernel reaches the running game.
	Kernel horizon.Kernel
	// HID is the controller shared by the service and plugins.
	HID horizon.HID
	// SD is the card plugins are read from.
	SD *horizon.SDMC
	// Blitter draws on the game's framebuffers. May be nil.
	Blitter display.Blitter

	// SDRoot, PluginDir and PluginExtension locate plugins, see
	// plugin.Discover.
	SDRoot          string
	PluginDir       string
	PluginExtension string

	// ExtendedTitles run in extended memory mode.
	ExtendedTitles memory.ExtendedTitles

	// PauseInterval is the input polling interval of a paused game.
	PauseInterval time.Duration
	// TickTimeout bounds a plugin's run_frame. Zero disables the limit.
	TickTimeout time.Duration
	// ModuleCacheSize is the number of compiled plugins kept around.
	ModuleCacheSize int

	// MenuMaxLen is the line length of the plugin menu.
	MenuMaxLen uint8
	// AllowPluginSwitching enables the Start+Down plugin menu.
	AllowPluginSwitching bool
	// Version is shown in the plugin menu header.
	Version string

	// LaunchAttempts bounds the waits for a launched game to become
	// accessible. Zero means DefaultLaunchAttempts.
	LaunchAttempts int
}

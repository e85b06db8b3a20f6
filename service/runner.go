package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/plugin"
	"github.com/pnp3ds/pnp/pkg/sandbox"
)

// MenuButtons toggle the plugin menu when pressed together.
const MenuButtons = horizon.ButtonStart | horizon.ButtonDDown

// ErrNoPlugins is returned by NewRunner when a title has no plugins.
var ErrNoPlugins = errors.New("no plugins found")

// Runner drives the plugins of one game launch: the active sandbox and
// the menu used to replace it.
type Runner struct {
	title   horizon.TitleID
	game    sandbox.GameMemory
	engine  *sandbox.Engine
	finder  *plugin.Finder
	hid     horizon.HID
	menu    *plugin.LoaderMenu
	sandbox *sandbox.Sandbox
	plugin  string

	showMenu       bool
	allowSwitching bool
}

// RunnerConfig holds what a Runner needs besides the game.
type RunnerConfig struct {
	Engine         *sandbox.Engine
	Finder         *plugin.Finder
	HID            horizon.HID
	MenuMaxLen     uint8
	Version        string
	AllowSwitching bool
}

// NewRunner discovers the plugins of title and loads the first one. If it
// does not load the runner starts without an active plugin and the menu
// can be used to pick another.
func NewRunner(ctx context.Context, title horizon.TitleID, game sandbox.GameMemory, cfg RunnerConfig) (*Runner, error) {
	cat := cfg.Finder.Discover(title)
	if len(cat) == 0 {
		return nil, ErrNoPlugins
	}
	menu, err := plugin.NewLoaderMenu(cat, cfg.MenuMaxLen, cfg.Version)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		title:          title,
		game:           game,
		engine:         cfg.Engine,
		finder:         cfg.Finder,
		hid:            cfg.HID,
		menu:           menu,
		allowSwitching: cfg.AllowSwitching,
	}
	if err := r.load(ctx, cat[0]); err != nil {
		logflags.SandboxLogger().WithError(err).Errorf("could not load %s", cat[0])
	}
	return r, nil
}

// load replaces the active sandbox with the plugin at path. On failure the
// active sandbox is kept.
func (r *Runner) load(ctx context.Context, path string) error {
	code, err := r.read(path)
	if err != nil {
		return err
	}
	return r.instantiate(ctx, path, code)
}

func (r *Runner) read(path string) ([]byte, error) {
	code, err := r.finder.Read(path)
	if err != nil {
		return nil, fmt.Errorf("could not read plugin: %w", err)
	}
	return code, nil
}

func (r *Runner) instantiate(ctx context.Context, path string, code []byte) error {
	sb, err := r.engine.Load(ctx, r.title, r.game, code)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	r.closeSandbox(ctx)
	r.sandbox = sb
	r.plugin = path
	logflags.SandboxLogger().Infof("loaded %s", path)
	return nil
}

func (r *Runner) closeSandbox(ctx context.Context) {
	if r.sandbox == nil {
		return
	}
	if err := r.sandbox.Close(ctx); err != nil {
		logflags.SandboxLogger().WithError(err).Warn("closing plugin")
	}
	r.sandbox = nil
	r.plugin = ""
}

// Frame runs the top screen frame: it toggles and drives the menu or ticks
// the active plugin, then flushes the screen. Input must have been scanned
// for this frame. A plugin that traps is dropped; one whose overlay does not
// fit the screen stays active.
func (r *Runner) Frame(ctx context.Context, screen *display.Screen) error {
	if r.allowSwitching && horizon.IsJustPressed(r.hid, MenuButtons) {
		r.showMenu = !r.showMenu
		logflags.MenuLogger().Debugf("plugin menu shown: %v", r.showMenu)
	}

	if r.showMenu {
		if err := r.menu.Frame(r.hid, screen); err != nil {
			return err
		}
		if horizon.IsJustPressed(r.hid, horizon.ButtonA) {
			path := r.menu.Value()
			code, err := r.read(path)
			if err != nil {
				return err
			}
			r.showMenu = false
			if err := r.instantiate(ctx, path, code); err != nil {
				return err
			}
		}
	} else if r.sandbox != nil {
		if err := r.sandbox.Tick(ctx, screen); err != nil {
			if errors.Is(err, sandbox.ErrTrap) {
				r.closeSandbox(ctx)
			}
			return err
		}
	}

	return screen.Flush()
}

// Close releases the active sandbox.
func (r *Runner) Close(ctx context.Context) {
	r.closeSandbox(ctx)
}

// Plugin returns the path of the active plugin, or "" if none is.
func (r *Runner) Plugin() string { return r.plugin }

// Sandbox returns the active sandbox, or nil.
func (r *Runner) Sandbox() *sandbox.Sandbox { return r.sandbox }

// Title returns the title the runner was built for.
func (r *Runner) Title() horizon.TitleID { return r.title }

// MenuShown reports whether the plugin menu is open.
func (r *Runner) MenuShown() bool { return r.showMenu }

// Menu returns the plugin menu.
func (r *Runner) Menu() *plugin.LoaderMenu { return r.menu }

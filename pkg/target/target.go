// Package target runs the pnp service against a simulated console and
// drives it one frame at a time. It backs the interactive console, the
// run command and starlark scripts.
package target

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/horizon/sim"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/memory"
	"github.com/pnp3ds/pnp/pkg/plugin"
	"github.com/pnp3ds/pnp/service"
)

// Framebuffer of the simulated top screen.
const (
	TopFramebuffer uint32 = 0x1F000000
	TopStride      uint32 = display.Height * 3
	TopFormat      uint32 = 1

	BottomFramebuffer uint32 = 0x1F048000
)

// ErrPaused is returned by Frame when the game is paused. The frame stays
// pending until a button releases it.
var ErrPaused = errors.New("game is paused")

// ErrExited is returned once the service has stopped.
var ErrExited = errors.New("service has exited")

// Config describes the console to simulate.
type Config struct {
	// Service is the service configuration. Kernel, HID, SD and Blitter
	// are filled in by Launch.
	Service service.Config
	// SD holds the contents of the SD card.
	SD fs.FS
	// Game is launched once the service is up.
	Game sim.GameSpec
	// Sleep replaces the console's thread sleep, nil keeps time.Sleep.
	Sleep func(time.Duration)
}

// Target is a running simulated console with the pnp service.
type Target struct {
	c      *sim.Console
	svc    *service.Service
	cfg    Config
	game   *sim.Game
	spec   sim.GameSpec
	mem    *memory.GameMemory
	cancel context.CancelFunc
	served chan error

	// frame waiting for the game to be unpaused
	pending <-chan error
}

// Launch starts the service, waits for it to capture its session, then
// launches cfg.Game and waits for the service to hook it.
func Launch(ctx context.Context, cfg Config) (*Target, error) {
	c := sim.New()
	if cfg.Sleep != nil {
		c.SetSleep(cfg.Sleep)
	}
	scfg := cfg.Service
	scfg.Kernel = c
	scfg.HID = c.Input
	scfg.SD = horizon.NewSDMC(cfg.SD)
	scfg.Blitter = c.Screens

	svc, err := service.New(ctx, scfg)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	t := &Target{
		c:      c,
		svc:    svc,
		cfg:    cfg,
		cancel: cancel,
		served: make(chan error, 1),
	}
	svc.Start(sctx)
	select {
	case <-svc.Started():
	case <-ctx.Done():
		cancel()
		svc.Close(context.Background())
		return nil, ctx.Err()
	}
	go func() { t.served <- svc.Serve(sctx, c.Port()) }()

	if err := t.Relaunch(ctx, cfg.Game); err != nil {
		t.Close(context.Background())
		return nil, err
	}
	return t, nil
}

// Relaunch replaces the running game and waits for the service to handle
// the launch.
func (t *Target) Relaunch(ctx context.Context, spec sim.GameSpec) error {
	if t.pending != nil {
		return ErrPaused
	}
	pristine := spec
	pristine.Code = append([]byte(nil), spec.Code...)
	g, err := t.c.Launch(spec)
	if err != nil {
		return err
	}
	t.game = g
	t.spec = pristine
	t.mem = nil
	logflags.ServiceLogger().Debugf("launched title %v", spec.Title)
	return t.sync(ctx)
}

// sync returns once the service has handled every event sent before it.
func (t *Target) sync(ctx context.Context) error {
	req := &horizon.Request{Header: horizon.MakeHeader(0, 0, 0)}
	err := t.c.Port().Call(ctx, req)
	if errors.Is(err, horizon.ErrInvalidCommand) {
		return nil
	}
	return t.exited(err)
}

func (t *Target) exited(err error) error {
	if errors.Is(err, horizon.ErrPortClosed) {
		return ErrExited
	}
	return err
}

// Frame presents one frame on screen, 0 being the top screen. If the game
// pauses during the frame ErrPaused is returned and the frame completes
// on a later call, once Press has released it.
func (t *Target) Frame(ctx context.Context, screen uint32) error {
	if t.pending != nil {
		done := t.pending
		t.pending = nil
		if err := t.wait(ctx, done); err != nil {
			return err
		}
	}
	fb := TopFramebuffer
	if screen != service.PrimaryScreen {
		fb = BottomFramebuffer
	}
	return t.wait(ctx, t.c.PresentAsync(ctx, screen, fb, TopStride, TopFormat))
}

func (t *Target) wait(ctx context.Context, done <-chan error) error {
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-done:
			return t.exited(err)
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if t.svc.Status().Paused {
				select {
				case err := <-done:
					return t.exited(err)
				case <-time.After(10 * time.Millisecond):
				}
				t.pending = done
				return ErrPaused
			}
		}
	}
}

// Pending reports whether a frame is waiting for the game to be unpaused.
func (t *Target) Pending() bool {
	return t.pending != nil
}

// Press holds b for one input scan.
func (t *Target) Press(b horizon.Buttons) {
	t.c.Input.Press(b)
}

// Hold queues button states, one per input scan.
func (t *Target) Hold(states ...horizon.Buttons) {
	t.c.Input.Queue(states...)
}

// Title returns the running title.
func (t *Target) Title() (horizon.TitleID, error) {
	return t.c.RunningTitleID()
}

// Spec returns the running game as it was before the service patched it.
// Relaunching it starts the game over.
func (t *Target) Spec() sim.GameSpec {
	s := t.spec
	s.Code = append([]byte(nil), t.spec.Code...)
	return s
}

// Game returns the running game.
func (t *Target) Game() *sim.Game {
	return t.game
}

// gameMemory maps the running game once per launch.
func (t *Target) gameMemory() (*memory.GameMemory, error) {
	if t.mem != nil {
		return t.mem, nil
	}
	title, err := t.Title()
	if err != nil {
		return nil, err
	}
	ext := t.cfg.Service.ExtendedTitles
	if t.game != nil && t.game.HeapBase == memory.ExtendedHeapVAddr && !ext.Contains(title) {
		ext = append(memory.ExtendedTitles{title}, ext...)
	}
	g, err := memory.New(t.c, title, ext, nil)
	if err != nil {
		return nil, err
	}
	t.mem = g
	return g, nil
}

// ReadMemory reads game memory at addr. The result is shorter than n when
// the region ends first.
func (t *Target) ReadMemory(addr uint32, n int) ([]byte, error) {
	g, err := t.gameMemory()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	m, err := g.ReadMemory(buf, addr)
	if err != nil {
		return nil, fmt.Errorf("read %#08x: %w", addr, err)
	}
	return buf[:m], nil
}

// WriteMemory writes data into game memory at addr and returns how many
// bytes fit in the region.
func (t *Target) WriteMemory(addr uint32, data []byte) (int, error) {
	g, err := t.gameMemory()
	if err != nil {
		return 0, err
	}
	n, err := g.WriteMemory(addr, data)
	if err != nil {
		return 0, fmt.Errorf("write %#08x: %w", addr, err)
	}
	return n, nil
}

// Trampoline returns the frame hook installed in the running game.
func (t *Target) Trampoline() (*hook.Patch, error) {
	g, err := t.gameMemory()
	if err != nil {
		return nil, err
	}
	p, ok := hook.ReadInstalled(g.Code())
	if !ok {
		return nil, sim.ErrNotHooked
	}
	return p, nil
}

// Plugins lists the plugins available to the running title.
func (t *Target) Plugins() (plugin.Catalogue, error) {
	title, err := t.Title()
	if err != nil {
		return nil, err
	}
	s := t.cfg.Service
	return plugin.Discover(horizon.NewSDMC(t.cfg.SD), s.SDRoot, s.PluginDir, s.PluginExtension, title), nil
}

// Status returns the service status after the last top screen frame.
func (t *Target) Status() service.Status {
	return t.svc.Status()
}

// Overlay returns the text drawn on the last flushed frame.
func (t *Target) Overlay() []string {
	return t.c.Screens.Text()
}

// Ops returns the drawing operations of the last flushed frame.
func (t *Target) Ops() []display.Op {
	return t.c.Screens.Frame()
}

// Close terminates the service and releases it. A paused game is resumed
// first so the service can see the termination request.
func (t *Target) Close(ctx context.Context) error {
	if done := t.pending; done != nil {
		t.pending = nil
		t.c.Input.Queue(0, horizon.ButtonA)
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	t.c.Shutdown()
	var err error
	select {
	case err = <-t.served:
	case <-ctx.Done():
		err = ctx.Err()
	}
	t.cancel()
	if cerr := t.svc.Close(context.Background()); err == nil {
		err = cerr
	}
	return err
}

package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/horizon/sim"
	"github.com/pnp3ds/pnp/pkg/sandbox"
	"github.com/pnp3ds/pnp/pkg/sandbox/wasmtest"
)

const (
	testTitle  horizon.TitleID = 0x0004000000030800
	otherTitle horizon.TitleID = 0x0004000000055D00

	topFB     = 0x1F000000
	topStride = 240 * 3
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	c      *sim.Console
	s      *Service
	served chan error
}

func startService(t *testing.T, files fstest.MapFS, configure func(*Config)) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	c := sim.New()
	c.SetSleep(func(time.Duration) { time.Sleep(time.Millisecond) })
	cfg := Config{
		Kernel:               c,
		HID:                  c.Input,
		SD:                   horizon.NewSDMC(files),
		Blitter:              c.Screens,
		SDRoot:               "sd:/",
		PluginDir:            "pnp",
		PluginExtension:      ".wasm",
		PauseInterval:        time.Millisecond,
		ModuleCacheSize:      8,
		MenuMaxLen:           30,
		AllowPluginSwitching: true,
		Version:              "test",
		LaunchAttempts:       10,
	}
	if configure != nil {
		configure(&cfg)
	}
	s, err := New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	s.Start(ctx)
	select {
	case <-s.Started():
	case <-ctx.Done():
		t.Fatal("service did not start")
	}

	f := &fixture{t: t, ctx: ctx, c: c, s: s, served: make(chan error, 1)}
	go func() { f.served <- s.Serve(ctx, c.Port()) }()
	t.Cleanup(c.Port().Close)
	return f
}

// launch starts a game and waits for the service to hook it.
func (f *fixture) launch(title horizon.TitleID) *sim.Game {
	f.t.Helper()
	g, err := f.c.Launch(sim.GameSpec{Title: title, Code: sim.NewCode(0x2000, 0x400), HeapSize: 0x1000, PresentOffset: 0x400})
	if err != nil {
		f.t.Fatal(err)
	}
	f.sync()
	return g
}

// sync returns once every event queued before it has been handled.
func (f *fixture) sync() {
	f.t.Helper()
	req := &horizon.Request{Header: horizon.MakeHeader(0x7f, 0, 0)}
	if err := f.c.Port().Call(f.ctx, req); !errors.Is(err, horizon.ErrInvalidCommand) {
		f.t.Fatalf("expected invalid command, got %v", err)
	}
}

func (f *fixture) present() error {
	return f.c.Present(f.ctx, PrimaryScreen, topFB, topStride, 1)
}

func (f *fixture) mustPresent() {
	f.t.Helper()
	if err := f.present(); err != nil {
		f.t.Fatalf("present: %v", err)
	}
}

func TestHelloPrintedOnce(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/hello.wasm": {Data: wasmtest.Hello("HELLO")}}, nil)
	f.launch(testTitle)

	f.mustPresent()
	if got := f.c.Screens.Text(); !reflect.DeepEqual(got, []string{"HELLO"}) {
		t.Fatalf("first frame drew %q", got)
	}
	st := f.s.Status()
	if st.Title != testTitle || st.Plugin != "sd:/pnp/hello.wasm" || st.Frames != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if !reflect.DeepEqual(st.Output, []string{"HELLO"}) {
		t.Fatalf("output %q", st.Output)
	}

	f.mustPresent()
	if got := f.c.Screens.Text(); len(got) != 0 {
		t.Fatalf("second frame drew %q", got)
	}
	if st := f.s.Status(); len(st.Output) != 0 || st.Frames != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if f.c.Screens.Flushes() != 2 {
		t.Fatalf("expected 2 flushes, got %d", f.c.Screens.Flushes())
	}
}

func TestSecondaryScreen(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/a.wasm": {Data: wasmtest.Printer("AAA")}}, nil)
	f.launch(testTitle)

	if err := f.c.Present(f.ctx, 1, topFB, 240*3, 1); err != nil {
		t.Fatal(err)
	}
	if f.c.Screens.Flushes() != 0 {
		t.Fatal("plugin ran on the bottom screen")
	}
	if f.c.Input.Scans() != 0 {
		t.Fatal("input scanned on the bottom screen")
	}
	if f.s.Frames() != 1 {
		t.Fatalf("expected 1 frame, got %d", f.s.Frames())
	}
}

func TestTitlePluginsFirst(t *testing.T) {
	files := fstest.MapFS{
		"pnp/a.wasm":                  {Data: wasmtest.Printer("GLOBAL")},
		"pnp/0004000000030800/t.wasm": {Data: wasmtest.Printer("TITLE")},
		"pnp/0004000000030800/readme": {Data: []byte("not a plugin")},
		"pnp/0004000000055D00/x.wasm": {Data: wasmtest.Printer("OTHER")},
		"pnp/0004000000030800/u.wasm": {Data: wasmtest.Printer("SECOND")},
	}
	f := startService(t, files, nil)
	f.launch(testTitle)
	f.mustPresent()

	st := f.s.Status()
	if st.Plugin != "sd:/pnp/0004000000030800/t.wasm" {
		t.Fatalf("loaded %q", st.Plugin)
	}
	want := []string{
		"Plugin Menu test",
		"",
		"> sd:/pnp/0004000000030800/t.wasm",
		"  sd:/pnp/0004000000030800/u.wasm",
		"  sd:/pnp/a.wasm",
	}
	if !reflect.DeepEqual(st.Menu, want) {
		t.Fatalf("menu is %q", st.Menu)
	}
	if got := f.c.Screens.Text(); !reflect.DeepEqual(got, []string{"TITLE"}) {
		t.Fatalf("drew %q", got)
	}
}

func TestMenuSwitchesPlugin(t *testing.T) {
	files := fstest.MapFS{
		"pnp/a.wasm": {Data: wasmtest.Printer("AAA")},
		"pnp/b.wasm": {Data: wasmtest.Printer("BBB")},
	}
	f := startService(t, files, nil)
	f.launch(testTitle)

	f.mustPresent()
	if got := f.c.Screens.Text(); !reflect.DeepEqual(got, []string{"AAA"}) {
		t.Fatalf("drew %q", got)
	}

	// The combination also moves the cursor down.
	f.c.Input.Queue(MenuButtons)
	f.mustPresent()
	st := f.s.Status()
	if !st.MenuOpen {
		t.Fatal("menu not open")
	}
	if got := f.c.Screens.Text(); len(got) == 0 || got[0] != "Plugin Menu test" {
		t.Fatalf("menu drew %q", got)
	}
	if st.Output == nil || st.Plugin != "sd:/pnp/a.wasm" {
		t.Fatalf("active plugin changed while the menu is open: %+v", st)
	}

	f.c.Input.Queue(horizon.ButtonA)
	f.mustPresent()
	st = f.s.Status()
	if st.MenuOpen || st.Plugin != "sd:/pnp/b.wasm" {
		t.Fatalf("unexpected status after pick %+v", st)
	}

	f.mustPresent()
	if got := f.c.Screens.Text(); !reflect.DeepEqual(got, []string{"BBB"}) {
		t.Fatalf("drew %q", got)
	}
}

func TestMenuDisabled(t *testing.T) {
	files := fstest.MapFS{
		"pnp/a.wasm": {Data: wasmtest.Printer("AAA")},
		"pnp/b.wasm": {Data: wasmtest.Printer("BBB")},
	}
	f := startService(t, files, func(cfg *Config) { cfg.AllowPluginSwitching = false })
	f.launch(testTitle)
	f.c.Input.Queue(MenuButtons)
	f.mustPresent()
	if f.s.Status().MenuOpen {
		t.Fatal("menu opened with switching disabled")
	}
	if got := f.c.Screens.Text(); !reflect.DeepEqual(got, []string{"AAA"}) {
		t.Fatalf("drew %q", got)
	}
}

func TestTrapDropsPlugin(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/trap.wasm": {Data: wasmtest.Trap()}}, nil)
	f.launch(testTitle)

	if err := f.present(); !errors.Is(err, sandbox.ErrTrap) {
		t.Fatalf("expected a trap, got %v", err)
	}
	st := f.s.Status()
	if st.Plugin != "" || !errors.Is(st.Err, sandbox.ErrTrap) {
		t.Fatalf("unexpected status %+v", st)
	}
	f.mustPresent()
	if st := f.s.Status(); st.Err != nil || st.Menu == nil {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestOversizedOverlayKeepsPlugin(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/flood.wasm": {Data: wasmtest.Flood("X", 19)}}, nil)
	f.launch(testTitle)

	for i := 0; i < 2; i++ {
		err := f.present()
		if err == nil || errors.Is(err, sandbox.ErrTrap) {
			t.Fatalf("frame %d: expected a drawing error, got %v", i, err)
		}
		if st := f.s.Status(); st.Plugin != "sd:/pnp/flood.wasm" || len(st.Output) != 19 {
			t.Fatalf("frame %d: unexpected status %+v", i, st)
		}
	}
}

func TestBrokenFirstPlugin(t *testing.T) {
	files := fstest.MapFS{
		"pnp/a.wasm": {Data: []byte("garbage")},
		"pnp/b.wasm": {Data: wasmtest.Printer("BBB")},
	}
	f := startService(t, files, nil)
	f.launch(testTitle)
	f.mustPresent()
	if st := f.s.Status(); st.Plugin != "" || len(st.Menu) != 4 {
		t.Fatalf("unexpected status %+v", st)
	}

	f.c.Input.Queue(MenuButtons, horizon.ButtonA)
	f.mustPresent()
	f.mustPresent()
	if st := f.s.Status(); st.Plugin != "sd:/pnp/b.wasm" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestNoPlugins(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	f.launch(testTitle)
	f.mustPresent()
	f.mustPresent()
	st := f.s.Status()
	if st.Plugin != "" || st.Menu != nil || st.Frames != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if f.c.Screens.Flushes() != 0 {
		t.Fatal("flushed without a runner")
	}
}

func TestRelaunch(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/a.wasm": {Data: wasmtest.Printer("AAA")}}, nil)
	f.launch(testTitle)
	f.mustPresent()
	gen := f.s.ctx.Generation.Current()

	f.launch(otherTitle)
	f.mustPresent()
	if st := f.s.Status(); st.Title != otherTitle || st.Plugin != "sd:/pnp/a.wasm" {
		t.Fatalf("unexpected status %+v", st)
	}
	if f.s.ctx.Generation.Current() == gen {
		t.Fatal("generation not advanced")
	}
	if f.c.OpenHandles() != 0 {
		t.Fatalf("%d process handles leaked", f.c.OpenHandles())
	}
}

func TestAlreadyRunningGameIsHooked(t *testing.T) {
	c := sim.New()
	if _, err := c.Launch(sim.GameSpec{Title: testTitle, Code: sim.NewCode(0x2000, 0x400), HeapSize: 0x1000, PresentOffset: 0x400}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := New(ctx, Config{Kernel: c, HID: c.Input, SD: horizon.NewSDMC(fstest.MapFS{}), SDRoot: "sd:", PluginDir: "pnp", PluginExtension: ".wasm"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)
	s.Start(ctx)
	<-s.Started()
	if !s.ctx.Launch.Take() {
		t.Fatal("running game not hooked at startup")
	}
}

func TestBadFramebuffer(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	f.launch(testTitle)
	if err := f.c.Present(f.ctx, PrimaryScreen, 0x1000, topStride, 1); !errors.Is(err, horizon.ErrInvalidPointer) {
		t.Fatalf("expected invalid pointer, got %v", err)
	}
}

func TestInvalidRequests(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	port := f.c.Port()
	req := &horizon.Request{Header: horizon.MakeHeader(hook.RunGameHookCommand, 4, 0), Params: []uint32{0, 0, topFB, topStride}}
	if err := port.Call(f.ctx, req); !errors.Is(err, horizon.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	req = &horizon.Request{Header: horizon.MakeHeader(2, 5, 0), Params: make([]uint32, 5)}
	if err := port.Call(f.ctx, req); !errors.Is(err, horizon.ErrInvalidCommand) {
		t.Fatalf("expected invalid command, got %v", err)
	}
}

func TestServeTermination(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	f.c.Port().Notify(horizon.NotificationSleepRequested)
	f.c.Port().Notify(0x1234)
	f.c.Shutdown()
	select {
	case err := <-f.served:
		if err != nil {
			t.Fatalf("expected a clean exit, got %v", err)
		}
	case <-f.ctx.Done():
		t.Fatal("service did not terminate")
	}
}

func TestServePortClosed(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	f.c.Port().Close()
	select {
	case err := <-f.served:
		if !errors.Is(err, horizon.ErrPortClosed) {
			t.Fatalf("expected port closed, got %v", err)
		}
	case <-f.ctx.Done():
		t.Fatal("service did not stop")
	}
}

func TestPauseBlocksFrame(t *testing.T) {
	f := startService(t, fstest.MapFS{"pnp/a.wasm": {Data: wasmtest.Printer("AAA")}}, nil)
	f.launch(testTitle)
	f.mustPresent()

	f.c.Input.Queue(PauseButtons)
	done := f.c.PresentAsync(f.ctx, PrimaryScreen, topFB, topStride, 1)
	waitFor(t, func() bool { return f.s.Status().Paused })
	select {
	case err := <-done:
		t.Fatalf("paused frame returned %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// Select lets one frame through.
	f.c.Input.Queue(0, horizon.ButtonSelect)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !f.s.Status().Paused {
		t.Fatal("frame advance resumed the game")
	}

	done = f.c.PresentAsync(f.ctx, PrimaryScreen, topFB, topStride, 1)
	f.c.Input.Queue(0, horizon.ButtonA)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.s.Status().Paused {
		t.Fatal("A did not resume the game")
	}
}

func TestPauseWithoutPlugins(t *testing.T) {
	f := startService(t, fstest.MapFS{}, nil)
	f.launch(testTitle)
	f.c.Input.Queue(PauseButtons, 0, horizon.ButtonStart)
	f.mustPresent()
	if f.s.Status().Paused {
		t.Fatal("Start did not resume the game")
	}
	if f.c.Input.Scans() != 3 {
		t.Fatalf("expected 3 scans, got %d", f.c.Input.Scans())
	}
}

// waitFor polls cond until it holds, failing the test after a few seconds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never held")
		}
		time.Sleep(time.Millisecond)
	}
}

type scriptedHID struct {
	downs []horizon.Buttons
	cur   horizon.Buttons
	scans int
}

func (h *scriptedHID) ScanInput() {
	h.scans++
	h.cur = 0
	if len(h.downs) > 0 {
		h.cur = h.downs[0]
		h.downs = h.downs[1:]
	}
}

func (h *scriptedHID) JustDown() horizon.Buttons { return h.cur }

func TestPauseController(t *testing.T) {
	tests := []struct {
		name       string
		primary    bool
		paused     bool
		current    horizon.Buttons
		script     []horizon.Buttons
		wantPaused bool
		wantScans  int
		wantSleeps int
	}{
		{"idle", true, false, 0, nil, false, 0, 0},
		{"start alone", true, false, horizon.ButtonStart, nil, false, 0, 0},
		{"resume with A", true, false, PauseButtons, []horizon.Buttons{0, 0, horizon.ButtonA}, false, 3, 2},
		{"resume with Start", true, false, PauseButtons, []horizon.Buttons{horizon.ButtonStart}, false, 1, 0},
		{"frame advance", true, false, PauseButtons, []horizon.Buttons{0, horizon.ButtonSelect}, true, 2, 1},
		{"select wins", true, false, PauseButtons, []horizon.Buttons{horizon.ButtonSelect | horizon.ButtonA}, true, 1, 0},
		{"bottom screen", false, false, PauseButtons, nil, true, 0, 0},
		{"bottom screen paused", false, true, 0, nil, true, 0, 0},
		{"already paused", true, true, 0, []horizon.Buttons{horizon.ButtonB, horizon.ButtonA}, false, 2, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hid := &scriptedHID{downs: tc.script, cur: tc.current}
			sleeps := 0
			p := NewPauseController(hid, func(d time.Duration) {
				if d != 5*time.Millisecond {
					t.Fatalf("slept %v", d)
				}
				sleeps++
			}, 5*time.Millisecond)
			p.paused.Store(tc.paused)
			p.Frame(tc.primary)
			if p.Paused() != tc.wantPaused || hid.scans != tc.wantScans || sleeps != tc.wantSleeps {
				t.Fatalf("paused=%v scans=%d sleeps=%d, expected %v %d %d", p.Paused(), hid.scans, sleeps, tc.wantPaused, tc.wantScans, tc.wantSleeps)
			}
		})
	}
}

func TestDecodeRunGameHookIn(t *testing.T) {
	in, err := DecodeRunGameHookIn(&horizon.Request{
		Header: hook.RunGameHookHeader,
		Params: []uint32{0, 1, topFB, topStride, 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := RunGameHookIn{ScreenID: 1, FrameBuffer: topFB, Stride: topStride, Format: 2}
	if in != want {
		t.Fatalf("decoded %+v", in)
	}

	bad := []*horizon.Request{
		{Header: horizon.MakeHeader(hook.RunGameHookCommand, 5, 0), Params: []uint32{0, 1}},
		{Header: horizon.MakeHeader(hook.RunGameHookCommand, 5, 2), Params: make([]uint32, 7)},
		{Header: horizon.MakeHeader(hook.RunGameHookCommand, 6, 0), Params: make([]uint32, 6)},
	}
	for _, req := range bad {
		if _, err := DecodeRunGameHookIn(req); !errors.Is(err, horizon.ErrInvalidValue) {
			t.Fatalf("%#08x: expected invalid value, got %v", req.Header, err)
		}
	}
	if _, err := DecodeRunGameHookIn(&horizon.Request{Header: horizon.MakeHeader(3, 5, 0)}); err != horizon.ErrInvalidCommand {
		t.Fatalf("expected invalid command, got %v", err)
	}
}

func TestNewRequiresPlatform(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), "kernel") {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

var _ display.Blitter = (*display.Recorder)(nil)

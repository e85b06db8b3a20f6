package target

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/horizon/sim"
	"github.com/pnp3ds/pnp/pkg/memory"
	"github.com/pnp3ds/pnp/pkg/sandbox/wasmtest"
	"github.com/pnp3ds/pnp/service"
)

const title horizon.TitleID = 0x0004000000030800

func launch(t *testing.T, files fstest.MapFS) *Target {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	tgt, err := Launch(ctx, Config{
		Service: service.Config{
			SDRoot:               "sd:",
			PluginDir:            "pnp",
			PluginExtension:      ".wasm",
			PauseInterval:        time.Millisecond,
			MenuMaxLen:           30,
			AllowPluginSwitching: true,
			Version:              "test",
		},
		SD:    files,
		Game:  sim.GameSpec{Title: title, Code: sim.NewCode(0x4000, 0x800), HeapSize: 0x2000, PresentOffset: 0x800},
		Sleep: func(time.Duration) { time.Sleep(time.Millisecond) },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := tgt.Close(ctx); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return tgt
}

func TestFrameRunsPlugin(t *testing.T) {
	tgt := launch(t, fstest.MapFS{"pnp/hello.wasm": {Data: wasmtest.Hello("HELLO")}})
	ctx := context.Background()
	if err := tgt.Frame(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if got := tgt.Overlay(); !reflect.DeepEqual(got, []string{"HELLO"}) {
		t.Fatalf("overlay %q", got)
	}
	if err := tgt.Frame(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if st := tgt.Status(); st.Frames != 1 || st.Plugin != "sd:/pnp/hello.wasm" {
		t.Fatalf("unexpected status %+v", st)
	}
	cat, err := tgt.Plugins()
	if err != nil || len(cat) != 1 {
		t.Fatalf("plugins %v %v", cat, err)
	}
}

func TestMemory(t *testing.T) {
	tgt := launch(t, fstest.MapFS{})
	n, err := tgt.WriteMemory(memory.HeapVAddr+0x1ffe, []byte{1, 2, 3, 4})
	if err != nil || n != 2 {
		t.Fatalf("write returned %d %v", n, err)
	}
	b, err := tgt.ReadMemory(memory.HeapVAddr+0x1ffc, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{0, 0, 1, 2}) {
		t.Fatalf("read %x", b)
	}
	if !bytes.Equal(tgt.Game().Heap[0x1ffe:], []byte{1, 2}) {
		t.Fatal("write did not reach the game")
	}
	if _, err := tgt.ReadMemory(0x50000000, 4); !errors.Is(err, memory.ErrNoRegion) {
		t.Fatalf("expected ErrNoRegion, got %v", err)
	}
}

func TestTrampoline(t *testing.T) {
	tgt := launch(t, fstest.MapFS{})
	p, err := tgt.Trampoline()
	if err != nil {
		t.Fatal(err)
	}
	if p.Offset != 0x800 || p.Addr != memory.CodeVAddr+0x800 {
		t.Fatalf("trampoline at %#x (%#x)", p.Offset, p.Addr)
	}
	if n := len(p.Disassemble()); n != hook.Size/4 {
		t.Fatalf("%d instructions", n)
	}
}

func TestPausedFrame(t *testing.T) {
	tgt := launch(t, fstest.MapFS{})
	ctx := context.Background()
	tgt.Hold(service.PauseButtons)
	if err := tgt.Frame(ctx, 0); err != ErrPaused {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if !tgt.Pending() || !tgt.Status().Paused {
		t.Fatal("frame not pending")
	}
	if err := tgt.Relaunch(ctx, sim.GameSpec{}); err != ErrPaused {
		t.Fatalf("relaunched a paused game: %v", err)
	}
	tgt.Press(horizon.ButtonA)
	if err := tgt.Frame(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if tgt.Pending() || tgt.Status().Paused {
		t.Fatal("game still paused")
	}
	if st := tgt.Status(); st.Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", st.Frames)
	}
}

func TestCloseWhilePaused(t *testing.T) {
	tgt := launch(t, fstest.MapFS{})
	tgt.Hold(service.PauseButtons)
	if err := tgt.Frame(context.Background(), 0); err != ErrPaused {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	// closed by the cleanup
}

func TestRelaunch(t *testing.T) {
	tgt := launch(t, fstest.MapFS{"pnp/0004000000055D00/a.wasm": {Data: wasmtest.Printer("A")}})
	ctx := context.Background()
	if err := tgt.Relaunch(ctx, sim.GameSpec{Title: 0x0004000000055D00, Code: sim.NewCode(0x4000, 0x100), HeapSize: 0x1000, PresentOffset: 0x100}); err != nil {
		t.Fatal(err)
	}
	if err := tgt.Frame(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if got := tgt.Overlay(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("overlay %q", got)
	}
	if p, err := tgt.Trampoline(); err != nil || p.Offset != 0x100 {
		t.Fatalf("trampoline %+v %v", p, err)
	}
}

func TestSpecIsPristine(t *testing.T) {
	tgt := launch(t, fstest.MapFS{})
	if _, ok := hook.IsInstalled(memory.NewRegion(memory.Code, memory.CodeVAddr, tgt.Game().Code)); !ok {
		t.Fatal("running game not hooked")
	}
	spec := tgt.Spec()
	if spec.Title != title || spec.PresentOffset != 0x800 {
		t.Fatalf("spec %v %#x", spec.Title, spec.PresentOffset)
	}
	if _, ok := hook.IsInstalled(memory.NewRegion(memory.Code, memory.CodeVAddr, spec.Code)); ok {
		t.Fatal("spec code is hooked")
	}
	if err := tgt.Relaunch(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if p, err := tgt.Trampoline(); err != nil || p.Offset != 0x800 {
		t.Fatalf("trampoline %+v %v", p, err)
	}
}

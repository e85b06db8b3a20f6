package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/memory"
)

func launch(t *testing.T, c *Console, title horizon.TitleID, extended bool) *Game {
	t.Helper()
	g, err := c.Launch(GameSpec{
		Title:         title,
		Code:          NewCode(0x1000, 0x200),
		HeapSize:      0x2000,
		Extended:      extended,
		PresentOffset: 0x200,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGameMemory(t *testing.T) {
	c := New()
	g := launch(t, c, 0x0004000000030800, false)
	copy(g.Code[0x10:], []byte{1, 2, 3, 4})
	gm, err := memory.New(c, g.Title, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gm.Code().BaseAddr != 0x00100000 || gm.Heap().BaseAddr != 0x08000000 {
		t.Fatalf("unexpected bases %#x %#x", gm.Code().BaseAddr, gm.Heap().BaseAddr)
	}
	b, ok := gm.Read(0x00100010, 4)
	if !ok || !bytes.Equal(b, []byte{1, 2, 3, 4}) {
		t.Fatalf("read %v %v", b, ok)
	}
	if _, err := gm.WriteMemory(0x08000004, []byte{9}); err != nil {
		t.Fatal(err)
	}
	if g.Heap[4] != 9 {
		t.Fatal("write did not reach the game heap")
	}
	if c.OpenHandles() != 0 {
		t.Fatalf("%d process handles leaked", c.OpenHandles())
	}
	if c.Mapped() != 0 {
		t.Fatalf("%d mappings leaked", c.Mapped())
	}
}

func TestExtendedHeap(t *testing.T) {
	c := New()
	g := launch(t, c, 0x0004000000164800, true)
	g.Heap[0x20] = 0x7f
	gm, err := memory.New(c, g.Title, memory.ExtendedTitles{g.Title}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gm.Heap().BaseAddr != memory.ExtendedHeapVAddr || gm.Heap().Kind != memory.ExtendedHeap {
		t.Fatalf("unexpected heap %#x %v", gm.Heap().BaseAddr, gm.Heap().Kind)
	}
	b, ok := gm.Read(memory.ExtendedHeapVAddr+0x20, 1)
	if !ok || b[0] != 0x7f {
		t.Fatalf("read %v %v", b, ok)
	}
}

func TestNoRunningGame(t *testing.T) {
	c := New()
	if _, err := c.RunningTitleID(); !errors.Is(err, horizon.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	g := launch(t, c, 1, false)
	c.Exit()
	if _, err := c.OpenProcess(g.Title); !errors.Is(err, horizon.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLaunchNotifies(t *testing.T) {
	c := New()
	launch(t, c, 1, false)
	ev, err := c.Port().Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev.Notification != horizon.NotificationLaunchApp {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPortCall(t *testing.T) {
	p := NewPort()
	want := errors.New("failed")
	go func() {
		ev, err := p.Receive(context.Background())
		if err != nil {
			return
		}
		p.Reply(ev.Request, want)
	}()
	if err := p.Call(context.Background(), &horizon.Request{}); err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
	p.Close()
	if _, err := p.Receive(context.Background()); err != horizon.ErrPortClosed {
		t.Fatalf("expected closed port, got %v", err)
	}
	if err := p.Reply(&horizon.Request{}, nil); err == nil {
		t.Fatal("reply to unknown request succeeded")
	}
}

func TestPresentUnhooked(t *testing.T) {
	c := New()
	launch(t, c, 1, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Present(ctx, 0, 0x1f000000, 240*3, 1); !errors.Is(err, ErrNotHooked) {
		t.Fatalf("expected ErrNotHooked, got %v", err)
	}
}

func TestInputEdges(t *testing.T) {
	var in Input
	in.Queue(horizon.ButtonA, horizon.ButtonA|horizon.ButtonB, 0)
	in.Press(horizon.ButtonA)
	want := []horizon.Buttons{horizon.ButtonA, horizon.ButtonB, 0, horizon.ButtonA, 0, 0}
	for i, w := range want {
		in.ScanInput()
		if got := in.JustDown(); got != w {
			t.Fatalf("scan %d: just down %v, expected %v", i, got, w)
		}
	}
	if in.Scans() != len(want) || in.Pending() != 0 {
		t.Fatalf("unexpected scans %d pending %d", in.Scans(), in.Pending())
	}
}

func TestLoadDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.bin")
	if err := os.WriteFile(path, []byte{0xde, 0xad, 0xbe, 0xef}, 0600); err != nil {
		t.Fatal(err)
	}
	d, err := LoadDump(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	b := d.Bytes()
	if !bytes.Equal(b, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("unexpected dump %x", b)
	}
	b[0] = 0
	data, _ := os.ReadFile(path)
	if data[0] != 0xde {
		t.Fatal("write to dump reached the file")
	}
}

func TestGetScreenCall(t *testing.T) {
	// bl from 0x100020 to 0x100000
	if got := GetScreenCall(0x100000, 0x100000); got != 0xebfffff6 {
		t.Fatalf("got %#x", got)
	}
}

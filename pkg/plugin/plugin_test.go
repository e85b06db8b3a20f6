package plugin

import (
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
)

func TestCounterWraps(t *testing.T) {
	c := Counter{value: 3, min: 1, max: 3}
	if got := c.Increment(); got != 1 {
		t.Fatalf("increment at max: got %d", got)
	}
	if got := c.Decrement(); got != 3 {
		t.Fatalf("decrement at min: got %d", got)
	}
	c = Counter{value: 1, min: 0, max: 10}
	if got := c.Increment(); got != 2 {
		t.Fatalf("increment: got %d", got)
	}
}

func TestCounterCycle(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for start := 0; start < n; start++ {
			c := Counter{value: start, min: 0, max: n - 1}
			for i := 0; i < n; i++ {
				c.Increment()
			}
			if c.Value() != start {
				t.Fatalf("n=%d: %d increments from %d ended at %d", n, n, start, c.Value())
			}
			c.Increment()
			c.Decrement()
			if c.Value() != start {
				t.Fatalf("n=%d: decrement did not undo increment at %d", n, start)
			}
			c.Decrement()
			c.Increment()
			if c.Value() != start {
				t.Fatalf("n=%d: increment did not undo decrement at %d", n, start)
			}
		}
	}
}

func TestMenuCursorUpWraps(t *testing.T) {
	m, err := NewMenu([]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 1, 0}
	for i, w := range want {
		m.CursorUp()
		if m.Cursor() != w {
			t.Fatalf("after %d cursor up: at %d, expected %d", i+1, m.Cursor(), w)
		}
	}
	if m.Value() != "a" {
		t.Fatalf("unexpected value %q", m.Value())
	}
}

func TestMenuEmpty(t *testing.T) {
	if _, err := NewMenu(nil); err != ErrEmptyMenu {
		t.Fatalf("expected ErrEmptyMenu, got %v", err)
	}
	if _, err := NewLoaderMenu(nil, 47, "0.3.0"); err != ErrEmptyMenu {
		t.Fatalf("expected ErrEmptyMenu, got %v", err)
	}
}

func TestMenuLines(t *testing.T) {
	m, _ := NewMenu([]string{"a", "b"})
	m.CursorDown()
	if got, want := m.Lines(), []string{"  a", "> b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, expected %q", got, want)
	}
}

func TestDiscoverOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"pnp/global.wasm":                 {Data: []byte{0}},
		"pnp/readme.txt":                  {Data: []byte{0}},
		"pnp/0004000000164800/a.wasm":     {Data: []byte{0}},
		"pnp/0004000000164800/b.wasm":     {Data: []byte{0}},
		"pnp/0004000000164800/sub/c.wasm": {Data: []byte{0}},
		"pnp/0004000000175E00/other.wasm": {Data: []byte{0}},
	}
	cat := Discover(horizon.NewSDMC(fsys), "sd:", "pnp", ".wasm", 0x0004000000164800)
	want := Catalogue{
		"sd:/pnp/0004000000164800/a.wasm",
		"sd:/pnp/0004000000164800/b.wasm",
		"sd:/pnp/global.wasm",
	}
	if !reflect.DeepEqual(cat, want) {
		t.Fatalf("got %q, expected %q", cat, want)
	}
	if names := cat.Names(); names[2] != "global.wasm" {
		t.Fatalf("unexpected names %q", names)
	}
}

func TestDiscoverMissingDirs(t *testing.T) {
	fsys := fstest.MapFS{"other/x.wasm": {Data: []byte{0}}}
	if cat := Discover(horizon.NewSDMC(fsys), "sd:", "pnp", ".wasm", 1); len(cat) != 0 {
		t.Fatalf("expected nothing, got %q", cat)
	}
}

func TestDiscoverNoDedup(t *testing.T) {
	fsys := fstest.MapFS{
		"pnp/p.wasm":                  {Data: []byte{0}},
		"pnp/0000000000000001/p.wasm": {Data: []byte{0}},
	}
	cat := Discover(horizon.NewSDMC(fsys), "sd:/", "/pnp/", ".wasm", 1)
	if len(cat) != 2 || cat[0] != "sd:/pnp/0000000000000001/p.wasm" {
		t.Fatalf("unexpected catalogue %q", cat)
	}
}

type fakeHID struct {
	down horizon.Buttons
}

func (h *fakeHID) ScanInput()                {}
func (h *fakeHID) JustDown() horizon.Buttons { return h.down }

func TestLoaderMenuFrame(t *testing.T) {
	var r display.Recorder
	s, err := display.NewScreen(true, display.VRAMMin, 0, 0, &r)
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewLoaderMenu(Catalogue{"sd:/pnp/a.wasm", "sd:/pnp/b.wasm"}, 47, "0.3.0")
	if err != nil {
		t.Fatal(err)
	}
	hid := &fakeHID{down: horizon.ButtonDDown}
	if err := l.Frame(hid, s); err != nil {
		t.Fatal(err)
	}
	s.Flush()
	want := []string{"Plugin Menu 0.3.0", "", "  sd:/pnp/a.wasm", "> sd:/pnp/b.wasm"}
	if got := r.Text(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, expected %q", got, want)
	}
	hid.down = horizon.ButtonDUp
	l.Frame(hid, s)
	if l.Value() != "sd:/pnp/a.wasm" {
		t.Fatalf("unexpected selection %q", l.Value())
	}
}

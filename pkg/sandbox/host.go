package sandbox

import (
	"context"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
)

// HostModule is the import namespace of the host functions.
const HostModule = "env"

// GameMemory is the view of game memory host calls go through.
// *memory.GameMemory implements it.
type GameMemory interface {
	Read(addr, size uint32) ([]byte, bool)
	WriteBuf(addr, size uint32) ([]byte, bool)
}

// State is the host side state of one plugin instance.
type State struct {
	Title   horizon.TitleID
	game    GameMemory
	hid     horizon.HID
	printer display.TextPrinter
	lines   []string
}

func newState(title horizon.TitleID, game GameMemory, hid horizon.HID) *State {
	return &State{
		Title:   title,
		game:    game,
		hid:     hid,
		printer: display.NewTextPrinter(),
		lines:   make([]string, 0, 30),
	}
}

// Printer returns the current print settings.
func (s *State) Printer() display.TextPrinter {
	return s.printer
}

type stateKey struct{}

func withState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

func stateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}

// hostFunction is one entry of the fixed table of functions plugins may
// import. fn is passed to wazero's HostFunctionBuilder.WithFunc.
type hostFunction struct {
	name string
	fn   interface{}
}

var hostFunctions = []hostFunction{
	{"host_just_pressed", hostJustPressed},
	{"host_is_just_pressed", hostIsJustPressed},
	{"host_read_mem", hostReadMem},
	{"host_write_mem", hostWriteMem},
	{"host_print", hostPrint},
	{"host_set_print_colors", hostSetPrintColors},
	{"host_set_print_max_len", hostSetPrintMaxLen},
	{"host_set_print_x", hostSetPrintX},
	{"host_set_print_y", hostSetPrintY},
	{"host_reset_print", hostResetPrint},
	{"host_get_game_title_id", hostGetGameTitleID},
}

// HostFunctions returns the names of the functions available to plugins.
func HostFunctions() []string {
	r := make([]string, len(hostFunctions))
	for i, f := range hostFunctions {
		r[i] = f.name
	}
	return r
}

func hostJustPressed(ctx context.Context) uint32 {
	s := stateFrom(ctx)
	if s == nil || s.hid == nil {
		return 0
	}
	return uint32(s.hid.JustDown())
}

func hostIsJustPressed(ctx context.Context, bits uint32) uint32 {
	s := stateFrom(ctx)
	if s == nil || s.hid == nil {
		return 0
	}
	if horizon.IsJustPressed(s.hid, horizon.Buttons(bits)) {
		return 1
	}
	return 0
}

func hostReadMem(ctx context.Context, m api.Module, addr, size, out uint32) {
	s := stateFrom(ctx)
	mem := m.Memory()
	if s == nil || s.game == nil || mem == nil {
		return
	}
	buf, ok := s.game.Read(addr, size)
	if !ok {
		return
	}
	mem.Write(out, buf)
}

func hostWriteMem(ctx context.Context, m api.Module, addr, size, in uint32) {
	s := stateFrom(ctx)
	mem := m.Memory()
	if s == nil || s.game == nil || mem == nil {
		return
	}
	dst, ok := s.game.WriteBuf(addr, size)
	if !ok {
		return
	}
	src, ok := mem.Read(in, uint32(len(dst)))
	if !ok {
		return
	}
	copy(dst, src)
}

func hostPrint(ctx context.Context, m api.Module, ptr, size uint32) {
	s := stateFrom(ctx)
	mem := m.Memory()
	if s == nil || mem == nil {
		return
	}
	b, ok := mem.Read(ptr, size)
	if !ok || !utf8.Valid(b) {
		return
	}
	s.lines = append(s.lines, string(b))
}

func hostSetPrintColors(ctx context.Context, text, background uint32) {
	if s := stateFrom(ctx); s != nil {
		s.printer.SetColors(display.RGB(text), display.RGB(background))
	}
}

func hostSetPrintMaxLen(ctx context.Context, maxLen uint32) {
	if s := stateFrom(ctx); s != nil {
		s.printer.MaxLen = uint8(maxLen)
	}
}

func hostSetPrintX(ctx context.Context, x uint32) {
	if s := stateFrom(ctx); s != nil {
		s.printer.X = x
	}
}

func hostSetPrintY(ctx context.Context, y uint32) {
	if s := stateFrom(ctx); s != nil {
		s.printer.Y = y
	}
}

func hostResetPrint(ctx context.Context) {
	if s := stateFrom(ctx); s != nil {
		s.printer.Reset()
	}
}

func hostGetGameTitleID(ctx context.Context) uint64 {
	if s := stateFrom(ctx); s != nil {
		return uint64(s.Title)
	}
	return 0
}

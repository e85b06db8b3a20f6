// Package wasmtest encodes small WebAssembly modules for plugin tests.
package wasmtest

// Value types.
const (
	I32 = 0x7f
	I64 = 0x7e
)

// Opcodes.
const (
	OpUnreachable = 0x00
	OpLoop        = 0x03
	OpIf          = 0x04
	OpEnd         = 0x0b
	OpBr          = 0x0c
	OpCall        = 0x10
	OpGlobalGet   = 0x23
	OpGlobalSet   = 0x24
	OpI64Store    = 0x37
	OpI32Const    = 0x41
	OpI32Eqz      = 0x45

	BlockEmpty = 0x40
)

// Export kinds.
const (
	ExportFunc   = 0x00
	ExportMemory = 0x02
)

// Type is a function type.
type Type struct {
	Params, Results []byte
}

// Import is a function imported from the "env" module.
type Import struct {
	Name string
	Type int
}

type Func struct {
	Type int
	Body []byte
}

type Export struct {
	Name  string
	Kind  byte
	Index int
}

// Module is a module with at most one page of memory, mutable i32 globals
// initialized to zero and active data segments keyed by offset. Start, if
// not nil, is the index of the start function.
type Module struct {
	Types   []Type
	Imports []Import
	Funcs   []Func
	Memory  bool
	Globals int
	Exports []Export
	Start   *int
	Data    map[int32][]byte
}

func ULEB(v uint32) []byte {
	var r []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		r = append(r, b)
		if v == 0 {
			return r
		}
	}
}

func SLEB(v int64) []byte {
	var r []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(r, b)
		}
		r = append(r, b|0x80)
	}
}

func I32Const(v int32) []byte {
	return append([]byte{OpI32Const}, SLEB(int64(v))...)
}

func Call(idx int) []byte {
	return append([]byte{OpCall}, ULEB(uint32(idx))...)
}

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte {
	var r []byte
	for _, p := range parts {
		r = append(r, p...)
	}
	return r
}

func name(s string) []byte {
	return append(ULEB(uint32(len(s))), s...)
}

func vec(items [][]byte) []byte {
	r := ULEB(uint32(len(items)))
	for _, it := range items {
		r = append(r, it...)
	}
	return r
}

func section(id byte, items [][]byte) []byte {
	body := vec(items)
	return Concat([]byte{id}, ULEB(uint32(len(body))), body)
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.Types) > 0 {
		var items [][]byte
		for _, t := range m.Types {
			items = append(items, Concat([]byte{0x60}, ULEB(uint32(len(t.Params))), t.Params, ULEB(uint32(len(t.Results))), t.Results))
		}
		out = append(out, section(1, items)...)
	}
	if len(m.Imports) > 0 {
		var items [][]byte
		for _, imp := range m.Imports {
			items = append(items, Concat(name("env"), name(imp.Name), []byte{ExportFunc}, ULEB(uint32(imp.Type))))
		}
		out = append(out, section(2, items)...)
	}
	if len(m.Funcs) > 0 {
		var items [][]byte
		for _, f := range m.Funcs {
			items = append(items, ULEB(uint32(f.Type)))
		}
		out = append(out, section(3, items)...)
	}
	if m.Memory {
		out = append(out, section(5, [][]byte{{0x00, 0x01}})...)
	}
	if m.Globals > 0 {
		var items [][]byte
		for i := 0; i < m.Globals; i++ {
			items = append(items, Concat([]byte{I32, 0x01}, I32Const(0), []byte{OpEnd}))
		}
		out = append(out, section(6, items)...)
	}
	if len(m.Exports) > 0 {
		var items [][]byte
		for _, e := range m.Exports {
			items = append(items, Concat(name(e.Name), []byte{e.Kind}, ULEB(uint32(e.Index))))
		}
		out = append(out, section(7, items)...)
	}
	if m.Start != nil {
		out = append(out, Concat([]byte{8}, ULEB(uint32(len(ULEB(uint32(*m.Start))))), ULEB(uint32(*m.Start)))...)
	}
	if len(m.Funcs) > 0 {
		var items [][]byte
		for _, f := range m.Funcs {
			// no locals
			body := Concat([]byte{0x00}, f.Body, []byte{OpEnd})
			items = append(items, Concat(ULEB(uint32(len(body))), body))
		}
		out = append(out, section(10, items)...)
	}
	if len(m.Data) > 0 {
		var items [][]byte
		for off, b := range m.Data {
			items = append(items, Concat([]byte{0x00}, I32Const(off), []byte{OpEnd}, ULEB(uint32(len(b))), b))
		}
		out = append(out, section(11, items)...)
	}
	return out
}

// Plugin returns a plugin whose run_frame executes body. The imports are
// numbered from zero in order, run_frame follows them. The module exports
// one page of memory.
func Plugin(types []Type, imports []Import, body []byte, data map[int32][]byte, globals int) []byte {
	m := &Module{
		Types:   append(append([]Type(nil), types...), Type{}),
		Imports: imports,
		Funcs:   []Func{{Type: len(types), Body: body}},
		Memory:  true,
		Globals: globals,
		Exports: []Export{
			{Name: "run_frame", Kind: ExportFunc, Index: len(imports)},
			{Name: "memory", Kind: ExportMemory, Index: 0},
		},
		Data: data,
	}
	return m.Bytes()
}

// Hello returns a plugin that prints text on its first frame only.
func Hello(text string) []byte {
	body := Concat(
		[]byte{OpGlobalGet, 0, OpI32Eqz, OpIf, BlockEmpty},
		I32Const(0), I32Const(int32(len(text))), Call(0),
		I32Const(1), []byte{OpGlobalSet, 0, OpEnd},
	)
	return Plugin([]Type{{Params: []byte{I32, I32}}}, []Import{{"host_print", 0}}, body, map[int32][]byte{0: []byte(text)}, 1)
}

// Printer returns a plugin that prints text on every frame.
func Printer(text string) []byte {
	body := Concat(I32Const(0), I32Const(int32(len(text))), Call(0))
	return Plugin([]Type{{Params: []byte{I32, I32}}}, []Import{{"host_print", 0}}, body, map[int32][]byte{0: []byte(text)}, 0)
}

// Flood returns a plugin that prints text n times on every frame.
func Flood(text string, n int) []byte {
	var body []byte
	for i := 0; i < n; i++ {
		body = Concat(body, I32Const(0), I32Const(int32(len(text))), Call(0))
	}
	return Plugin([]Type{{Params: []byte{I32, I32}}}, []Import{{"host_print", 0}}, body, map[int32][]byte{0: []byte(text)}, 0)
}

// StartPrinter returns a plugin without run_frame whose start function
// prints text.
func StartPrinter(text string) []byte {
	start := 1
	m := &Module{
		Types:   []Type{{Params: []byte{I32, I32}}, {}},
		Imports: []Import{{"host_print", 0}},
		Funcs:   []Func{{Type: 1, Body: Concat(I32Const(0), I32Const(int32(len(text))), Call(0))}},
		Memory:  true,
		Exports: []Export{{Name: "memory", Kind: ExportMemory, Index: 0}},
		Start:   &start,
		Data:    map[int32][]byte{0: []byte(text)},
	}
	return m.Bytes()
}

// Trap returns a plugin whose run_frame always traps.
func Trap() []byte {
	return Plugin(nil, nil, []byte{OpUnreachable}, nil, 0)
}

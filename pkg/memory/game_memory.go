package memory

import (
	"errors"
	"math"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// ErrNoRegion is returned by ReadMemory and WriteMemory for addresses that
// are not inside the game's code or heap.
var ErrNoRegion = errors.New("address is not in a game memory region")

// ErrStale is returned by ReadMemory and WriteMemory once the game the
// memory was captured from is gone.
var ErrStale = errors.New("game memory belongs to a previous launch")

// MemoryReader is like io.ReaderAt, but the offset is a game virtual
// address.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint32) (n int, err error)
}

// MemoryReadWriter reads and writes game memory.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint32, data []byte) (written int, err error)
}

// GameMemory is the memory bridge to one running game: its code region and
// its heap region.
type GameMemory struct {
	code  *Region
	heap  *Region
	gen   *Generation
	epoch uint64
}

// New captures the code and heap of title. The result stays valid until gen
// advances; gen may be nil for memory that never goes stale.
func New(k horizon.Kernel, title horizon.TitleID, ext ExtendedTitles, gen *Generation) (*GameMemory, error) {
	code, err := NewCodeRegion(k, title)
	if err != nil {
		return nil, err
	}
	heap, err := NewHeapRegion(k, title, ext)
	if err != nil {
		return nil, err
	}
	return NewFromRegions(code, heap, gen), nil
}

// NewFromRegions builds a GameMemory out of already captured regions.
func NewFromRegions(code, heap *Region, gen *Generation) *GameMemory {
	g := &GameMemory{code: code, heap: heap, gen: gen}
	if gen != nil {
		g.epoch = gen.Current()
	}
	return g
}

// Code returns the code region.
func (g *GameMemory) Code() *Region { return g.code }

// Heap returns the heap region.
func (g *GameMemory) Heap() *Region { return g.heap }

// Valid reports whether the memory still belongs to the running game.
func (g *GameMemory) Valid() bool {
	return g.gen == nil || g.gen.Current() == g.epoch
}

func (g *GameMemory) region(addr uint32) *Region {
	kind, ok := Classify(addr)
	if !ok {
		return nil
	}
	if kind == Code {
		return g.code
	}
	return g.heap
}

func (g *GameMemory) resolve(addr, size uint32) ([]byte, bool) {
	if !g.Valid() {
		return nil, false
	}
	r := g.region(addr)
	if r == nil {
		return nil, false
	}
	var offset uint32
	if addr > r.BaseAddr {
		offset = addr - r.BaseAddr
	}
	return r.Slice(uint64(offset), uint64(size)), true
}

// Read returns a view of at most size bytes of game memory starting at
// addr. The view is truncated at the end of the region and empty when addr
// is past it. The second result is false when addr is outside every region.
// The view aliases game memory and must not be written to; use WriteBuf.
func (g *GameMemory) Read(addr, size uint32) ([]byte, bool) {
	return g.resolve(addr, size)
}

// WriteBuf returns a writable view of game memory, clamped exactly like
// Read.
func (g *GameMemory) WriteBuf(addr, size uint32) ([]byte, bool) {
	return g.resolve(addr, size)
}

func (g *GameMemory) err() error {
	if !g.Valid() {
		return ErrStale
	}
	return ErrNoRegion
}

// ReadMemory copies game memory at addr into buf.
func (g *GameMemory) ReadMemory(buf []byte, addr uint32) (int, error) {
	view, ok := g.Read(addr, size32(len(buf)))
	if !ok {
		return 0, g.err()
	}
	return copy(buf, view), nil
}

// WriteMemory copies data into game memory at addr, truncated at the end
// of the region.
func (g *GameMemory) WriteMemory(addr uint32, data []byte) (int, error) {
	view, ok := g.WriteBuf(addr, size32(len(data)))
	if !ok {
		return 0, g.err()
	}
	return copy(view, data), nil
}

func size32(n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// fakeKernel maps every process block to a physical address equal to its
// virtual address plus physOffset.
type fakeKernel struct {
	procs    map[horizon.TitleID]*fakeProcess
	phys     map[uint32][]byte
	mapped   map[uint32]uint32
	unmapped int
}

const physOffset = 0x20000000

type fakeProcess struct {
	k      *fakeKernel
	blocks map[uint32][]byte
	closed bool
}

func (p *fakeProcess) Handle() horizon.Handle { return 1 }

func (p *fakeProcess) QueryMemory(addr uint32) (horizon.MemInfo, error) {
	mem, ok := p.blocks[addr]
	if !ok {
		return horizon.MemInfo{}, horizon.ErrInvalidPointer
	}
	return horizon.MemInfo{BaseAddr: addr, Size: uint32(len(mem))}, nil
}

func (p *fakeProcess) MapMemoryEx(dst, src, size uint32) error {
	p.k.mapped[dst] = src + physOffset
	return nil
}

func (p *fakeProcess) UnmapMemoryEx(dst, size uint32) error {
	delete(p.k.mapped, dst)
	p.k.unmapped++
	return nil
}

func (p *fakeProcess) CopyHandleTo(h horizon.Handle) (horizon.Handle, error) { return h, nil }

func (p *fakeProcess) Close() error {
	p.closed = true
	return nil
}

func (k *fakeKernel) OpenProcess(title horizon.TitleID) (horizon.Process, error) {
	p, ok := k.procs[title]
	if !ok {
		return nil, horizon.ErrNotFound
	}
	return p, nil
}

func (k *fakeKernel) RunningTitleID() (horizon.TitleID, error) { return 0, horizon.ErrNotFound }

func (k *fakeKernel) MappableAlloc(size uint32) (uint32, error) { return 0x10000000, nil }

func (k *fakeKernel) ConvertVAToPA(va uint32, writeCheck bool) uint32 { return k.mapped[va] }

func (k *fakeKernel) ConvertPAToUncachedPA(pa uint32) (uint32, error) {
	if pa == 0 {
		return 0, horizon.ErrInvalidPointer
	}
	return pa | 0x80000000, nil
}

func (k *fakeKernel) PhysicalMemory(pa uint32, size uint32) ([]byte, error) {
	mem, ok := k.phys[pa]
	if !ok {
		return nil, horizon.ErrInvalidPointer
	}
	return mem[:size], nil
}

func (k *fakeKernel) SleepThread(d time.Duration) {}

func (k *fakeKernel) GetServiceHandle(name string) (horizon.Handle, error) {
	return 0, horizon.ErrNotFound
}

func newFakeKernel(title horizon.TitleID, code, heap []byte) *fakeKernel {
	k := &fakeKernel{
		procs:  map[horizon.TitleID]*fakeProcess{},
		phys:   map[uint32][]byte{},
		mapped: map[uint32]uint32{},
	}
	k.procs[title] = &fakeProcess{k: k, blocks: map[uint32][]byte{CodeVAddr: code, HeapVAddr: heap}}
	k.phys[(CodeVAddr+physOffset)|0x80000000] = code
	k.phys[(HeapVAddr+physOffset)|0x80000000] = heap
	return k
}

func TestNewGameMemory(t *testing.T) {
	code := make([]byte, 0x1000)
	code[0x10], code[0x11], code[0x12], code[0x13] = 1, 2, 3, 4
	heap := make([]byte, 0x2000)
	const title = horizon.TitleID(0x0004000000055D00)
	k := newFakeKernel(title, code, heap)

	g, err := New(k, title, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Code().BaseAddr != 0x00100000 || g.Heap().BaseAddr != 0x08000000 {
		t.Fatalf("unexpected bases %#x %#x", g.Code().BaseAddr, g.Heap().BaseAddr)
	}
	b, ok := g.Read(0x00100010, 4)
	if !ok || len(b) != 4 || b[0] != 1 || b[3] != 4 {
		t.Fatalf("unexpected read %v %v", b, ok)
	}
	if len(k.mapped) != 0 || k.unmapped != 2 {
		t.Fatalf("scratch mappings should be released, %d left, %d unmapped", len(k.mapped), k.unmapped)
	}
	if !k.procs[title].closed {
		t.Fatalf("process handle should be closed")
	}

	// The window aliases the game's memory.
	code[0x10] = 0x42
	if b, _ := g.Read(0x00100010, 1); b[0] != 0x42 {
		t.Fatalf("window should alias game memory")
	}
}

func TestNewGameMemoryExtendedHeap(t *testing.T) {
	const title = horizon.TitleID(0x0004000000164800)
	k := newFakeKernel(title, make([]byte, 0x100), nil)
	ext := make([]byte, 0x400)
	ext[0] = 0x77
	k.procs[title].blocks[ExtendedHeapVAddr] = ext
	k.phys[UncachedFCRAMBase] = ext

	g, err := New(k, title, ExtendedTitles{title}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Heap().Kind != ExtendedHeap || g.Heap().BaseAddr != ExtendedHeapVAddr {
		t.Fatalf("unexpected heap region %v %#x", g.Heap().Kind, g.Heap().BaseAddr)
	}
	if b, ok := g.Read(ExtendedHeapVAddr, 1); !ok || b[0] != 0x77 {
		t.Fatalf("unexpected read %v %v", b, ok)
	}
}

func TestNewGameMemoryErrors(t *testing.T) {
	const title = horizon.TitleID(0x0004000000055D00)
	k := newFakeKernel(title, make([]byte, 0x100), make([]byte, 0x100))

	_, err := New(k, 0x0004000000000001, nil, nil)
	var rerr *ResolveError
	if !errors.As(err, &rerr) || !errors.Is(err, horizon.ErrNotFound) {
		t.Fatalf("expected a resolve error wrapping ErrNotFound, got %v", err)
	}

	delete(k.procs[title].blocks, HeapVAddr)
	_, err = New(k, title, nil, nil)
	if !errors.As(err, &rerr) || rerr.Kind != Heap || rerr.Op != "query memory" {
		t.Fatalf("expected a heap query error, got %v", err)
	}
}

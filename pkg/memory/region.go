package memory

import (
	"bytes"
	"fmt"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
)

// ExtendedTitles is the set of titles that run in extended memory mode.
type ExtendedTitles []horizon.TitleID

// Contains reports whether title runs in extended memory mode.
func (e ExtendedTitles) Contains(title horizon.TitleID) bool {
	for _, t := range e {
		if t == title {
			return true
		}
	}
	return false
}

// ResolveError is returned when a region of a game could not be captured.
type ResolveError struct {
	Title horizon.TitleID
	Kind  Kind
	Op    string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("could not resolve %s region of title %v: %s: %v", e.Kind, e.Title, e.Op, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Pattern is the location of a byte signature inside a Region.
type Pattern struct {
	// Offset is relative to the start of the region.
	Offset int
	// Addr is the game virtual address of the match.
	Addr uint32
}

// Region is one window of a game's memory. Mem aliases the game's physical
// memory; it is borrowed, not owned, and only describes the game for as
// long as the process that was queried is alive.
type Region struct {
	Kind     Kind
	BaseAddr uint32
	Mem      []byte
}

// NewRegion wraps an already captured window.
func NewRegion(kind Kind, base uint32, mem []byte) *Region {
	return &Region{Kind: kind, BaseAddr: base, Mem: mem}
}

// Size returns the length of the window.
func (r *Region) Size() int {
	return len(r.Mem)
}

// Contains reports whether addr falls inside the window.
func (r *Region) Contains(addr uint32) bool {
	return addr >= r.BaseAddr && uint64(addr-r.BaseAddr) < uint64(len(r.Mem))
}

// Slice returns the clamped view of size bytes starting at offset.
func (r *Region) Slice(offset, size uint64) []byte {
	return window(r.Mem, offset, size)
}

// FindPattern returns the first occurrence of sig in the region.
func (r *Region) FindPattern(sig []byte) (Pattern, bool) {
	if len(sig) == 0 {
		return Pattern{}, false
	}
	off := bytes.Index(r.Mem, sig)
	if off < 0 {
		return Pattern{}, false
	}
	return Pattern{Offset: off, Addr: r.BaseAddr + uint32(off)}, true
}

// NewCodeRegion captures the code segment of title.
func NewCodeRegion(k horizon.Kernel, title horizon.TitleID) (*Region, error) {
	proc, err := k.OpenProcess(title)
	if err != nil {
		return nil, &ResolveError{Title: title, Kind: Code, Op: "open process", Err: err}
	}
	defer proc.Close()
	return newRegular(k, proc, title, Code, CodeVAddr)
}

// NewHeapRegion captures the heap of title. Titles listed in ext have
// their heap at ExtendedHeapVAddr.
func NewHeapRegion(k horizon.Kernel, title horizon.TitleID, ext ExtendedTitles) (*Region, error) {
	proc, err := k.OpenProcess(title)
	if err != nil {
		return nil, &ResolveError{Title: title, Kind: Heap, Op: "open process", Err: err}
	}
	defer proc.Close()
	if ext.Contains(title) {
		return newExtendedHeap(k, proc, title)
	}
	return newRegular(k, proc, title, Heap, HeapVAddr)
}

func newExtendedHeap(k horizon.Kernel, proc horizon.Process, title horizon.TitleID) (*Region, error) {
	info, err := proc.QueryMemory(ExtendedHeapVAddr)
	if err != nil {
		return nil, &ResolveError{Title: title, Kind: ExtendedHeap, Op: "query memory", Err: err}
	}
	mem, err := k.PhysicalMemory(UncachedFCRAMBase, info.Size)
	if err != nil {
		return nil, &ResolveError{Title: title, Kind: ExtendedHeap, Op: "physical memory", Err: err}
	}
	logflags.MemoryLogger().Debugf("title %v: extended heap %#x+%#x at pa %#x", title, ExtendedHeapVAddr, info.Size, UncachedFCRAMBase)
	return &Region{Kind: ExtendedHeap, BaseAddr: ExtendedHeapVAddr, Mem: mem}, nil
}

// newRegular maps the block at addr into the service, takes the uncached
// physical alias of the mapping and unmaps it again. The physical alias
// stays usable after the unmap.
func newRegular(k horizon.Kernel, proc horizon.Process, title horizon.TitleID, kind Kind, addr uint32) (*Region, error) {
	fail := func(op string, err error) (*Region, error) {
		return nil, &ResolveError{Title: title, Kind: kind, Op: op, Err: err}
	}

	info, err := proc.QueryMemory(addr)
	if err != nil {
		return fail("query memory", err)
	}
	dst, err := k.MappableAlloc(info.Size)
	if err != nil {
		return fail("mappable alloc", err)
	}
	if err := proc.MapMemoryEx(dst, info.BaseAddr, info.Size); err != nil {
		return fail("map memory", err)
	}
	pa := k.ConvertVAToPA(dst, true)
	upa, err := k.ConvertPAToUncachedPA(pa)
	if err != nil {
		_ = proc.UnmapMemoryEx(dst, info.Size)
		return fail("convert pa", err)
	}
	if err := proc.UnmapMemoryEx(dst, info.Size); err != nil {
		return fail("unmap memory", err)
	}
	mem, err := k.PhysicalMemory(upa, info.Size)
	if err != nil {
		return fail("physical memory", err)
	}
	logflags.MemoryLogger().Debugf("title %v: %s %#x+%#x at pa %#x", title, kind, info.BaseAddr, info.Size, upa)
	return &Region{Kind: kind, BaseAddr: info.BaseAddr, Mem: mem}, nil
}

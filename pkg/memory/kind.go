// Package memory gives the service access to the memory of the running
// game.
//
// A game exposes two windows: its code segment and its heap. Both are
// captured once per launch as raw views of physical memory, so they can be
// read and written from the service without walking the game's page tables.
package memory

// Kind classifies a game virtual address.
type Kind uint8

const (
	Code Kind = iota
	Heap
	ExtendedHeap
)

func (k Kind) String() string {
	switch k {
	case Code:
		return "code"
	case Heap:
		return "heap"
	case ExtendedHeap:
		return "extended-heap"
	}
	return "unknown"
}

// Virtual address layout of a game process. The upper bounds are inclusive.
const (
	CodeVAddr       uint32 = 0x00100000
	CodeMaxEndVAddr uint32 = 0x04000000

	HeapVAddr       uint32 = 0x08000000
	HeapMaxEndVAddr uint32 = 0x10000000

	ExtendedHeapVAddr       uint32 = 0x30000000
	ExtendedHeapMaxEndVAddr uint32 = 0x40000000
)

// UncachedFCRAMBase is the uncached physical alias of the start of FCRAM.
// In extended memory mode the console resets and the game heap always
// starts there.
const UncachedFCRAMBase uint32 = 0xA0000000

func between(v, lo, hi uint32) bool {
	return lo <= v && v <= hi
}

// Classify returns the region addr belongs to. The second result is false
// if addr is outside of every known region.
func Classify(addr uint32) (Kind, bool) {
	switch {
	case between(addr, CodeVAddr, CodeMaxEndVAddr):
		return Code, true
	case between(addr, HeapVAddr, HeapMaxEndVAddr):
		return Heap, true
	case between(addr, ExtendedHeapVAddr, ExtendedHeapMaxEndVAddr):
		return ExtendedHeap, true
	}
	return 0, false
}

// Package sim is an in-process console. It implements every interface of
// package horizon on top of plain byte slices, so the service can be run
// and tested without hardware.
//
// Physical memory is a set of banks inside FCRAM. Game code and heap
// blocks each live in their own bank; the uncached alias of a physical
// address is the address plus UncachedOffset, as on the real console.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
)

// Physical memory layout.
const (
	FCRAMBase      uint32 = 0x20000000
	FCRAMEnd       uint32 = 0x30000000
	UncachedOffset uint32 = 0x80000000

	// Regular games are placed above the extended memory heap.
	gamePABase uint32 = 0x24000000

	// Service address space memory can be mapped into.
	MappableBase uint32 = 0x10000000
	MappableEnd  uint32 = 0x14000000

	pageSize = 0x1000
)

// PnpServiceName is the service the frame hook calls into.
const PnpServiceName = "pnp:game"

type bank struct {
	pa  uint32
	mem []byte
}

func (b *bank) contains(pa, size uint32) bool {
	return pa >= b.pa && uint64(pa)+uint64(size) <= uint64(b.pa)+uint64(len(b.mem))
}

type mapping struct {
	pa   uint32
	size uint32
}

// Console is a simulated console. The zero value is not usable, use New.
type Console struct {
	// Input is the controller. Tests queue button states on it.
	Input *Input
	// Screens records what the service draws.
	Screens *display.Recorder

	mu          sync.Mutex
	banks       []*bank
	nextPA      uint32
	games       map[horizon.TitleID]*Game
	running     *Game
	mapped      map[uint32]mapping
	nextMapped  uint32
	nextHandle  uint32
	services    map[string]bool
	sessions    map[horizon.Handle]string
	sleep       func(time.Duration)
	port        *Port
	openHandles int
}

// New returns a console with no running game and the pnp service
// registered.
func New() *Console {
	return &Console{
		Input:      &Input{},
		Screens:    &display.Recorder{},
		nextPA:     gamePABase,
		games:      make(map[horizon.TitleID]*Game),
		mapped:     make(map[uint32]mapping),
		nextMapped: MappableBase,
		nextHandle: 0x100,
		services:   map[string]bool{PnpServiceName: true},
		sessions:   make(map[horizon.Handle]string),
		sleep:      time.Sleep,
		port:       NewPort(),
	}
}

// SetSleep replaces the function SleepThread uses to wait.
func (c *Console) SetSleep(f func(time.Duration)) {
	c.mu.Lock()
	c.sleep = f
	c.mu.Unlock()
}

// Port returns the port of the pnp service.
func (c *Console) Port() *Port {
	return c.port
}

func (c *Console) newHandle() horizon.Handle {
	c.nextHandle++
	return horizon.Handle(c.nextHandle)
}

// addBank places mem in physical memory at pa, replacing any bank
// overlapping it.
func (c *Console) addBank(pa uint32, mem []byte) {
	end := uint64(pa) + uint64(len(mem))
	kept := c.banks[:0]
	for _, b := range c.banks {
		if uint64(b.pa) < end && uint64(pa) < uint64(b.pa)+uint64(len(b.mem)) {
			continue
		}
		kept = append(kept, b)
	}
	c.banks = append(kept, &bank{pa: pa, mem: mem})
	sort.Slice(c.banks, func(i, j int) bool { return c.banks[i].pa < c.banks[j].pa })
}

func (c *Console) removeBank(pa uint32) {
	for i, b := range c.banks {
		if b.pa == pa {
			c.banks = append(c.banks[:i], c.banks[i+1:]...)
			return
		}
	}
}

func (c *Console) allocPA(size int) (uint32, error) {
	pa := c.nextPA
	n := (uint64(size) + pageSize - 1) &^ (pageSize - 1)
	if uint64(pa)+n > uint64(FCRAMEnd) {
		return 0, horizon.ErrInvalidValue.WithOp("out of physical memory")
	}
	c.nextPA = pa + uint32(n)
	return pa, nil
}

func (c *Console) OpenProcess(title horizon.TitleID) (horizon.Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[title]
	if !ok {
		return nil, horizon.ErrNotFound.WithOp(fmt.Sprintf("open process %v", title))
	}
	c.openHandles++
	return &process{c: c, g: g, h: c.newHandle()}, nil
}

func (c *Console) RunningTitleID() (horizon.TitleID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running == nil {
		return 0, horizon.ErrNotFound.WithOp("get current app info")
	}
	return c.running.Title, nil
}

func (c *Console) MappableAlloc(size uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.mapped) == 0 {
		c.nextMapped = MappableBase
	}
	va := c.nextMapped
	n := (uint64(size) + pageSize - 1) &^ (pageSize - 1)
	if uint64(va)+n > uint64(MappableEnd) {
		return 0, horizon.ErrInvalidValue.WithOp("mappable alloc")
	}
	c.nextMapped = va + uint32(n)
	return va, nil
}

func (c *Console) ConvertVAToPA(va uint32, writeCheck bool) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for base, m := range c.mapped {
		if va >= base && va-base < m.size {
			return m.pa + (va - base)
		}
	}
	return 0
}

func (c *Console) ConvertPAToUncachedPA(pa uint32) (uint32, error) {
	if pa < FCRAMBase || pa >= FCRAMEnd {
		return 0, horizon.ErrInvalidValue.WithOp("convert pa")
	}
	return pa + UncachedOffset, nil
}

func (c *Console) PhysicalMemory(upa uint32, size uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if upa < FCRAMBase+UncachedOffset {
		return nil, horizon.ErrInvalidPointer.WithOp("physical memory")
	}
	pa := upa - UncachedOffset
	for _, b := range c.banks {
		if b.contains(pa, size) {
			off := pa - b.pa
			return b.mem[off : off+size : off+size], nil
		}
	}
	return nil, horizon.ErrInvalidPointer.WithOp("physical memory")
}

func (c *Console) SleepThread(d time.Duration) {
	c.mu.Lock()
	sleep := c.sleep
	c.mu.Unlock()
	sleep(d)
}

func (c *Console) GetServiceHandle(name string) (horizon.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.services[name] {
		return 0, horizon.ErrNotFound.WithOp("get service handle " + name)
	}
	h := c.newHandle()
	c.sessions[h] = name
	return h, nil
}

// OpenHandles returns the number of process handles that were opened and
// not closed yet.
func (c *Console) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openHandles
}

// Mapped returns the number of live mappings in the service address space.
func (c *Console) Mapped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mapped)
}

type process struct {
	c      *Console
	g      *Game
	h      horizon.Handle
	closed bool
}

var errClosed = horizon.ErrInvalidValue.WithOp("closed process handle")

func (p *process) Handle() horizon.Handle { return p.h }

func (p *process) QueryMemory(addr uint32) (horizon.MemInfo, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if p.closed {
		return horizon.MemInfo{}, errClosed
	}
	for _, b := range p.g.blocks() {
		if addr >= b.va && uint64(addr) < uint64(b.va)+uint64(len(b.mem)) {
			return horizon.MemInfo{BaseAddr: b.va, Size: uint32(len(b.mem)), Perm: b.perm, State: b.state}, nil
		}
	}
	return horizon.MemInfo{}, horizon.ErrNotFound.WithOp(fmt.Sprintf("query memory %#x", addr))
}

func (p *process) MapMemoryEx(dst, src, size uint32) error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if p.closed {
		return errClosed
	}
	for _, b := range p.g.blocks() {
		if src >= b.va && uint64(src)+uint64(size) <= uint64(b.va)+uint64(len(b.mem)) {
			p.c.mapped[dst] = mapping{pa: b.pa + (src - b.va), size: size}
			return nil
		}
	}
	return horizon.ErrInvalidPointer.WithOp(fmt.Sprintf("map memory %#x", src))
}

func (p *process) UnmapMemoryEx(dst, size uint32) error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if _, ok := p.c.mapped[dst]; !ok {
		return horizon.ErrInvalidPointer.WithOp(fmt.Sprintf("unmap memory %#x", dst))
	}
	delete(p.c.mapped, dst)
	return nil
}

func (p *process) CopyHandleTo(h horizon.Handle) (horizon.Handle, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if p.closed {
		return 0, errClosed
	}
	if _, ok := p.c.sessions[h]; !ok {
		return 0, horizon.ErrInvalidValue.WithOp("copy handle")
	}
	gh := p.c.newHandle()
	p.g.handles[gh] = h
	return gh, nil
}

func (p *process) Close() error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if p.closed {
		return errClosed
	}
	p.closed = true
	p.c.openHandles--
	return nil
}

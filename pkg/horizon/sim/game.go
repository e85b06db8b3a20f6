package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/memory"
)

// Memory permissions and states reported by QueryMemory.
const (
	permRX = 5
	permRW = 3

	statePrivate = 5
	stateCode    = 6
)

// GameSpec describes a game to launch.
type GameSpec struct {
	Title horizon.TitleID
	// Code is the code segment. It becomes the backing physical memory
	// of the game and is not copied.
	Code []byte
	// HeapSize is the size of the heap, which starts zeroed.
	HeapSize uint32
	// Extended places the heap at the extended memory address.
	Extended bool
	// PresentOffset is the offset of the presentation routine in Code.
	PresentOffset int
}

// Game is a running game.
type Game struct {
	Title    horizon.TitleID
	Code     []byte
	Heap     []byte
	CodeBase uint32
	HeapBase uint32

	codePA        uint32
	heapPA        uint32
	presentOffset int
	handles       map[horizon.Handle]horizon.Handle
}

type block struct {
	va, pa      uint32
	mem         []byte
	perm, state uint32
}

func (g *Game) blocks() []block {
	return []block{
		{va: g.CodeBase, pa: g.codePA, mem: g.Code, perm: permRX, state: stateCode},
		{va: g.HeapBase, pa: g.heapPA, mem: g.Heap, perm: permRW, state: statePrivate},
	}
}

// Launch starts a game, replacing the running one, and notifies the pnp
// service.
func (c *Console) Launch(spec GameSpec) (*Game, error) {
	if len(spec.Code) == 0 {
		return nil, errors.New("game has no code")
	}
	c.mu.Lock()
	c.exitLocked()
	g := &Game{
		Title:         spec.Title,
		Code:          spec.Code,
		Heap:          make([]byte, spec.HeapSize),
		CodeBase:      memory.CodeVAddr,
		HeapBase:      memory.HeapVAddr,
		presentOffset: spec.PresentOffset,
		handles:       make(map[horizon.Handle]horizon.Handle),
	}
	var err error
	if g.codePA, err = c.allocPA(len(g.Code)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if spec.Extended {
		g.HeapBase = memory.ExtendedHeapVAddr
		g.heapPA = memory.UncachedFCRAMBase - UncachedOffset
	} else if g.heapPA, err = c.allocPA(len(g.Heap)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.addBank(g.codePA, g.Code)
	c.addBank(g.heapPA, g.Heap)
	c.games[g.Title] = g
	c.running = g
	c.mu.Unlock()

	c.port.Notify(horizon.NotificationLaunchApp)
	return g, nil
}

// Exit terminates the running game.
func (c *Console) Exit() {
	c.mu.Lock()
	c.exitLocked()
	c.mu.Unlock()
}

func (c *Console) exitLocked() {
	g := c.running
	if g == nil {
		return
	}
	c.removeBank(g.codePA)
	c.removeBank(g.heapPA)
	delete(c.games, g.Title)
	c.running = nil
	c.nextPA = gamePABase
}

// Running returns the running game, or nil.
func (c *Console) Running() *Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Shutdown asks the pnp service to terminate.
func (c *Console) Shutdown() {
	c.port.Notify(horizon.NotificationTermination)
}

// ErrNotHooked is returned by Present when the game's presentation
// routine does not call the pnp service.
var ErrNotHooked = errors.New("presentation routine is not hooked")

// Present runs the game's presentation routine for one screen. If the
// routine is hooked, the trampoline's RunGameHook request is sent to the
// pnp service and Present returns its result once the service replies.
func (c *Console) Present(ctx context.Context, screenID, framebuffer, stride, format uint32) error {
	req, err := c.hookRequest(screenID, framebuffer, stride, format)
	if err != nil {
		return err
	}
	return c.port.Call(ctx, req)
}

// PresentAsync is Present on a new goroutine. The result is delivered on
// the returned channel.
func (c *Console) PresentAsync(ctx context.Context, screenID, framebuffer, stride, format uint32) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- c.Present(ctx, screenID, framebuffer, stride, format)
	}()
	return ch
}

func (c *Console) hookRequest(screenID, framebuffer, stride, format uint32) (*horizon.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.running
	if g == nil {
		return nil, horizon.ErrNotFound.WithOp("present")
	}
	code := memory.NewRegion(memory.Code, g.CodeBase, g.Code)
	gameHandle, header, err := hook.Installed(code, g.presentOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotHooked, err)
	}
	session, ok := g.handles[gameHandle]
	if !ok {
		return nil, horizon.ErrInvalidValue.WithOp(fmt.Sprintf("trampoline session handle %#x", gameHandle))
	}
	return &horizon.Request{
		Session: session,
		Header:  header,
		Params:  []uint32{0, screenID, framebuffer, stride, format},
	}, nil
}

// Routine layout of a game's presentation routine, as far as the
// trampoline cares.
var (
	routinePrologue = []uint32{
		0xe92d4ff0, // push {r4, r5, r6, r7, r8, r9, r10, r11, lr}
		0xe24dd01c, // sub sp, sp, #0x1c
	}
	routineAfterSignature = []uint32{
		0xe1a04000, // mov r4, r0
		0xe1a05002, // mov r5, r2
	}
)

const nop uint32 = 0xe320f000

// GetScreenCall returns the bl instruction a routine at routine uses to
// call target.
func GetScreenCall(routine, target uint32) uint32 {
	site := routine + hook.OriginalBranchOffset
	off := (int32(target) - int32(site) - 8) >> 2
	return 0xeb000000 | uint32(off)&0xffffff
}

// NewCode returns a code segment of size bytes filled with nops that
// contains an unpatched presentation routine at offset.
func NewCode(size, offset int) []byte {
	code := make([]byte, size)
	for i := 0; i+4 <= size; i += 4 {
		binary.LittleEndian.PutUint32(code[i:], nop)
	}
	if offset < 0 || offset+hook.Size > size {
		return code
	}
	r := code[offset:]
	for i, w := range routinePrologue {
		binary.LittleEndian.PutUint32(r[i*4:], w)
	}
	copy(r[hook.SignatureOffset:], hook.Signature)
	sigEnd := hook.SignatureOffset + len(hook.Signature)
	for i, w := range routineAfterSignature {
		binary.LittleEndian.PutUint32(r[sigEnd+i*4:], w)
	}
	routine := memory.CodeVAddr + uint32(offset)
	binary.LittleEndian.PutUint32(r[hook.OriginalBranchOffset:], GetScreenCall(routine, memory.CodeVAddr))
	return code
}

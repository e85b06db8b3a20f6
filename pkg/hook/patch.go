// Package hook installs the trampoline that makes a game call the pnp
// service once per presented frame.
//
// The game's framebuffer presentation routine is located by a byte
// signature and its start is overwritten with a fixed ARM routine that
// saves the screen arguments, sends a RunGameHook request over the pnp
// session, then continues with the original work of the routine.
package hook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/memory"
)

// RunGameHookCommand is the command id the trampoline sends.
const RunGameHookCommand uint16 = 1

// RunGameHookHeader is the command header word embedded in the trampoline:
// RunGameHookCommand with five normal parameters.
var RunGameHookHeader = horizon.MakeHeader(RunGameHookCommand, 5, 0)

// Signature appears two instructions into the presentation routine of every
// game. The registers used by the surrounding code differ between games,
// these four instructions do not.
var Signature = []byte{
	0x28, 0x00, 0x8d, 0xe2, 0x00, 0x80, 0xa0, 0xe3, 0x01, 0x70, 0xa0, 0xe1, 0x00, 0x0e, 0x90, 0xe8,
}

const (
	// SignatureOffset is the offset of Signature from the routine start.
	SignatureOffset = 8
	// OriginalBranchOffset is where the routine calls get_screen.
	OriginalBranchOffset = 0x20
	// BranchOffset is where the trampoline calls get_screen.
	BranchOffset = 0x30
	// SessionHandleOffset holds the pnp session handle.
	SessionHandleOffset = 0x88
	// CommandHeaderOffset holds RunGameHookHeader.
	CommandHeaderOffset = 0x8c
	// Size is the length of the trampoline.
	Size = 0x94
)

// branchRebase is the number of instructions the get_screen call moved.
const branchRebase = (BranchOffset - OriginalBranchOffset) / 4

// LoopInstruction branches to itself. It is written first so a game thread
// reaching the routine mid patch spins instead of running half written code.
const LoopInstruction uint32 = 0xeafffffe

var template = [Size]byte{
	0xf0, 0x5f, 0x2d, 0xe9, // stmdb      sp!,{r4 r5 r6 r7 r8 r9 r10 r11 r12 lr}
	0x0f, 0x00, 0x2d, 0xe9, // stmdb      sp!,{r0 r1 r2 r3}
	0xf0, 0x00, 0xbd, 0xe8, // ldmia      sp!,{r4 r5 r6 r7}
	0x28, 0x00, 0x8d, 0xe2, // add        r0,sp,#0x28
	0x00, 0x0e, 0x90, 0xe8, // ldmia      r0,{r9 r10 r11}
	// send RunGameHook(0, screen, framebuffer, stride, format)
	0x0f, 0x80, 0xa0, 0xe1, // cpy        r8,pc
	0x6c, 0x80, 0x88, 0xe2, // add        r8,r8,#0x6c
	0x07, 0x00, 0x98, 0xe8, // ldmia      r8,{r0 r1 r2}
	0x70, 0x8f, 0x1d, 0xee, // mrc        p15,0x0,r8,cr13,cr0,0x3
	0x98, 0x80, 0x88, 0xe2, // add        r8,r8,#0x98
	0x56, 0x06, 0x08, 0xe9, // stmdb      r8,{r1 r2 r4 r6 r9 r10}
	0x32, 0x00, 0x00, 0xef, // swi        0x32
	// original routine body
	0xd4, 0x03, 0x00, 0xeb, // bl         get_screen (rebased)
	0x5c, 0x10, 0x80, 0xe2, // add        r1,r0,#0x5c
	0x04, 0x21, 0x91, 0xe7, // ldr        r2,[r1,r4,lsl #0x2]
	0x04, 0x30, 0xa0, 0xe3, // mov        r3,#0x4
	0x00, 0x00, 0xd2, 0xe5, // ldrb       r0,[r2,#0x0]
	0x01, 0x00, 0x60, 0xe2, // rsb        r0,r0,#0x1
	0xff, 0x00, 0x00, 0xe2, // and        r0,r0,#0xff
	0x80, 0xe1, 0x60, 0xe0, // rsb        lr,r0,r0, lsl #0x3
	0x0e, 0x31, 0x83, 0xe0, // add        r3,r3,lr, lsl #0x2
	0x03, 0x30, 0x82, 0xe0, // add        r3,r2,r3
	0xe0, 0x0e, 0x83, 0xe8, // stmia      r3,{r5 r6 r7 r9 r10 r11}
	0x9a, 0x8f, 0x07, 0xee, // mcr        p15,0x0,r8,cr7,cr10,0x4
	0x04, 0x21, 0x91, 0xe7, // ldr        r2,[r1,r4,lsl #0x2]
	0x9f, 0x3f, 0x92, 0xe1, // ldrex      r3,[r2]
	0xff, 0x30, 0xc3, 0xe3, // bic        r3,r3,#0xff
	0x00, 0x30, 0x83, 0xe1, // orr        r3,r3,r0
	0xff, 0x3c, 0xc3, 0xe3, // bic        r3,r3,#0xff00
	0x01, 0x3c, 0x83, 0xe3, // orr        r3,r3,#0x100
	0x93, 0x6f, 0x82, 0xe1, // strex      r6,r3,[r2]
	0x00, 0x00, 0x56, 0xe3, // cmp        r6,#0x0
	0xf6, 0xff, 0xff, 0x1a, // bne        ldrex
	0xf0, 0x9f, 0xbd, 0xe8, // ldmia      sp!,{r4 r5 r6 r7 r8 r9 r10 r11 r12 pc}
	0x00, 0x00, 0x00, 0x00, // session handle
	0x00, 0x00, 0x00, 0x00, // command header
	0x00, 0x00, 0x00, 0x00, // unused
}

// installedPrefix is the part of the trampoline that is the same in every
// game. Finding it means the routine is already patched.
var installedPrefix = template[:BranchOffset]

var (
	// ErrPatternNotFound means the game has no recognizable presentation
	// routine.
	ErrPatternNotFound = errors.New("present framebuffer pattern not found")
	// ErrRoutineTruncated means the routine is too close to the end of the
	// code region to be patched.
	ErrRoutineTruncated = errors.New("present framebuffer routine runs past the end of the code region")
)

// Patch is a trampoline built for one game.
type Patch struct {
	// Offset of the routine from the start of the code region.
	Offset int
	// Addr is the game virtual address of the routine.
	Addr uint32
	// Branch is the rebased get_screen call.
	Branch  uint32
	Session horizon.Handle
	Code    [Size]byte
}

// Locate returns the offset of the presentation routine in code.
func Locate(code *memory.Region) (int, error) {
	p, ok := code.FindPattern(Signature)
	if !ok || p.Offset < SignatureOffset {
		return 0, ErrPatternNotFound
	}
	return p.Offset - SignatureOffset, nil
}

// Build creates the trampoline for the routine at offset fn of code. The
// session handle must be valid inside the game process.
func Build(code *memory.Region, fn int, session horizon.Handle) (*Patch, error) {
	if fn < 0 || fn+Size > code.Size() {
		return nil, ErrRoutineTruncated
	}
	p := &Patch{
		Offset:  fn,
		Addr:    code.BaseAddr + uint32(fn),
		Session: session,
		Code:    template,
	}
	branch := binary.LittleEndian.Uint32(code.Mem[fn+OriginalBranchOffset:])
	p.Branch = branch - branchRebase
	binary.LittleEndian.PutUint32(p.Code[BranchOffset:], p.Branch)
	binary.LittleEndian.PutUint32(p.Code[SessionHandleOffset:], uint32(session))
	binary.LittleEndian.PutUint32(p.Code[CommandHeaderOffset:], RunGameHookHeader)
	return p, nil
}

// FirstInstruction returns the first word of the trampoline.
func (p *Patch) FirstInstruction() uint32 {
	return binary.LittleEndian.Uint32(p.Code[:4])
}

// WriteTo writes the trampoline over the routine. The first instruction is
// replaced by LoopInstruction before the rest of the routine is written and
// only becomes the real instruction with the very last store.
func (p *Patch) WriteTo(code *memory.Region) error {
	if p.Offset < 0 || p.Offset+Size > code.Size() {
		return ErrRoutineTruncated
	}
	dst := code.Mem[p.Offset : p.Offset+Size]
	storeWord(dst[:4], LoopInstruction)
	copy(dst[4:], p.Code[4:])
	storeWord(dst[:4], p.FirstInstruction())
	return nil
}

// storeWord writes v little endian into b[:4], with a single store when b is
// word aligned.
func storeWord(b []byte, v uint32) {
	_ = b[3]
	if uintptr(unsafe.Pointer(&b[0]))%4 != 0 {
		binary.LittleEndian.PutUint32(b, v)
		return
	}
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], v)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[0])), *(*uint32)(unsafe.Pointer(&le[0])))
}

// IsInstalled reports whether code already contains a trampoline and
// returns its offset.
func IsInstalled(code *memory.Region) (int, bool) {
	p, ok := code.FindPattern(installedPrefix)
	if !ok {
		return 0, false
	}
	return p.Offset, true
}

// ReadInstalled reads back the trampoline installed in code.
func ReadInstalled(code *memory.Region) (*Patch, bool) {
	fn, ok := IsInstalled(code)
	if !ok || fn+Size > code.Size() {
		return nil, false
	}
	p := &Patch{Offset: fn, Addr: code.BaseAddr + uint32(fn)}
	copy(p.Code[:], code.Mem[fn:fn+Size])
	p.Branch = binary.LittleEndian.Uint32(p.Code[BranchOffset:])
	p.Session = horizon.Handle(binary.LittleEndian.Uint32(p.Code[SessionHandleOffset:]))
	return p, true
}

// Installed decodes the trampoline at offset fn of code, as the console
// sees it when it runs the routine.
func Installed(code *memory.Region, fn int) (session horizon.Handle, header uint32, err error) {
	if fn < 0 || fn+Size > code.Size() {
		return 0, 0, ErrRoutineTruncated
	}
	b := code.Mem[fn:]
	if binary.LittleEndian.Uint32(b) != binary.LittleEndian.Uint32(template[:]) {
		return 0, 0, fmt.Errorf("no trampoline at %#x", code.BaseAddr+uint32(fn))
	}
	return horizon.Handle(binary.LittleEndian.Uint32(b[SessionHandleOffset:])), binary.LittleEndian.Uint32(b[CommandHeaderOffset:]), nil
}

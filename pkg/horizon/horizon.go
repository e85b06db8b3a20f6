// Package horizon describes the parts of the console operating system the
// pnp service depends on: the kernel calls used to reach a game's memory,
// controller input, inter-process calls and the SD card.
//
// Nothing in this package talks to real hardware. The service is written
// against these interfaces and package sim provides an in-process console
// implementing all of them.
package horizon

import (
	"fmt"
	"time"
)

// TitleID identifies an installed title.
type TitleID uint64

// String returns the title id as 16 upper case hex digits, the form used
// for per title directories on the SD card.
func (t TitleID) String() string {
	return fmt.Sprintf("%016X", uint64(t))
}

// Handle is a kernel object handle. The zero handle is never valid.
type Handle uint32

// Valid reports whether h refers to an object.
func (h Handle) Valid() bool {
	return h != 0
}

// MemInfo is the result of a memory query.
type MemInfo struct {
	BaseAddr uint32
	Size     uint32
	Perm     uint32
	State    uint32
}

// End returns the first address past the queried block.
func (m MemInfo) End() uint64 {
	return uint64(m.BaseAddr) + uint64(m.Size)
}

// Kernel is the subset of supervisor calls used by the service.
type Kernel interface {
	// OpenProcess opens the process running title.
	OpenProcess(title TitleID) (Process, error)
	// RunningTitleID returns the title id of the foreground application.
	RunningTitleID() (TitleID, error)
	// MappableAlloc reserves size bytes of address space in the calling
	// process that foreign memory can be mapped into.
	MappableAlloc(size uint32) (uint32, error)
	// ConvertVAToPA translates a virtual address of the calling process.
	ConvertVAToPA(va uint32, writeCheck bool) uint32
	// ConvertPAToUncachedPA returns the uncached alias of a physical address.
	ConvertPAToUncachedPA(pa uint32) (uint32, error)
	// PhysicalMemory returns the bytes backing an uncached physical window.
	// The returned slice aliases the physical memory, it is not a copy.
	PhysicalMemory(pa uint32, size uint32) ([]byte, error)
	// SleepThread suspends the calling thread.
	SleepThread(d time.Duration)
	// GetServiceHandle opens a session to a named service.
	GetServiceHandle(name string) (Handle, error)
}

// Process is an open handle to a foreign process.
type Process interface {
	Handle() Handle
	QueryMemory(addr uint32) (MemInfo, error)
	MapMemoryEx(dst, src, size uint32) error
	UnmapMemoryEx(dst, size uint32) error
	// CopyHandleTo duplicates a handle owned by the caller into this
	// process and returns the handle value valid inside it.
	CopyHandleTo(h Handle) (Handle, error)
	Close() error
}

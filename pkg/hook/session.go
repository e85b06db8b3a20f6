package hook

import (
	"sync/atomic"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// Session holds the pnp:game session handle captured at startup. It is set
// by the startup goroutine and read by the launch notification handler.
type Session struct {
	h atomic.Uint32
}

// Set stores the session handle.
func (s *Session) Set(h horizon.Handle) {
	s.h.Store(uint32(h))
}

// Get returns the session handle, if one was captured.
func (s *Session) Get() (horizon.Handle, bool) {
	h := horizon.Handle(s.h.Load())
	return h, h.Valid()
}

// LaunchFlag records that a hook was just installed for a new launch.
type LaunchFlag struct {
	v atomic.Bool
}

// Set marks a new launch.
func (f *LaunchFlag) Set() {
	f.v.Store(true)
}

// Take reports whether a game was launched since the last call. After it
// returned true once it returns false until the next launch.
func (f *LaunchFlag) Take() bool {
	return f.v.Swap(false)
}

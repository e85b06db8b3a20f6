package memory

import "sync/atomic"

// Generation numbers game sessions. Every GameMemory belongs to the
// generation that was current when it was built and stops resolving
// addresses as soon as the generation advances, which happens when a new
// game is launched and the old windows no longer describe live memory.
type Generation struct {
	epoch atomic.Uint64
}

// Current returns the current epoch.
func (g *Generation) Current() uint64 {
	return g.epoch.Load()
}

// Advance invalidates every GameMemory built so far and returns the new
// epoch.
func (g *Generation) Advance() uint64 {
	return g.epoch.Add(1)
}

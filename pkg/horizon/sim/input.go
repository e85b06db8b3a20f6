package sim

import (
	"sync"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// Input is a scripted controller. Every ScanInput consumes one queued
// button state; once the queue is empty no button is held.
type Input struct {
	mu    sync.Mutex
	queue []horizon.Buttons
	held  horizon.Buttons
	prev  horizon.Buttons
	scans int
}

// Queue appends button states, one per future scan.
func (in *Input) Queue(states ...horizon.Buttons) {
	in.mu.Lock()
	in.queue = append(in.queue, states...)
	in.mu.Unlock()
}

// Press queues b held for one scan followed by a release, so consecutive
// presses of the same button each produce an edge.
func (in *Input) Press(b horizon.Buttons) {
	in.Queue(b, 0)
}

// Pending returns the number of queued states.
func (in *Input) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// Scans returns the number of scans so far.
func (in *Input) Scans() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.scans
}

func (in *Input) ScanInput() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.prev = in.held
	in.held = 0
	if len(in.queue) > 0 {
		in.held = in.queue[0]
		in.queue = in.queue[1:]
	}
	in.scans++
}

func (in *Input) JustDown() horizon.Buttons {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.held &^ in.prev
}

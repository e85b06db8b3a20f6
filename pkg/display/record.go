package display

import (
	"fmt"
	"sync"
)

// OpKind identifies a recorded drawing operation.
type OpKind uint8

const (
	OpFillRect OpKind = iota
	OpDrawText
	OpFlush
)

// Op is one drawing operation seen by a Recorder.
type Op struct {
	Kind OpKind
	Top  bool
	X, Y uint32
	W, H uint32
	Text string
	C    Color
}

func (op Op) String() string {
	screen := "bottom"
	if op.Top {
		screen = "top"
	}
	switch op.Kind {
	case OpFillRect:
		return fmt.Sprintf("%s: rect (%d,%d) %dx%d %v", screen, op.X, op.Y, op.W, op.H, op.C)
	case OpDrawText:
		return fmt.Sprintf("%s: text (%d,%d) %v %q", screen, op.X, op.Y, op.C, op.Text)
	}
	return screen + ": flush"
}

// Recorder is a Blitter that keeps the operations of the last flushed
// frame instead of drawing them.
type Recorder struct {
	mu      sync.Mutex
	pending []Op
	frame   []Op
	flushes int
}

func (r *Recorder) add(op Op) {
	r.mu.Lock()
	r.pending = append(r.pending, op)
	r.mu.Unlock()
}

func (r *Recorder) FillRect(s *Screen, x, y, w, h uint32, c Color) error {
	r.add(Op{Kind: OpFillRect, Top: s.Top(), X: x, Y: y, W: w, H: h, C: c})
	return nil
}

func (r *Recorder) DrawText(s *Screen, x, y uint32, text string, c Color) error {
	r.add(Op{Kind: OpDrawText, Top: s.Top(), X: x, Y: y, Text: text, C: c})
	return nil
}

func (r *Recorder) Flush(s *Screen) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frame = append(r.pending, Op{Kind: OpFlush, Top: s.Top()})
	r.pending = nil
	r.flushes++
	return nil
}

// Frame returns the operations of the last flushed frame.
func (r *Recorder) Frame() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.frame...)
}

// Text returns the strings drawn in the last flushed frame.
func (r *Recorder) Text() []string {
	var lines []string
	for _, op := range r.Frame() {
		if op.Kind == OpDrawText {
			lines = append(lines, op.Text)
		}
	}
	return lines
}

// Flushes returns the number of frames flushed so far.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Package display is the drawing contract between the service and the
// pixel blitter: screens, colors and blocks of text.
//
// Pixels are never touched here. A Screen validates coordinates and hands
// rectangles and strings to a Blitter, which owns fonts and pixel formats.
package display

import (
	"unicode/utf8"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

// Screen dimensions. Coordinates up to and including these values are
// accepted.
const (
	TopWidth    = 400
	BottomWidth = 320
	Height      = 240

	CharWidth  = 8
	CharHeight = 8
)

// Framebuffer address ranges a game may present from. Upper bounds are
// inclusive.
const (
	VRAMMin uint32 = 0x1F000000
	VRAMMax uint32 = 0x1F5FFFFF

	OldFCRAMMin uint32 = 0x14000000
	OldFCRAMMax uint32 = 0x1C000000

	NewFCRAMMin uint32 = 0x30000000
	NewFCRAMMax uint32 = 0x3FFFFFFF

	UncachedFCRAMMin uint32 = 0xA0000000
)

// Blitter renders on a screen. Coordinates passed to it have already been
// checked against the screen bounds.
type Blitter interface {
	FillRect(s *Screen, x, y, w, h uint32, c Color) error
	DrawText(s *Screen, x, y uint32, text string, c Color) error
	Flush(s *Screen) error
}

// Screen is the framebuffer a game is presenting.
type Screen struct {
	top    bool
	addr   uint32
	stride uint32
	format uint32
	b      Blitter
}

// WritableAddr translates the framebuffer address a game presents into an
// address the service can write to.
func WritableAddr(addr uint32) (uint32, error) {
	switch {
	case VRAMMin <= addr && addr <= VRAMMax:
		return addr, nil
	case OldFCRAMMin <= addr && addr <= OldFCRAMMax:
		return UncachedFCRAMMin | addr&0xffffff, nil
	case NewFCRAMMin <= addr && addr <= NewFCRAMMax:
		return UncachedFCRAMMin | addr&0xfffffff, nil
	}
	return 0, horizon.ErrInvalidPointer.WithOp("framebuffer address")
}

// NewScreen validates a framebuffer. A nil blitter discards every drawing.
func NewScreen(top bool, addr, stride, format uint32, b Blitter) (*Screen, error) {
	waddr, err := WritableAddr(addr)
	if err != nil {
		return nil, err
	}
	return &Screen{top: top, addr: waddr, stride: stride, format: format, b: b}, nil
}

// Top reports whether s is the top screen.
func (s *Screen) Top() bool { return s.top }

// Addr returns the writable framebuffer address.
func (s *Screen) Addr() uint32 { return s.addr }

func (s *Screen) Stride() uint32 { return s.stride }

// Format returns the raw pixel format code; the low nibble selects the
// pixel layout.
func (s *Screen) Format() uint32 { return s.format }

// Width returns the width of the screen in pixels.
func (s *Screen) Width() uint32 {
	if s.top {
		return TopWidth
	}
	return BottomWidth
}

// InBounds reports whether the point (x, y) lies on the screen.
func (s *Screen) InBounds(x, y uint64) bool {
	return y <= Height && x <= uint64(s.Width())
}

func (s *Screen) inBounds(x, y, x2, y2 uint64) bool {
	return s.InBounds(x, y) && s.InBounds(x2, y2)
}

// FillRect fills a w by h rectangle.
func (s *Screen) FillRect(x, y, w, h uint32, c Color) error {
	if !s.inBounds(uint64(x), uint64(y), uint64(x)+uint64(w), uint64(y)+uint64(h)) {
		return horizon.ErrInvalidValue.WithOp("fill rect")
	}
	if s.b == nil {
		return nil
	}
	return s.b.FillRect(s, x, y, w, h, c)
}

// DrawString draws a single line of text with its top left corner at
// (x, y).
func (s *Screen) DrawString(x, y uint32, text string, c Color) error {
	w := uint64(utf8.RuneCountInString(text)) * CharWidth
	if !s.inBounds(uint64(x), uint64(y), uint64(x)+w, uint64(y)+CharHeight) {
		return horizon.ErrInvalidValue.WithOp("draw string")
	}
	if s.b == nil {
		return nil
	}
	return s.b.DrawText(s, x, y, text, c)
}

// Flush makes everything drawn so far visible.
func (s *Screen) Flush() error {
	if s.b == nil {
		return nil
	}
	return s.b.Flush(s)
}

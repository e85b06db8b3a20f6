package display

import "math"

// Text layout, in pixels.
const (
	lineHeight = 12
	padding    = 4
)

// TextBlock is an ordered list of lines drawn on a filled background.
type TextBlock struct {
	Lines      []string
	X, Y       uint32
	MaxLen     uint8
	Text       Color
	Background Color
}

// TextPrinter holds the print settings of a plugin.
type TextPrinter struct {
	X, Y       uint32
	MaxLen     uint8
	Text       Color
	Background Color
}

// Default print settings.
const (
	DefaultPrintX = 8
	DefaultPrintY = 10
	DefaultMaxLen = 30
)

// NewTextPrinter returns a printer with the default settings.
func NewTextPrinter() TextPrinter {
	return TextPrinter{
		X:          DefaultPrintX,
		Y:          DefaultPrintY,
		MaxLen:     DefaultMaxLen,
		Text:       White,
		Background: Black,
	}
}

// NewTextPrinterMaxLen returns a printer with the default settings and a
// line length of maxLen characters.
func NewTextPrinterMaxLen(maxLen uint8) TextPrinter {
	p := NewTextPrinter()
	p.MaxLen = maxLen
	return p
}

// Reset restores the default settings.
func (p *TextPrinter) Reset() {
	*p = NewTextPrinter()
}

// SetColors sets the text and background colors.
func (p *TextPrinter) SetColors(text, background Color) {
	p.Text = text
	p.Background = background
}

// Block lays out lines with the current settings.
func (p *TextPrinter) Block(lines []string) TextBlock {
	return TextBlock{
		Lines:      lines,
		X:          p.X,
		Y:          p.Y,
		MaxLen:     p.MaxLen,
		Text:       p.Text,
		Background: p.Background,
	}
}

// Draw draws lines on s with the current settings.
func (p *TextPrinter) Draw(s *Screen, lines []string) error {
	return p.Block(lines).Draw(s)
}

// Size returns the size of the background rectangle.
func (b TextBlock) Size() (w, h uint32) {
	return satAdd(uint32(b.MaxLen)*CharWidth, 2*padding), satAdd(satMul(uint32(len(b.Lines)), lineHeight), padding)
}

// Line returns line i truncated to MaxLen characters.
func (b TextBlock) Line(i int) string {
	return truncate(b.Lines[i], int(b.MaxLen))
}

// Draw fills the background and draws every line. Nothing is drawn for an
// empty block.
func (b TextBlock) Draw(s *Screen) error {
	if len(b.Lines) == 0 {
		return nil
	}
	w, h := b.Size()
	if err := s.FillRect(b.X, b.Y, w, h, b.Background); err != nil {
		return err
	}
	x := satAdd(b.X, padding)
	y := satAdd(b.Y, padding)
	for i := range b.Lines {
		ly := satAdd(satMul(uint32(i), lineHeight), y)
		if err := s.DrawString(x, ly, b.Line(i), b.Text); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	i := 0
	for off := range s {
		if i == n {
			return s[:off]
		}
		i++
	}
	return s
}

func satAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func satMul(a, b uint32) uint32 {
	r := uint64(a) * uint64(b)
	if r > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}

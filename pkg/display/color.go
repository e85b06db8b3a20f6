package display

import "fmt"

// Color is a 24 bit color.
type Color struct {
	R, G, B uint8
}

// RGB unpacks a 0xRRGGBB value.
func RGB(rgb uint32) Color {
	return Color{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb)}
}

// Uint32 packs c as 0xRRGGBB.
func (c Color) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func (c Color) String() string {
	return fmt.Sprintf("#%06x", c.Uint32())
}

var (
	Black = Color{}
	White = Color{R: 0xff, G: 0xff, B: 0xff}
)

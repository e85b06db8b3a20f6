package horizon

import "strings"

// Buttons is a bit set of controller buttons.
type Buttons uint32

const (
	ButtonA Buttons = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonDRight
	ButtonDLeft
	ButtonDUp
	ButtonDDown
	ButtonR
	ButtonL
	ButtonX
	ButtonY
)

var buttonNames = []struct {
	b    Buttons
	name string
}{
	{ButtonA, "a"},
	{ButtonB, "b"},
	{ButtonSelect, "select"},
	{ButtonStart, "start"},
	{ButtonDRight, "right"},
	{ButtonDLeft, "left"},
	{ButtonDUp, "up"},
	{ButtonDDown, "down"},
	{ButtonR, "r"},
	{ButtonL, "l"},
	{ButtonX, "x"},
	{ButtonY, "y"},
}

// Has reports whether every button of mask is set. An empty mask is never
// set.
func (b Buttons) Has(mask Buttons) bool {
	return mask != 0 && b&mask == mask
}

func (b Buttons) String() string {
	var names []string
	for _, bn := range buttonNames {
		if b&bn.b != 0 {
			names = append(names, bn.name)
		}
	}
	return strings.Join(names, "+")
}

// ParseButtons parses a list of button names joined by '+', as produced by
// Buttons.String.
func ParseButtons(s string) (Buttons, bool) {
	var r Buttons
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		found := false
		for _, bn := range buttonNames {
			if bn.name == part {
				r |= bn.b
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return r, true
}

// HID is the controller input device.
type HID interface {
	// ScanInput samples the controller. JustDown reports the buttons that
	// went down between the previous two scans.
	ScanInput()
	JustDown() Buttons
}

// IsJustPressed reports whether all buttons of mask were just pressed.
func IsJustPressed(h HID, mask Buttons) bool {
	return h.JustDown().Has(mask)
}

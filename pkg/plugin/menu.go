package plugin

import (
	"errors"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
)

// ErrEmptyMenu is returned when a menu is built without options.
var ErrEmptyMenu = errors.New("menu needs at least one option")

// Menu is a list of options with a wrapping cursor.
type Menu struct {
	counter Counter
	options []string
}

// NewMenu returns a menu with the cursor on the first option.
func NewMenu(options []string) (*Menu, error) {
	if len(options) == 0 {
		return nil, ErrEmptyMenu
	}
	return &Menu{counter: NewCounter(0, len(options)-1), options: options}, nil
}

// Value returns the option under the cursor.
func (m *Menu) Value() string {
	return m.options[m.counter.Value()]
}

// Cursor returns the index of the option under the cursor.
func (m *Menu) Cursor() int {
	return m.counter.Value()
}

func (m *Menu) CursorDown() {
	m.counter.Increment()
}

func (m *Menu) CursorUp() {
	m.counter.Decrement()
}

// Lines renders one line per option, the selected one marked with '>'.
func (m *Menu) Lines() []string {
	r := make([]string, len(m.options))
	for i, opt := range m.options {
		cursor := " "
		if i == m.counter.Value() {
			cursor = ">"
		}
		r[i] = cursor + " " + opt
	}
	return r
}

// LoaderMenu is the on screen plugin selection menu.
type LoaderMenu struct {
	header  string
	printer display.TextPrinter
	menu    *Menu
}

// NewLoaderMenu returns a menu over cat. Lines are cut at maxLen
// characters and the header names version.
func NewLoaderMenu(cat Catalogue, maxLen uint8, version string) (*LoaderMenu, error) {
	m, err := NewMenu(cat)
	if err != nil {
		return nil, err
	}
	return &LoaderMenu{
		header:  "Plugin Menu " + version,
		printer: display.NewTextPrinterMaxLen(maxLen),
		menu:    m,
	}, nil
}

// Value returns the selected plugin path.
func (l *LoaderMenu) Value() string {
	return l.menu.Value()
}

// Lines returns the menu text: a header, a blank line and the options.
func (l *LoaderMenu) Lines() []string {
	return append([]string{l.header, ""}, l.menu.Lines()...)
}

// Frame moves the cursor according to the buttons just pressed and draws
// the menu.
func (l *LoaderMenu) Frame(hid horizon.HID, s *display.Screen) error {
	switch {
	case horizon.IsJustPressed(hid, horizon.ButtonDDown):
		l.menu.CursorDown()
		logflags.MenuLogger().Debugf("cursor down: %s", l.menu.Value())
	case horizon.IsJustPressed(hid, horizon.ButtonDUp):
		l.menu.CursorUp()
		logflags.MenuLogger().Debugf("cursor up: %s", l.menu.Value())
	}
	return l.printer.Draw(s, l.Lines())
}

package terminal

import (
	"os"

	"golang.org/x/sys/windows"
)

func windowSize(f *os.File) (rows, cols int, ok bool) {
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Handle(f.Fd()), &info); err != nil {
		return 0, 0, false
	}
	win := info.Window
	return int(win.Bottom-win.Top) + 1, int(win.Right-win.Left) + 1, true
}

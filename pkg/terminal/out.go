package terminal

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// consoleOut is where commands print. Output goes to the terminal, to a
// pager once a pageable command overflows the window, and to the transcript
// file when one is open.
type consoleOut struct {
	w io.Writer

	// set by page for the current command
	rows, cols int
	held       []byte
	pager      *exec.Cmd
	pipe       io.WriteCloser

	transcript     *bufio.Writer
	transcriptFile io.Closer
	transcriptOnly bool
}

func newConsoleOut(w io.Writer) *consoleOut {
	return &consoleOut{w: w}
}

func (o *consoleOut) Write(p []byte) (int, error) {
	if !o.transcriptOnly {
		if err := o.show(p); err != nil {
			return 0, err
		}
	}
	if o.transcript != nil {
		return o.transcript.Write(p)
	}
	return len(p), nil
}

func (o *consoleOut) show(p []byte) error {
	switch {
	case o.pipe != nil:
		_, err := o.pipe.Write(p)
		return err
	case o.rows > 0:
		o.held = append(o.held, p...)
		if screenLines(o.held, o.cols) <= o.rows {
			return nil
		}
		if err := o.startPager(); err != nil {
			o.rows = 0
			held := o.held
			o.held = nil
			_, err := o.w.Write(held)
			return err
		}
		_, err := o.pipe.Write(o.held)
		o.held = nil
		return err
	}
	_, err := o.w.Write(p)
	return err
}

// page holds back the output of the current command and sends it to a
// pager if it does not fit the window. It does nothing unless stdout is an
// interactive terminal.
func (o *consoleOut) page() {
	if o.rows > 0 || o.pipe != nil {
		return
	}
	f, ok := o.w.(*os.File)
	if !ok {
		return
	}
	if os.Getenv("PNP_PAGER") == "" && (!isatty.IsTerminal(f.Fd()) || strings.EqualFold(os.Getenv("TERM"), "dumb")) {
		return
	}
	rows, cols, ok := windowSize(f)
	if !ok || rows <= 0 {
		return
	}
	o.rows, o.cols = rows, cols
}

func (o *consoleOut) startPager() error {
	name := os.Getenv("PNP_PAGER")
	if name == "" {
		name = os.Getenv("PAGER")
	}
	if name == "" {
		name = "more"
	}
	cmd := exec.Command(name)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	pipe, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	o.pager, o.pipe = cmd, pipe
	return nil
}

// endCommand writes what page held back and waits for the pager to exit.
func (o *consoleOut) endCommand() {
	if len(o.held) > 0 {
		o.w.Write(o.held)
	}
	o.held = nil
	o.rows, o.cols = 0, 0
	if o.pager != nil {
		o.pipe.Close()
		o.pager.Wait()
		o.pager, o.pipe = nil, nil
	}
}

// screenLines counts the lines buf takes on a terminal cols characters wide.
func screenLines(buf []byte, cols int) int {
	lines, col := 0, 0
	for _, c := range buf {
		if c == '\n' || (cols > 0 && col >= cols) {
			lines++
			col = 0
			if c == '\n' {
				continue
			}
		}
		col++
	}
	return lines
}

// Echo writes str to the transcript only.
func (o *consoleOut) Echo(str string) {
	if o.transcript != nil {
		o.transcript.WriteString(str)
	}
}

// Flush flushes the transcript.
func (o *consoleOut) Flush() {
	if o.transcript != nil {
		o.transcript.Flush()
	}
}

// transcribe copies further output to fh. With only set the terminal no
// longer receives it.
func (o *consoleOut) transcribe(fh io.WriteCloser, only bool) error {
	if err := o.closeTranscript(); err != nil {
		return err
	}
	o.transcript = bufio.NewWriter(fh)
	o.transcriptFile = fh
	o.transcriptOnly = only
	return nil
}

func (o *consoleOut) closeTranscript() error {
	if o.transcript == nil {
		return nil
	}
	o.transcript.Flush()
	err := o.transcriptFile.Close()
	o.transcript, o.transcriptFile, o.transcriptOnly = nil, nil, false
	return err
}

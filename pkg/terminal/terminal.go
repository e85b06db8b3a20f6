package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"

	"github.com/pnp3ds/pnp/pkg/config"
	"github.com/pnp3ds/pnp/pkg/target"
	"github.com/pnp3ds/pnp/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".pnp_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const ansiBlue = 34

// Term represents the terminal running the pnp console.
type Term struct {
	target      *target.Target
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	dumb        bool
	stdout      *consoleOut
	InitFile    string
	starlarkEnv *starbind.Env

	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a new Term.
func New(tgt *target.Target, conf *config.Config) *Term {
	cmds := ConsoleCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = config.Default()
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}

	t := &Term{
		target: tgt,
		conf:   conf,
		prompt: "(pnp) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: newConsoleOut(w),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
	if err := t.stdout.closeTranscript(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing transcript file: %v\n", err)
	}
}

// context returns the context of the next command.
func (t *Term) context() context.Context {
	t.ctxMu.Lock()
	defer t.ctxMu.Unlock()
	return t.ctx
}

// interrupt cancels the running command and script.
func (t *Term) interrupt() {
	t.ctxMu.Lock()
	t.cancel()
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.ctxMu.Unlock()
	t.starlarkEnv.Cancel()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		fmt.Fprintf(os.Stderr, "received SIGINT, stopping command\n")
		t.interrupt()
	}
}

// Run begins running the console in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}
		t.stdout.Echo(t.prompt + cmdstr + "\n")

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			if errors.Is(err, target.ErrExited) {
				fmt.Fprintln(os.Stderr, err.Error())
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}

		t.stdout.Flush()
		t.stdout.endCommand()
	}
}

// Call executes a single command, as if typed at the prompt.
func (t *Term) Call(cmdstr string) error {
	return t.cmds.Call(cmdstr, t)
}

func (t *Term) complete(line string) []string {
	if rest := strings.TrimPrefix(line, "help "); rest != line {
		var c []string
		for _, alias := range t.cmds.Complete(rest) {
			c = append(c, "help "+alias)
		}
		return c
	}
	if strings.Contains(line, " ") {
		return nil
	}
	return t.cmds.Complete(line)
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}
	return 0, nil
}

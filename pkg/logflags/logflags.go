package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var hook = false
var memory = false
var sandbox = false
var dispatch = false
var menu = false
var service = false

var logOut io.WriteCloser

var textFormatterInstance = &logrus.TextFormatter{
	DisableColors:    true,
	FullTimestamp:    true,
	QuoteEmptyFields: true,
}

// makeLogger returns an entry tagged with the given layer.
func makeLogger(level logrus.Level, layer string) *logrus.Entry {
	logger := logrus.New()
	logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Out = logOut
	}
	logger.Level = level
	return logger.WithField("layer", layer)
}

// makeFlaggableLogger returns a logger that always reports errors but only
// emits debug output when flag is set.
func makeFlaggableLogger(flag bool, layer string) *logrus.Entry {
	if !flag {
		return makeLogger(logrus.ErrorLevel, layer)
	}
	return makeLogger(logrus.DebugLevel, layer)
}

// Hook returns true if the hook installer should log.
func Hook() bool {
	return hook
}

// HookLogger returns a logger for the hook installer.
func HookLogger() *logrus.Entry {
	return makeFlaggableLogger(hook, "hook")
}

// Memory returns true if region resolution should be logged.
func Memory() bool {
	return memory
}

// MemoryLogger returns a logger for the memory bridge.
func MemoryLogger() *logrus.Entry {
	return makeFlaggableLogger(memory, "memory")
}

// Sandbox returns true if plugin loading and ticking should be logged.
func Sandbox() bool {
	return sandbox
}

// SandboxLogger returns a logger for the plugin sandbox.
func SandboxLogger() *logrus.Entry {
	return makeFlaggableLogger(sandbox, "sandbox")
}

// Dispatch returns true if every frame hook call should be logged.
func Dispatch() bool {
	return dispatch
}

func DispatchLogger() *logrus.Entry {
	return makeFlaggableLogger(dispatch, "dispatch")
}

// Menu returns true if the plugin menu should log cursor moves and swaps.
func Menu() bool {
	return menu
}

func MenuLogger() *logrus.Entry {
	return makeFlaggableLogger(menu, "menu")
}

// Service returns true if the service loop should log requests and
// notifications.
func Service() bool {
	return service
}

// ServiceLogger returns a logger for the service loop.
func ServiceLogger() *logrus.Entry {
	return makeFlaggableLogger(service, "service")
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the log flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "pnp-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	textFormatterInstance.DisableColors = !isTerminal(logOut)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "service"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "hook":
			hook = true
		case "memory":
			memory = true
		case "sandbox":
			sandbox = true
		case "dispatch":
			dispatch = true
		case "menu":
			menu = true
		case "service":
			service = true
		}
	}
	return nil
}

func isTerminal(out io.Writer) bool {
	if out == nil {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	if f, ok := out.(*os.File); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

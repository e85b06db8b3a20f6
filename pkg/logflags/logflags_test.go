package logflags

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMakeFlaggableLogger_withFlagFalse(t *testing.T) {
	actual := makeFlaggableLogger(false, "memory")
	if actual.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.ErrorLevel, actual.Logger.Level)
	}
	if len(actual.Data) != 1 || actual.Data["layer"] != "memory" {
		t.Fatalf("expected data to be {'layer':'memory'}; but was <%v>", actual.Data)
	}
}

func TestMakeFlaggableLogger_withFlagTrue(t *testing.T) {
	actual := makeFlaggableLogger(true, "memory")
	if actual.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.DebugLevel, actual.Logger.Level)
	}
}

func TestMakeLogger_usingDefaultBehavior(t *testing.T) {
	logOut = &bufferWriter{}
	defer func() {
		logOut = nil
	}()

	actual := makeLogger(logrus.TraceLevel, "sandbox")
	if actual.Logger.Out != logOut {
		t.Fatalf("expected out to be <%v>; but was <%v>", logOut, actual.Logger.Out)
	}
	if actual.Logger.Formatter != textFormatterInstance {
		t.Fatalf("expected formatter to be <%v>; but was <%v>", textFormatterInstance, actual.Logger.Formatter)
	}
	actual.Info("loaded")
	if out := logOut.(*bufferWriter).String(); !strings.Contains(out, "layer=sandbox") || !strings.Contains(out, "msg=loaded") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestSetupLogOutputWithoutLog(t *testing.T) {
	if err := Setup(false, "hook", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected %v, got %v", errLogstrWithoutLog, err)
	}
}

func TestSetupSelectsLayers(t *testing.T) {
	defer func() {
		hook, memory, sandbox, dispatch, menu, service = false, false, false, false, false, false
	}()
	if err := Setup(true, "hook,sandbox,bogus", ""); err != nil {
		t.Fatal(err)
	}
	if !Hook() || !Sandbox() {
		t.Fatalf("expected hook and sandbox to be enabled")
	}
	if Memory() || Dispatch() || Menu() || Service() {
		t.Fatalf("unexpected layer enabled")
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}

package hook

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/memory"
)

// ErrNoSession is returned when installation is attempted before the pnp
// session handle was captured.
var ErrNoSession = errors.New("pnp session handle not captured yet")

// ErrInstallInProgress is returned when another installation is running.
var ErrInstallInProgress = errors.New("hook installation already in progress")

// Install patches the presentation routine of title so that it sends
// RunGameHook requests over session, which must be a handle valid inside the
// game. A routine that is already patched is left alone.
func Install(k horizon.Kernel, title horizon.TitleID, session horizon.Handle) (*Patch, error) {
	code, err := memory.NewCodeRegion(k, title)
	if err != nil {
		return nil, err
	}
	return InstallInto(code, session)
}

// InstallInto patches an already captured code region.
func InstallInto(code *memory.Region, session horizon.Handle) (*Patch, error) {
	if off, ok := IsInstalled(code); ok {
		logflags.HookLogger().Infof("trampoline already installed at %#x", code.BaseAddr+uint32(off))
		return nil, nil
	}
	fn, err := Locate(code)
	if err != nil {
		return nil, err
	}
	p, err := Build(code, fn, session)
	if err != nil {
		return nil, err
	}
	if err := p.WriteTo(code); err != nil {
		return nil, err
	}
	logflags.HookLogger().Debugf("installed trampoline at %#x, get_screen branch %#08x, session %#x", p.Addr, p.Branch, p.Session)
	return p, nil
}

// Hooker installs the hook into whatever game is running. It is shared by
// the startup goroutine and the launch notification handler.
type Hooker struct {
	Kernel  horizon.Kernel
	Session *Session
	Launch  *LaunchFlag

	installing atomic.Bool
}

// InstallRunning copies the pnp session handle into the running game and
// installs the trampoline. On success the launch flag is set so the next
// frame rebuilds the plugin sandbox. Failures are logged and returned, the
// game then simply runs without a hook.
func (h *Hooker) InstallRunning() error {
	err := h.installRunning()
	if err != nil {
		logflags.HookLogger().WithError(err).Error("failed to hook title")
		return err
	}
	h.Launch.Set()
	return nil
}

func (h *Hooker) installRunning() error {
	if !h.installing.CompareAndSwap(false, true) {
		return ErrInstallInProgress
	}
	defer h.installing.Store(false)

	session, ok := h.Session.Get()
	if !ok {
		return ErrNoSession
	}
	title, err := h.Kernel.RunningTitleID()
	if err != nil {
		return fmt.Errorf("running title: %w", err)
	}
	proc, err := h.Kernel.OpenProcess(title)
	if err != nil {
		return fmt.Errorf("open title %v: %w", title, err)
	}
	copied, err := proc.CopyHandleTo(session)
	proc.Close()
	if err != nil {
		return fmt.Errorf("copy session handle to title %v: %w", title, err)
	}
	_, err = Install(h.Kernel, title, copied)
	return err
}

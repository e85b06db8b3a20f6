package hook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/horizon/sim"
)

func newHooker(c *sim.Console) *hook.Hooker {
	return &hook.Hooker{Kernel: c, Session: &hook.Session{}, Launch: &hook.LaunchFlag{}}
}

func TestInstallRunningWithoutSession(t *testing.T) {
	c := sim.New()
	h := newHooker(c)
	if err := h.InstallRunning(); err != hook.ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if h.Launch.Take() {
		t.Fatal("launch flag set by a failed install")
	}
}

func TestInstallRunningNoGame(t *testing.T) {
	c := sim.New()
	h := newHooker(c)
	s, err := c.GetServiceHandle(sim.PnpServiceName)
	if err != nil {
		t.Fatal(err)
	}
	h.Session.Set(s)
	if err := h.InstallRunning(); !errors.Is(err, horizon.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInstallRunning(t *testing.T) {
	c := sim.New()
	h := newHooker(c)
	s, err := c.GetServiceHandle(sim.PnpServiceName)
	if err != nil {
		t.Fatal(err)
	}
	h.Session.Set(s)
	g, err := c.Launch(sim.GameSpec{Title: 0x0004000000030800, Code: sim.NewCode(0x2000, 0x400), HeapSize: 0x1000, PresentOffset: 0x400})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.InstallRunning(); err != nil {
		t.Fatal(err)
	}
	if !h.Launch.Take() {
		t.Fatal("launch flag not set")
	}
	if h.Launch.Take() {
		t.Fatal("launch flag consumed twice")
	}
	if c.OpenHandles() != 0 {
		t.Fatalf("%d process handles leaked", c.OpenHandles())
	}

	// The game now calls the service on every frame.
	port := c.Port()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ev, err := port.Receive(ctx); err != nil || ev.Notification != horizon.NotificationLaunchApp {
		t.Fatalf("expected launch notification, got %+v %v", ev, err)
	}
	done := c.PresentAsync(ctx, 1, 0x1f000000, 240*3, 1)
	ev, err := port.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	req := ev.Request
	if req == nil || req.Session != s || req.Command() != hook.RunGameHookCommand {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.Params) != 5 || req.Params[1] != 1 || req.Params[2] != 0x1f000000 {
		t.Fatalf("unexpected params %#x", req.Params)
	}
	port.Reply(req, nil)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// A second install leaves the routine alone.
	before := append([]byte(nil), g.Code...)
	if err := h.InstallRunning(); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != g.Code[i] {
			t.Fatalf("reinstall modified code at %#x", i)
		}
	}
}

func TestSession(t *testing.T) {
	var s hook.Session
	if _, ok := s.Get(); ok {
		t.Fatal("empty session reported as set")
	}
	s.Set(0x20)
	if h, ok := s.Get(); !ok || h != 0x20 {
		t.Fatalf("got %#x %v", h, ok)
	}
}

// Package service implements the pnp service: it hooks the running game,
// receives one RunGameHook request per presented frame and runs plugins
// and the pause controller on it.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/memory"
	"github.com/pnp3ds/pnp/pkg/plugin"
	"github.com/pnp3ds/pnp/pkg/sandbox"
)

// ServiceName is the name the service registers under.
const ServiceName = "pnp:game"

// Context is the state carried from one request to the next. Session and
// Launch are also used by the startup goroutine, everything else only by
// the request loop.
type Context struct {
	Session    hook.Session
	Launch     hook.LaunchFlag
	Generation memory.Generation
	Pause      *PauseController
	Runner     *Runner
}

// Service is the pnp service.
type Service struct {
	cfg    Config
	ctx    Context
	engine *sandbox.Engine
	finder *plugin.Finder
	hooker *hook.Hooker

	frames  atomic.Uint64
	started chan struct{}

	mu     sync.Mutex
	status Status
}

// New creates a service. Nothing happens until Start and Serve are called.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Kernel == nil || cfg.HID == nil || cfg.SD == nil {
		return nil, errors.New("service needs a kernel, a controller and an SD card")
	}
	if cfg.LaunchAttempts <= 0 {
		cfg.LaunchAttempts = DefaultLaunchAttempts
	}
	engine, err := sandbox.NewEngine(ctx, cfg.HID, sandbox.Config{
		TickTimeout: cfg.TickTimeout,
		CacheSize:   cfg.ModuleCacheSize,
	})
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		engine: engine,
		finder: &plugin.Finder{
			SD:        cfg.SD,
			Root:      cfg.SDRoot,
			VendorDir: cfg.PluginDir,
			Ext:       cfg.PluginExtension,
		},
		started: make(chan struct{}),
	}
	s.ctx.Pause = NewPauseController(cfg.HID, cfg.Kernel.SleepThread, cfg.PauseInterval)
	s.hooker = &hook.Hooker{Kernel: cfg.Kernel, Session: &s.ctx.Session, Launch: &s.ctx.Launch}
	return s, nil
}

// Start captures a session to the service on a new goroutine and hooks the
// game that is already running, if any. It does not wait for either.
func (s *Service) Start(ctx context.Context) {
	go func() {
		defer close(s.started)
		h, err := s.cfg.Kernel.GetServiceHandle(ServiceName)
		if err != nil {
			logflags.ServiceLogger().WithError(err).Error("could not open a session to " + ServiceName)
			return
		}
		s.ctx.Session.Set(h)
		// A game launched in extended memory mode restarts the console
		// with it already running, there will be no launch notification.
		s.hooker.InstallRunning()
	}()
}

// Started is closed once the startup goroutine is done.
func (s *Service) Started() <-chan struct{} {
	return s.started
}

// Serve handles requests and notifications from port until the
// termination notification arrives, which returns nil. Port errors are
// returned; the service can not continue after them.
func (s *Service) Serve(ctx context.Context, port horizon.Port) error {
	log := logflags.ServiceLogger()
	for {
		ev, err := port.Receive(ctx)
		if err != nil {
			return err
		}
		if ev.Request != nil {
			result := s.handleRequest(ctx, ev.Request)
			if err := port.Reply(ev.Request, result); err != nil {
				return err
			}
			continue
		}
		switch ev.Notification {
		case horizon.NotificationLaunchApp:
			s.handleLaunch()
		case horizon.NotificationTermination:
			log.Info("termination requested")
			return nil
		case horizon.NotificationSleepRequested, horizon.NotificationGoingToSleep, horizon.NotificationFullyWakingUp:
			log.Debugf("sleep notification %#x", ev.Notification)
		default:
			log.Warnf("unexpected notification %#x", ev.Notification)
		}
	}
}

func (s *Service) handleRequest(ctx context.Context, req *horizon.Request) error {
	if req.Command() != hook.RunGameHookCommand {
		logflags.ServiceLogger().Warnf("invalid command %#x on session %#x", req.Command(), req.Session)
		return horizon.ErrInvalidCommand
	}
	in, err := DecodeRunGameHookIn(req)
	if err != nil {
		logflags.ServiceLogger().WithError(err).Error("bad RunGameHook request")
		return err
	}
	return s.RunGameHook(ctx, in)
}

// handleLaunch waits for the launched game to become accessible, then
// hooks it.
func (s *Service) handleLaunch() {
	log := logflags.ServiceLogger()
	k := s.cfg.Kernel

	var title horizon.TitleID
	var err error
	for i := 0; i < s.cfg.LaunchAttempts; i++ {
		if title, err = k.RunningTitleID(); err == nil {
			break
		}
	}
	if err != nil {
		log.WithError(err).Error("launch: title id never became available")
	} else {
		for i := 0; i < s.cfg.LaunchAttempts; i++ {
			if _, err = memory.NewHeapRegion(k, title, s.cfg.ExtendedTitles); err == nil {
				break
			}
		}
		if err != nil {
			log.WithError(err).Errorf("launch: heap of title %v never became accessible", title)
		}
		log.Infof("launch: title %v", title)
	}
	s.hooker.InstallRunning()
}

// Close releases every plugin and the runtime.
func (s *Service) Close(ctx context.Context) error {
	if s.ctx.Runner != nil {
		s.ctx.Runner.Close(ctx)
		s.ctx.Runner = nil
	}
	return s.engine.Close(ctx)
}

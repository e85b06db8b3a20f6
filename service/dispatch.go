package service

import (
	"context"
	"fmt"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/hook"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
	"github.com/pnp3ds/pnp/pkg/memory"
)

// PrimaryScreen is the screen id of the top screen. Plugins and the pause
// controller run while it is presented.
const PrimaryScreen = 0

// RunGameHookIn are the arguments the trampoline sends with every frame.
type RunGameHookIn struct {
	Placeholder uint32
	ScreenID    uint32
	FrameBuffer uint32
	Stride      uint32
	Format      uint32
}

// DecodeRunGameHookIn reads the arguments of a RunGameHook request.
func DecodeRunGameHookIn(req *horizon.Request) (RunGameHookIn, error) {
	cmd, normal, translate := horizon.ParseHeader(req.Header)
	if cmd != hook.RunGameHookCommand {
		return RunGameHookIn{}, horizon.ErrInvalidCommand
	}
	if normal != 5 || translate != 0 || len(req.Params) < 5 {
		return RunGameHookIn{}, horizon.ErrInvalidValue.WithOp(fmt.Sprintf("RunGameHook header %#08x with %d words", req.Header, len(req.Params)))
	}
	p := req.Params
	return RunGameHookIn{
		Placeholder: p[0],
		ScreenID:    p[1],
		FrameBuffer: p[2],
		Stride:      p[3],
		Format:      p[4],
	}, nil
}

// RunGameHook handles one presented frame. On the first frame after a
// launch the game memory and plugins are set up again. The top screen
// ticks the active plugin or drives the plugin menu, then every screen
// runs the pause controller, which may block.
func (s *Service) RunGameHook(ctx context.Context, in RunGameHookIn) error {
	if s.ctx.Launch.Take() {
		s.newLaunch(ctx)
	}

	primary := in.ScreenID == PrimaryScreen
	screen, err := display.NewScreen(primary, in.FrameBuffer, in.Stride, in.Format, s.cfg.Blitter)
	if err != nil {
		return err
	}
	s.frames.Add(1)

	var runErr error
	if primary {
		s.cfg.HID.ScanInput()
		if r := s.ctx.Runner; r != nil {
			runErr = r.Frame(ctx, screen)
			if runErr != nil {
				logflags.DispatchLogger().WithError(runErr).Error("plugin frame failed")
			}
		}
		s.publish(runErr)
	}
	logflags.DispatchLogger().Debugf("frame screen=%d fb=%#x stride=%#x format=%#x", in.ScreenID, in.FrameBuffer, in.Stride, in.Format)

	s.ctx.Pause.Frame(primary)
	return runErr
}

// newLaunch drops everything tied to the previous game and builds the
// memory bridge and plugin runner for the running one. Failures leave the
// service without a runner.
func (s *Service) newLaunch(ctx context.Context) {
	if s.ctx.Runner != nil {
		s.ctx.Runner.Close(ctx)
		s.ctx.Runner = nil
	}
	s.ctx.Generation.Advance()

	log := logflags.DispatchLogger()
	title, err := s.cfg.Kernel.RunningTitleID()
	if err != nil {
		log.WithError(err).Error("new launch: no running title")
		return
	}
	game, err := memory.New(s.cfg.Kernel, title, s.cfg.ExtendedTitles, &s.ctx.Generation)
	if err != nil {
		log.WithError(err).Errorf("new launch: could not access memory of title %v", title)
		return
	}
	r, err := NewRunner(ctx, title, game, RunnerConfig{
		Engine:         s.engine,
		Finder:         s.finder,
		HID:            s.cfg.HID,
		MenuMaxLen:     s.cfg.MenuMaxLen,
		Version:        s.cfg.Version,
		AllowSwitching: s.cfg.AllowPluginSwitching,
	})
	if err != nil {
		log.WithError(err).Infof("new launch: title %v runs without plugins", title)
		return
	}
	s.ctx.Runner = r
	log.Infof("new launch: title %v, plugin %q", title, r.Plugin())
}

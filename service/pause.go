package service

import (
	"sync/atomic"
	"time"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
)

// PauseButtons pause the game when pressed together.
const PauseButtons = horizon.ButtonStart | horizon.ButtonSelect

// PauseController freezes the game between frames so it can be stepped
// one frame at a time.
//
// While paused, Frame blocks the calling request on the primary screen
// until a button releases it: Select lets one frame through and stays
// paused, A or Start resume the game. There is no other way out; the
// service handles one request at a time and a paused game is expected to
// stop every other request from arriving.
type PauseController struct {
	hid      horizon.HID
	sleep    func(time.Duration)
	interval time.Duration
	paused   atomic.Bool
}

// NewPauseController returns a running controller that polls hid every
// interval while paused, waiting with sleep.
func NewPauseController(hid horizon.HID, sleep func(time.Duration), interval time.Duration) *PauseController {
	return &PauseController{hid: hid, sleep: sleep, interval: interval}
}

// Paused reports whether the game is paused.
func (p *PauseController) Paused() bool {
	return p.paused.Load()
}

// Frame runs the controller for the screen being presented. Input must
// have been scanned for this frame already.
func (p *PauseController) Frame(primary bool) {
	if horizon.IsJustPressed(p.hid, PauseButtons) && !p.paused.Load() {
		p.paused.Store(true)
		logflags.ServiceLogger().Info("game paused")
	}
	for p.paused.Load() && primary {
		p.hid.ScanInput()
		down := p.hid.JustDown()
		if down.Has(horizon.ButtonSelect) {
			logflags.ServiceLogger().Debug("frame advance")
			break
		}
		if down.Has(horizon.ButtonA) || down.Has(horizon.ButtonStart) {
			p.paused.Store(false)
			logflags.ServiceLogger().Info("game resumed")
			break
		}
		p.sleep(p.interval)
	}
}

package service

import "github.com/pnp3ds/pnp/pkg/horizon"

// Status is a snapshot of the service taken after the last top screen
// frame. It is safe to read from any goroutine.
type Status struct {
	Title    horizon.TitleID
	Plugin   string
	Menu     []string
	MenuOpen bool
	Paused   bool
	Output   []string
	Frames   uint64
	Err      error
}

func (s *Service) publish(err error) {
	st := Status{Frames: s.frames.Load(), Err: err}
	if r := s.ctx.Runner; r != nil {
		st.Title = r.Title()
		st.Plugin = r.Plugin()
		st.MenuOpen = r.MenuShown()
		st.Menu = r.Menu().Lines()
		if sb := r.Sandbox(); sb != nil {
			st.Output = sb.Output()
		}
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status returns the latest snapshot. Paused is always current.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.Paused = s.ctx.Pause.Paused()
	return st
}

// Frames returns the number of frames handled so far.
func (s *Service) Frames() uint64 {
	return s.frames.Load()
}

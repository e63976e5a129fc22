package web

import "github.com/teslashibe/go-posture/pkg/lockout"

// The server is the lockout's display and page alarm. State is recorded
// even with no page open so a page that connects later renders it.
var (
	_ lockout.Display = (*Server)(nil)
	_ lockout.Alarm   = (*Server)(nil)
)

// RequestFullscreen asks connected pages to go fullscreen. Fails with
// ErrNoClients when no page is open, so the controller will not try to
// exit fullscreen later.
func (s *Server) RequestFullscreen() error {
	if s.Clients() == 0 {
		return ErrNoClients
	}
	s.update(func(p *PageState) { p.Fullscreen = true }, command(CommandFullscreen, nil))
	return nil
}

func (s *Server) ExitFullscreen() error {
	s.update(func(p *PageState) { p.Fullscreen = false }, command(CommandExitFullscreen, nil))
	return nil
}

func (s *Server) ShowOverlay() error {
	s.update(func(p *PageState) { p.Overlay = true }, command(CommandShowOverlay, nil))
	return nil
}

func (s *Server) HideOverlay() error {
	s.update(func(p *PageState) { p.Overlay = false }, command(CommandHideOverlay, nil))
	return nil
}

func (s *Server) SetPulse(on bool) error {
	s.update(func(p *PageState) { p.Pulse = on }, command(CommandPulse, &on))
	return nil
}

// PlayLoop starts the page alarm. Fails with ErrNoClients when no page
// is open.
func (s *Server) PlayLoop() error {
	s.update(func(p *PageState) { p.Alarm = true }, command(CommandPlayAlarm, nil))
	if s.Clients() == 0 {
		return ErrNoClients
	}
	return nil
}

// Stop stops and rewinds the page alarm.
func (s *Server) Stop() error {
	s.update(func(p *PageState) { p.Alarm = false }, command(CommandStopAlarm, nil))
	return nil
}

// update applies fn and pushes msg under the state lock, so a page
// connecting concurrently either sees the change in its snapshot or
// receives msg after it.
func (s *Server) update(fn func(p *PageState), msg message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.push(msg)
}

func command(name string, on *bool) message {
	return message{Type: typeCommand, Command: name, On: on}
}

package keystate

import (
	"context"
	"sync"
	"time"
)

// Probe reports whether the switcher modifier is still held.
//
// Terminals do not report bare modifier releases to a program, so each probe
// infers the state from what it can observe. Observe feeds it every command
// the overlay receives, whether from a key press or from the socket.
type Probe interface {
	ModifierHeld(ctx context.Context) (bool, error)
	Observe(cmd Command, now time.Time)
}

// Linger treats the modifier as held while activity keeps arriving: holding
// the modifier and tapping (or auto-repeating) the cycle key refreshes it,
// and the modifier counts as released once no activity was seen for the
// linger window.
type Linger struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewLinger starts a linger probe; opening the overlay counts as activity.
func NewLinger(window time.Duration, now func() time.Time) *Linger {
	if now == nil {
		now = time.Now
	}
	return &Linger{window: window, now: now, last: now()}
}

// ModifierHeld implements Probe.
func (l *Linger) ModifierHeld(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Sub(l.last) < l.window, nil
}

// Observe implements Probe. A release command ends the linger at once.
func (l *Linger) Observe(cmd Command, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cmd == CmdRelease {
		l.last = now.Add(-l.window)
		return
	}
	if now.After(l.last) {
		l.last = now
	}
}

// Socket follows explicit hold and release commands, typically sent by the
// window manager or terminal key bindings on modifier down and up. It starts
// held, since the overlay is opened by a modifier chord.
type Socket struct {
	mu   sync.Mutex
	held bool
}

// NewSocket returns a socket probe in the held state.
func NewSocket() *Socket {
	return &Socket{held: true}
}

// ModifierHeld implements Probe.
func (s *Socket) ModifierHeld(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held, nil
}

// Observe implements Probe.
func (s *Socket) Observe(cmd Command, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case CmdHold:
		s.held = true
	case CmdRelease:
		s.held = false
	}
}

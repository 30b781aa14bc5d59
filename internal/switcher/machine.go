// Package switcher implements the MRU overlay: the interaction state machine
// that turns open, cycle, poll and escape events into commit or cancel
// outcomes, and the bubbletea program that drives it.
package switcher

import (
	"time"

	"github.com/google/uuid"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/mru"
)

// State is the overlay lifecycle state.
type State int

const (
	Idle State = iota
	// OpenIdle is open with no recent activity; polled at the slow interval.
	OpenIdle
	// OpenActive is open and recently interacted with; polled at the fast interval.
	OpenActive
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OpenIdle:
		return "open_idle"
	case OpenActive:
		return "open_active"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Direction is the initial cycle direction of an open.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// OutcomeKind says how a session ended.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeCommit
	OutcomeCancel
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCommit:
		return "commit"
	case OutcomeCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Outcome is the terminal action of a session. For a commit, Target is the
// tab to activate. For a cancel, Target is the origin and Restore is false
// when the origin closed during the session (stay on the current tab).
type Outcome struct {
	Kind    OutcomeKind
	Target  model.TabIdentity
	Restore bool
}

// MachineConfig holds the poll timing of the state machine.
type MachineConfig struct {
	PollFast  time.Duration
	PollIdle  time.Duration
	IdleAfter time.Duration
	// ReleaseGrace ignores a release seen before the first cycle within this
	// long after opening: the release of the invoking shortcut itself.
	ReleaseGrace time.Duration
	// ReleaseStreak is the number of consecutive released samples needed
	// to commit.
	ReleaseStreak int
}

// Session is the state of one overlay invocation.
type Session struct {
	ID           string
	Origin       model.TabIdentity
	Highlight    int
	Direction    Direction
	Held         bool
	OpenedAt     time.Time
	LastPoll     time.Time
	LastActivity time.Time

	cycled   bool
	released int
}

// Machine is the interaction state machine. It owns the MRU stack for the
// duration of a session and is driven from a single loop; it is not safe
// for concurrent use.
type Machine struct {
	cfg     MachineConfig
	stack   *mru.Stack
	state   State
	session *Session
	newID   func() string
}

// NewMachine creates an idle machine over stack.
func NewMachine(cfg MachineConfig, stack *mru.Stack) *Machine {
	if cfg.ReleaseStreak < 1 {
		cfg.ReleaseStreak = 1
	}
	if cfg.PollIdle < cfg.PollFast {
		cfg.PollIdle = cfg.PollFast
	}
	return &Machine{cfg: cfg, stack: stack, newID: uuid.NewString}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// IsOpen reports whether a session is open.
func (m *Machine) IsOpen() bool {
	return m.state == OpenIdle || m.state == OpenActive
}

// Session returns a copy of the current session.
func (m *Machine) Session() (Session, bool) {
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Stack returns the MRU stack.
func (m *Machine) Stack() *mru.Stack {
	return m.stack
}

// Highlight returns the highlighted index, or -1 when closed or empty.
func (m *Machine) Highlight() int {
	if m.session == nil || m.stack.Len() == 0 {
		return -1
	}
	return m.session.Highlight
}

// Selected returns the highlighted tab.
func (m *Machine) Selected() (model.TabIdentity, bool) {
	h := m.Highlight()
	if h < 0 {
		return model.TabIdentity{}, false
	}
	return m.stack.At(h), true
}

// Open starts a session from Idle: origin becomes the stack head and the
// highlight skips it (Forward) or goes to the tail (Backward). Open while a
// session is already open acts as a cycle in dir.
func (m *Machine) Open(dir Direction, origin model.TabIdentity, now time.Time) {
	if m.IsOpen() {
		m.Cycle(int(dir), now)
		return
	}
	if m.state == Closing {
		return
	}
	m.stack.Touch(origin)
	n := m.stack.Len()
	h := 0
	if n > 1 {
		if dir == Backward {
			h = n - 1
		} else {
			h = 1
		}
	}
	if dir != Backward {
		dir = Forward
	}
	m.session = &Session{
		ID:           m.newID(),
		Origin:       origin,
		Highlight:    h,
		Direction:    dir,
		Held:         true,
		OpenedAt:     now,
		LastPoll:     now,
		LastActivity: now,
	}
	m.state = OpenActive
}

// Cycle moves the highlight by delta modulo the stack length. The stack is
// not reordered.
func (m *Machine) Cycle(delta int, now time.Time) {
	if !m.IsOpen() {
		return
	}
	s := m.session
	if n := m.stack.Len(); n > 0 {
		s.Highlight = mod(s.Highlight+delta, n)
	}
	if delta < 0 {
		s.Direction = Backward
	} else if delta > 0 {
		s.Direction = Forward
	}
	s.cycled = true
	s.released = 0
	s.LastActivity = now
	m.state = OpenActive
}

// Poll applies one modifier sample. A release commits once ReleaseStreak
// consecutive released samples were seen, except during the open grace.
func (m *Machine) Poll(held bool, now time.Time) Outcome {
	if !m.IsOpen() {
		return Outcome{}
	}
	s := m.session
	s.LastPoll = now
	if held {
		s.Held = true
		s.released = 0
		m.updateActivityState(now)
		return Outcome{}
	}
	if !s.cycled && now.Sub(s.OpenedAt) < m.cfg.ReleaseGrace {
		m.updateActivityState(now)
		return Outcome{}
	}
	s.Held = false
	s.released++
	if s.released < m.cfg.ReleaseStreak {
		m.updateActivityState(now)
		return Outcome{}
	}
	return m.commit()
}

// PollInterval returns the delay before the next poll: fast while there was
// activity within IdleAfter, slow after.
func (m *Machine) PollInterval(now time.Time) time.Duration {
	if m.session == nil || now.Sub(m.session.LastActivity) > m.cfg.IdleAfter {
		return m.cfg.PollIdle
	}
	return m.cfg.PollFast
}

// Escape cancels the session back to its origin.
func (m *Machine) Escape(time.Time) Outcome {
	if !m.IsOpen() {
		return Outcome{}
	}
	origin := m.session.Origin
	m.state = Closing
	return Outcome{Kind: OutcomeCancel, Target: origin, Restore: m.stack.Contains(origin)}
}

// Commit ends the session selecting the highlighted tab.
func (m *Machine) Commit(time.Time) Outcome {
	if !m.IsOpen() {
		return Outcome{}
	}
	return m.commit()
}

func (m *Machine) commit() Outcome {
	m.state = Closing
	target, ok := m.Selected()
	if !ok {
		return Outcome{}
	}
	return Outcome{Kind: OutcomeCommit, Target: target}
}

// TabClosed removes a closed tab. An open session keeps its highlight on
// the same tab, or, when the highlighted tab itself closed, moves to the
// next entry in the direction of travel, else the head.
func (m *Machine) TabClosed(id model.TabIdentity) bool {
	idx, ok := m.stack.Remove(id)
	if !ok {
		return false
	}
	if m.session == nil {
		return true
	}
	s := m.session
	n := m.stack.Len()
	switch {
	case n == 0:
		s.Highlight = 0
	case idx < s.Highlight:
		s.Highlight--
	case idx == s.Highlight:
		next := idx
		if s.Direction == Backward {
			next = idx - 1
		}
		if next < 0 || next >= n {
			next = 0
		}
		s.Highlight = next
	}
	return true
}

// Reconcile brings the stack in line with the live tab list, applying
// TabClosed for every entry that disappeared.
func (m *Machine) Reconcile(live []model.TabIdentity) []model.TabIdentity {
	alive := make(map[string]bool, len(live))
	for _, id := range live {
		alive[id.Tab] = true
	}
	var removed []model.TabIdentity
	for _, id := range m.stack.Order() {
		if !alive[id.Tab] {
			m.TabClosed(id)
			removed = append(removed, id)
		}
	}
	m.stack.Reconcile(live)
	return removed
}

// Finish closes the session. A commit whose activation succeeded moves the
// target to the head; a cancel or a failed activation leaves the order as is.
func (m *Machine) Finish(o Outcome, activateErr error) {
	if o.Kind == OutcomeCommit && activateErr == nil {
		m.stack.Touch(o.Target)
	}
	m.session = nil
	m.state = Idle
}

func (m *Machine) updateActivityState(now time.Time) {
	if now.Sub(m.session.LastActivity) > m.cfg.IdleAfter {
		m.state = OpenIdle
	} else {
		m.state = OpenActive
	}
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}

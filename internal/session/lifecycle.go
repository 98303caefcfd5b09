package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for a transition the current phase does not allow
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrEmptySession is returned when completing a session with no elapsed time
	ErrEmptySession = errors.New("session has no elapsed time")
	// ErrAlreadyFinalized is returned for any call after Completed or Discarded
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrLocked is returned for user commands while the screen is locked
	ErrLocked = errors.New("session is locked")
)

// Phase is the tag of a Lifecycle
type Phase int

const (
	PhaseArmed Phase = iota
	PhaseCountingDown
	PhaseRunning
	PhasePaused
	PhaseLocked
	PhaseCompleted
	PhaseDiscarded
)

func (p Phase) String() string {
	switch p {
	case PhaseArmed:
		return "Armed"
	case PhaseCountingDown:
		return "CountingDown"
	case PhaseRunning:
		return "Running"
	case PhasePaused:
		return "Paused"
	case PhaseLocked:
		return "Locked"
	case PhaseCompleted:
		return "Completed"
	case PhaseDiscarded:
		return "Discarded"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Lifecycle is an immutable value describing where a session is.
// TicksRemaining is set while counting down, including a countdown that
// continues behind the lock. Prior is the phase Unlock returns to. Final is
// set once Completed.
type Lifecycle struct {
	Phase          Phase
	TicksRemaining int
	Prior          Phase
	Final          *Snapshot
}

// WasRunning reports whether a locked session was Running when it was locked
func (l Lifecycle) WasRunning() bool {
	return l.Phase == PhaseLocked && l.Prior == PhaseRunning
}

// Recording reports whether ticks and location deltas are applied
func (l Lifecycle) Recording() bool {
	return l.Phase == PhaseRunning || l.WasRunning()
}

// Terminal reports whether the session is Completed or Discarded
func (l Lifecycle) Terminal() bool {
	return l.Phase == PhaseCompleted || l.Phase == PhaseDiscarded
}

func (l Lifecycle) String() string {
	switch l.Phase {
	case PhaseCountingDown:
		return fmt.Sprintf("CountingDown(%d)", l.TicksRemaining)
	case PhaseLocked:
		return fmt.Sprintf("Locked(%s)", l.Prior)
	default:
		return l.Phase.String()
	}
}

// Machine owns the lifecycle of one session attempt. It is not safe for
// concurrent use; the engine loop is its only caller.
type Machine struct {
	state          Lifecycle
	countdownTicks int
}

// NewMachine creates an Armed machine. A countdown of zero ticks starts
// Running directly.
func NewMachine(countdownTicks int) *Machine {
	if countdownTicks < 0 {
		countdownTicks = 0
	}
	return &Machine{
		state:          Lifecycle{Phase: PhaseArmed},
		countdownTicks: countdownTicks,
	}
}

// State returns the current lifecycle
func (m *Machine) State() Lifecycle {
	return m.state
}

func (m *Machine) Recording() bool {
	return m.state.Recording()
}

func (m *Machine) Terminal() bool {
	return m.state.Terminal()
}

func (m *Machine) reject(op string) error {
	if m.state.Terminal() {
		return fmt.Errorf("%s: %w", op, ErrAlreadyFinalized)
	}
	return fmt.Errorf("%s from %s: %w", op, m.state, ErrInvalidTransition)
}

// Start moves Armed to CountingDown
func (m *Machine) Start() error {
	if m.state.Phase != PhaseArmed {
		return m.reject("start")
	}
	if m.countdownTicks == 0 {
		m.state = Lifecycle{Phase: PhaseRunning}
		return nil
	}
	m.state = Lifecycle{Phase: PhaseCountingDown, TicksRemaining: m.countdownTicks}
	return nil
}

// CountdownTick advances a countdown, including one running behind the lock.
// started is true on the tick that begins recording.
func (m *Machine) CountdownTick() (started bool, err error) {
	switch {
	case m.state.Phase == PhaseCountingDown:
		if m.state.TicksRemaining <= 1 {
			m.state = Lifecycle{Phase: PhaseRunning}
			return true, nil
		}
		m.state.TicksRemaining--
		return false, nil
	case m.state.Phase == PhaseLocked && m.state.Prior == PhaseCountingDown:
		if m.state.TicksRemaining <= 1 {
			m.state = Lifecycle{Phase: PhaseLocked, Prior: PhaseRunning}
			return true, nil
		}
		m.state.TicksRemaining--
		return false, nil
	default:
		return false, m.reject("countdown tick")
	}
}

// Pause moves Running to Paused. Pausing a paused session does nothing.
func (m *Machine) Pause() error {
	switch m.state.Phase {
	case PhasePaused:
		return nil
	case PhaseRunning:
		m.state = Lifecycle{Phase: PhasePaused}
		return nil
	default:
		return m.reject("pause")
	}
}

// Resume moves Paused to Running
func (m *Machine) Resume() error {
	if m.state.Phase != PhasePaused {
		return m.reject("resume")
	}
	m.state = Lifecycle{Phase: PhaseRunning}
	return nil
}

// Lock remembers the current phase and moves to Locked
func (m *Machine) Lock() error {
	switch m.state.Phase {
	case PhaseRunning, PhasePaused, PhaseCountingDown:
		m.state = Lifecycle{
			Phase:          PhaseLocked,
			Prior:          m.state.Phase,
			TicksRemaining: m.state.TicksRemaining,
		}
		return nil
	default:
		return m.reject("lock")
	}
}

// Unlock returns to the phase remembered by Lock
func (m *Machine) Unlock() error {
	if m.state.Phase != PhaseLocked {
		return m.reject("unlock")
	}
	m.state = Lifecycle{Phase: m.state.Prior, TicksRemaining: m.state.TicksRemaining}
	return nil
}

// Complete moves Running or Paused to Completed and keeps final as the
// immutable result
func (m *Machine) Complete(final Snapshot) error {
	if m.state.Phase != PhaseRunning && m.state.Phase != PhasePaused {
		return m.reject("complete")
	}
	if final.ElapsedSeconds <= 0 {
		return fmt.Errorf("complete: %w", ErrEmptySession)
	}
	kept := final.Clone()
	m.state = Lifecycle{Phase: PhaseCompleted, Final: &kept}
	return nil
}

// Discard moves any non-terminal phase to Discarded
func (m *Machine) Discard() error {
	if m.state.Terminal() {
		return m.reject("discard")
	}
	m.state = Lifecycle{Phase: PhaseDiscarded}
	return nil
}

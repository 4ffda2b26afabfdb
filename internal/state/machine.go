package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Auth session states.
const (
	StateUnauthenticated = "unauthenticated"
	StateAuthenticated   = "authenticated"
	StateRefreshPending  = "refresh_pending"
	StateReauthRequired  = "reauth_required"
)

// Auth session events. Transitions are driven only by transport response
// classes: a 401/403 moves toward refresh_pending or reauth_required, a
// network error changes nothing.
const (
	EventLoginOK       = "login_ok"
	EventLoginFailed   = "login_failed"
	EventRefreshStart  = "refresh_start"
	EventRefreshOK     = "refresh_ok"
	EventRefreshFailed = "refresh_failed"
)

// Machine tracks the lifecycle of one account session:
// unauthenticated -> authenticated <-> refresh_pending -> reauth_required.
// reauth_required is terminal until an external reauthentication succeeds.
type Machine struct {
	mu       sync.RWMutex
	fsm      *fsm.FSM
	since    time.Time
	onChange func(from, to string)
}

// NewMachine creates a session machine. onChange fires after every effective
// transition and is how the reauthentication-required signal propagates to
// collaborators.
func NewMachine(onChange func(from, to string)) *Machine {
	m := &Machine{
		since:    time.Now(),
		onChange: onChange,
	}

	m.fsm = fsm.NewFSM(
		StateUnauthenticated,
		fsm.Events{
			{Name: EventLoginOK, Src: []string{StateUnauthenticated, StateReauthRequired, StateAuthenticated}, Dst: StateAuthenticated},
			{Name: EventLoginFailed, Src: []string{StateUnauthenticated, StateReauthRequired}, Dst: StateUnauthenticated},

			{Name: EventRefreshStart, Src: []string{StateAuthenticated}, Dst: StateRefreshPending},
			{Name: EventRefreshOK, Src: []string{StateRefreshPending}, Dst: StateAuthenticated},
			{Name: EventRefreshFailed, Src: []string{StateRefreshPending}, Dst: StateReauthRequired},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onChange != nil && e.Src != e.Dst {
					m.onChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current returns the current session state.
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Trigger fires an event.
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		// A self-transition (e.g. login_ok while already authenticated) is
		// not an error for callers.
		if _, ok := err.(fsm.NoTransitionError); ok {
			return nil
		}
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	m.since = time.Now()
	return nil
}

// Can reports whether the event is valid from the current state.
func (m *Machine) Can(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// ReauthRequired reports whether the session needs external
// reauthentication.
func (m *Machine) ReauthRequired() bool {
	return m.Current() == StateReauthRequired
}

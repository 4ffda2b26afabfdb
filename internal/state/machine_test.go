package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	assert.Equal(t, StateUnauthenticated, m.Current())
	assert.False(t, m.ReauthRequired())
}

func TestLoginTransitions(t *testing.T) {
	m := NewMachine(nil)

	require.NoError(t, m.Trigger(EventLoginOK))
	assert.Equal(t, StateAuthenticated, m.Current())

	// A second login while authenticated is a no-op, not an error.
	require.NoError(t, m.Trigger(EventLoginOK))
	assert.Equal(t, StateAuthenticated, m.Current())
}

func TestLoginFailedStaysUnauthenticated(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventLoginFailed))
	assert.Equal(t, StateUnauthenticated, m.Current())
}

func TestRefreshCycle(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventLoginOK))

	require.NoError(t, m.Trigger(EventRefreshStart))
	assert.Equal(t, StateRefreshPending, m.Current())

	require.NoError(t, m.Trigger(EventRefreshOK))
	assert.Equal(t, StateAuthenticated, m.Current())
}

func TestRefreshFailureIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventLoginOK))
	require.NoError(t, m.Trigger(EventRefreshStart))
	require.NoError(t, m.Trigger(EventRefreshFailed))

	assert.Equal(t, StateReauthRequired, m.Current())
	assert.True(t, m.ReauthRequired())

	// Refresh events are not valid from the terminal state.
	assert.False(t, m.Can(EventRefreshStart))
	assert.Error(t, m.Trigger(EventRefreshStart))

	// Only a fresh login leaves reauth_required.
	require.NoError(t, m.Trigger(EventLoginOK))
	assert.Equal(t, StateAuthenticated, m.Current())
	assert.False(t, m.ReauthRequired())
}

func TestAuthenticatedEventSet(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventLoginOK))

	// reauth_required is reachable only through a failed refresh.
	assert.True(t, m.Can(EventRefreshStart))
	assert.True(t, m.Can(EventLoginOK))
	assert.False(t, m.Can(EventRefreshOK))
	assert.False(t, m.Can(EventRefreshFailed))
	assert.False(t, m.Can(EventLoginFailed))
}

func TestOnChangeFiresOnEffectiveTransitions(t *testing.T) {
	type transition struct{ from, to string }
	var seen []transition

	m := NewMachine(func(from, to string) {
		seen = append(seen, transition{from, to})
	})

	require.NoError(t, m.Trigger(EventLoginOK))
	require.NoError(t, m.Trigger(EventLoginOK)) // self-transition, no callback
	require.NoError(t, m.Trigger(EventRefreshStart))
	require.NoError(t, m.Trigger(EventRefreshOK))

	require.Len(t, seen, 3)
	assert.Equal(t, transition{StateUnauthenticated, StateAuthenticated}, seen[0])
	assert.Equal(t, transition{StateAuthenticated, StateRefreshPending}, seen[1])
	assert.Equal(t, transition{StateRefreshPending, StateAuthenticated}, seen[2])
}

func TestSinceAdvancesOnTransition(t *testing.T) {
	m := NewMachine(nil)
	before := m.Since()
	require.NoError(t, m.Trigger(EventLoginOK))
	assert.False(t, m.Since().Before(before))
}

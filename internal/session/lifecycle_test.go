package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(0)
	require.NoError(t, m.Start())
	require.Equal(t, PhaseRunning, m.State().Phase)
	return m
}

func TestMachine_Countdown(t *testing.T) {
	m := NewMachine(3)
	assert.Equal(t, PhaseArmed, m.State().Phase)
	assert.False(t, m.Recording())

	require.NoError(t, m.Start())
	assert.Equal(t, "CountingDown(3)", m.State().String())

	started, err := m.CountdownTick()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, 2, m.State().TicksRemaining)

	started, _ = m.CountdownTick()
	assert.False(t, started)
	started, _ = m.CountdownTick()
	assert.True(t, started)
	assert.Equal(t, PhaseRunning, m.State().Phase)
	assert.True(t, m.Recording())

	_, err = m.CountdownTick()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMachine_StartTwiceIsRejected(t *testing.T) {
	m := runningMachine(t)
	assert.ErrorIs(t, m.Start(), ErrInvalidTransition)
}

func TestMachine_PauseResume(t *testing.T) {
	m := runningMachine(t)

	require.NoError(t, m.Pause())
	assert.Equal(t, PhasePaused, m.State().Phase)
	assert.False(t, m.Recording())

	// pausing again changes nothing
	require.NoError(t, m.Pause())
	assert.Equal(t, PhasePaused, m.State().Phase)

	require.NoError(t, m.Resume())
	assert.Equal(t, PhaseRunning, m.State().Phase)
	assert.ErrorIs(t, m.Resume(), ErrInvalidTransition)
}

func TestMachine_LockRemembersPriorPhase(t *testing.T) {
	m := runningMachine(t)
	require.NoError(t, m.Lock())
	assert.Equal(t, "Locked(Running)", m.State().String())
	assert.True(t, m.State().WasRunning())
	assert.True(t, m.Recording())
	assert.ErrorIs(t, m.Lock(), ErrInvalidTransition)

	require.NoError(t, m.Unlock())
	assert.Equal(t, PhaseRunning, m.State().Phase)

	require.NoError(t, m.Pause())
	require.NoError(t, m.Lock())
	assert.False(t, m.Recording())
	require.NoError(t, m.Unlock())
	assert.Equal(t, PhasePaused, m.State().Phase)
}

func TestMachine_CountdownContinuesBehindLock(t *testing.T) {
	m := NewMachine(2)
	require.NoError(t, m.Start())
	require.NoError(t, m.Lock())
	assert.Equal(t, 2, m.State().TicksRemaining)

	started, err := m.CountdownTick()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, PhaseLocked, m.State().Phase)

	started, err = m.CountdownTick()
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, m.State().WasRunning())

	require.NoError(t, m.Unlock())
	assert.Equal(t, PhaseRunning, m.State().Phase)
}

func TestMachine_UnlockMidCountdownResumesCountdown(t *testing.T) {
	m := NewMachine(3)
	require.NoError(t, m.Start())
	require.NoError(t, m.Lock())
	_, err := m.CountdownTick()
	require.NoError(t, err)

	require.NoError(t, m.Unlock())
	assert.Equal(t, "CountingDown(2)", m.State().String())
}

func TestMachine_Complete(t *testing.T) {
	m := runningMachine(t)

	err := m.Complete(Snapshot{})
	assert.ErrorIs(t, err, ErrEmptySession)
	assert.Equal(t, PhaseRunning, m.State().Phase)

	final := Snapshot{ElapsedSeconds: 60, DistanceMeters: 200, Splits: []Split{{MarkerMeters: 1000}}}
	require.NoError(t, m.Complete(final))
	state := m.State()
	assert.Equal(t, PhaseCompleted, state.Phase)
	require.NotNil(t, state.Final)
	assert.Equal(t, 200.0, state.Final.DistanceMeters)

	// the stored result does not alias the caller's slice
	final.Splits[0].MarkerMeters = 5
	assert.Equal(t, 1000.0, state.Final.Splits[0].MarkerMeters)

	assert.ErrorIs(t, m.Complete(final), ErrAlreadyFinalized)
	assert.ErrorIs(t, m.Pause(), ErrAlreadyFinalized)
	assert.ErrorIs(t, m.Discard(), ErrAlreadyFinalized)
	assert.ErrorIs(t, m.Unlock(), ErrAlreadyFinalized)
}

func TestMachine_CompleteFromLockedOrArmedIsRejected(t *testing.T) {
	m := NewMachine(1)
	assert.ErrorIs(t, m.Complete(Snapshot{ElapsedSeconds: 1}), ErrInvalidTransition)

	m = runningMachine(t)
	require.NoError(t, m.Lock())
	assert.ErrorIs(t, m.Complete(Snapshot{ElapsedSeconds: 1}), ErrInvalidTransition)
}

func TestMachine_Discard(t *testing.T) {
	for _, setup := range []func(*Machine) error{
		func(m *Machine) error { return nil },
		func(m *Machine) error { return m.Start() },
		func(m *Machine) error {
			if err := m.Start(); err != nil {
				return err
			}
			return m.Lock()
		},
	} {
		m := NewMachine(3)
		require.NoError(t, setup(m))
		require.NoError(t, m.Discard())
		assert.Equal(t, PhaseDiscarded, m.State().Phase)
		assert.True(t, m.Terminal())
		assert.Nil(t, m.State().Final)
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "Armed", PhaseArmed.String())
	assert.Equal(t, "Discarded", PhaseDiscarded.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())
}

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func TestLockGuard_Admit(t *testing.T) {
	g := NewLockGuard(LockPolicy{})

	assert.NoError(t, g.Admit(Lifecycle{Phase: PhaseRunning}, "pause"))
	assert.ErrorIs(t, g.Admit(Lifecycle{Phase: PhaseLocked, Prior: PhaseRunning}, "pause"), ErrLocked)
	assert.ErrorIs(t, g.Admit(Lifecycle{Phase: PhaseCompleted}, "pause"), ErrAlreadyFinalized)
	assert.ErrorIs(t, g.Admit(Lifecycle{Phase: PhaseDiscarded}, "lock"), ErrAlreadyFinalized)
}

func TestLockGuard_DefaultsFillGaps(t *testing.T) {
	g := NewLockGuard(LockPolicy{VolumePresses: 2})
	p := g.Policy()
	assert.Equal(t, 2, p.VolumePresses)
	assert.Equal(t, 0.8, p.DragThreshold)
	assert.Equal(t, 3*time.Second, p.VolumeWindow)
	assert.Equal(t, 1.0, p.TrackLength)
}

func TestLockGuard_EvaluateDrag(t *testing.T) {
	g := NewLockGuard(DefaultLockPolicy())
	assert.False(t, g.EvaluateDrag(0.6))
	assert.False(t, g.EvaluateDrag(0.8))
	assert.True(t, g.EvaluateDrag(0.85))

	// offsets are relative to the track length
	g = NewLockGuard(LockPolicy{TrackLength: 300})
	assert.False(t, g.EvaluateDrag(180))
	assert.True(t, g.EvaluateDrag(255))
}

func TestLockGuard_VolumePressesWithinWindow(t *testing.T) {
	g := NewLockGuard(DefaultLockPolicy())

	assert.False(t, g.RegisterVolumeChange(t0))
	assert.False(t, g.RegisterVolumeChange(t0.Add(700*time.Millisecond)))
	assert.False(t, g.RegisterVolumeChange(t0.Add(1400*time.Millisecond)))
	assert.Equal(t, 3, g.PendingPresses())
	assert.True(t, g.RegisterVolumeChange(t0.Add(2100*time.Millisecond)))
	assert.Equal(t, 0, g.PendingPresses())
}

func TestLockGuard_VolumePressesSpreadOut(t *testing.T) {
	g := NewLockGuard(DefaultLockPolicy())

	for i := 0; i < 4; i++ {
		unlocked := g.RegisterVolumeChange(t0.Add(time.Duration(i) * 1250 * time.Millisecond))
		assert.False(t, unlocked, "press %d", i)
	}
	// the first press fell out of the window
	assert.Equal(t, 3, g.PendingPresses())
}

func TestLockGuard_WindowResetsAfterInactivity(t *testing.T) {
	g := NewLockGuard(DefaultLockPolicy())
	g.RegisterVolumeChange(t0)
	g.RegisterVolumeChange(t0.Add(time.Second))
	g.RegisterVolumeChange(t0.Add(2 * time.Second))

	assert.False(t, g.RegisterVolumeChange(t0.Add(10*time.Second)))
	assert.Equal(t, 1, g.PendingPresses())
}

func TestLockGuard_OutOfOrderPressIsClamped(t *testing.T) {
	g := NewLockGuard(DefaultLockPolicy())
	g.RegisterVolumeChange(t0.Add(time.Second))
	g.RegisterVolumeChange(t0)
	g.RegisterVolumeChange(t0)
	assert.True(t, g.RegisterVolumeChange(t0.Add(time.Second)))
}

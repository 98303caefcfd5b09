package session

import (
	"fmt"
	"time"
)

// LockPolicy holds the unlock thresholds. They are tuning values, not a
// security boundary.
type LockPolicy struct {
	TrackLength   float64       `mapstructure:"track_length"`
	DragThreshold float64       `mapstructure:"drag_threshold"`
	VolumePresses int           `mapstructure:"volume_presses"`
	VolumeWindow  time.Duration `mapstructure:"volume_window"`
}

// DefaultLockPolicy unlocks on a drag past 80% of the track or 4 volume
// presses within 3 seconds
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		TrackLength:   1,
		DragThreshold: 0.8,
		VolumePresses: 4,
		VolumeWindow:  3 * time.Second,
	}
}

func (p LockPolicy) withDefaults() LockPolicy {
	def := DefaultLockPolicy()
	if p.TrackLength <= 0 {
		p.TrackLength = def.TrackLength
	}
	if p.DragThreshold <= 0 || p.DragThreshold > 1 {
		p.DragThreshold = def.DragThreshold
	}
	if p.VolumePresses <= 0 {
		p.VolumePresses = def.VolumePresses
	}
	if p.VolumeWindow <= 0 {
		p.VolumeWindow = def.VolumeWindow
	}
	return p
}

// LockGuard sits in front of the user-facing transitions. It only ever
// decides; the machine performs the transition.
type LockGuard struct {
	policy  LockPolicy
	presses []time.Time
}

func NewLockGuard(policy LockPolicy) *LockGuard {
	return &LockGuard{policy: policy.withDefaults()}
}

// Policy returns the effective thresholds
func (g *LockGuard) Policy() LockPolicy {
	return g.policy
}

// Admit rejects a user command that is not an unlock intent
func (g *LockGuard) Admit(state Lifecycle, op string) error {
	if state.Terminal() {
		return fmt.Errorf("%s: %w", op, ErrAlreadyFinalized)
	}
	if state.Phase == PhaseLocked {
		return fmt.Errorf("%s: %w", op, ErrLocked)
	}
	return nil
}

// EvaluateDrag reports whether a drag released at offset unlocks. Offsets at
// or below the threshold snap back.
func (g *LockGuard) EvaluateDrag(offset float64) bool {
	return offset/g.policy.TrackLength > g.policy.DragThreshold
}

// RegisterVolumeChange counts one volume change at the given time and
// reports whether the press pattern is complete. Presses older than the
// window fall out; a complete pattern clears the counter.
func (g *LockGuard) RegisterVolumeChange(at time.Time) bool {
	if n := len(g.presses); n > 0 && at.Before(g.presses[n-1]) {
		at = g.presses[n-1]
	}

	// after a full window of inactivity nothing is kept
	kept := g.presses[:0]
	for _, p := range g.presses {
		if at.Sub(p) <= g.policy.VolumeWindow {
			kept = append(kept, p)
		}
	}
	g.presses = append(kept, at)

	if len(g.presses) >= g.policy.VolumePresses {
		g.Reset()
		return true
	}
	return false
}

// PendingPresses returns the presses counted inside the current window
func (g *LockGuard) PendingPresses() int {
	return len(g.presses)
}

// Reset clears the volume press counter
func (g *LockGuard) Reset() {
	g.presses = g.presses[:0]
}

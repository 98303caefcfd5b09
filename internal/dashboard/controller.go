package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/session"
)

const (
	// DragStep is how far one arrow key press moves the unlock slider
	DragStep = 0.1

	persistTimeout = 10 * time.Second
)

// SessionCommands is the part of the session engine the dashboard drives
type SessionCommands interface {
	Start() error
	Pause() error
	Resume() error
	Lock() error
	DragUnlock(offset float64) (bool, error)
	VolumeButton() (bool, error)
	Complete(ctx context.Context, metadata session.Metadata) (session.FinalRecord, error)
	Discard() error
	RetryPersist(ctx context.Context) error
	View() session.View
}

// Controller turns key presses into session commands. It keeps the unlock
// slider position, the feeling picked for the finished session and the last
// status line.
type Controller struct {
	engine   SessionCommands
	logger   *log.Logger
	metadata session.Metadata
	onQuit   func()

	mu      sync.Mutex
	drag    float64
	feeling calc.Feeling
	status  string
}

// NewController creates a controller. metadata is the template completed
// sessions are saved with; onQuit is called for Escape.
func NewController(engine SessionCommands, metadata session.Metadata, onQuit func(), logger *log.Logger) *Controller {
	if engine == nil {
		panic("Controller: engine cannot be nil")
	}
	if logger == nil {
		panic("Controller: logger cannot be nil")
	}
	if onQuit == nil {
		onQuit = func() {}
	}
	return &Controller{
		engine:   engine,
		logger:   logger,
		metadata: metadata,
		onQuit:   onQuit,
		feeling:  metadata.Feeling,
		status:   "Press s to start",
	}
}

// HandleKey dispatches a key event and reports whether it was consumed
func (c *Controller) HandleKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyEscape:
		c.Quit()
	case tcell.KeyRight:
		c.MoveDrag(DragStep)
	case tcell.KeyLeft:
		c.MoveDrag(-DragStep)
	case tcell.KeyEnter:
		c.ReleaseDrag()
	case tcell.KeyUp:
		c.VolumeButton()
	case tcell.KeyDown:
		c.VolumeButton()
	case tcell.KeyRune:
		return c.handleRune(event.Rune())
	default:
		return false
	}
	return true
}

func (c *Controller) handleRune(r rune) bool {
	switch r {
	case 's':
		c.Start()
	case ' ', 'p':
		c.TogglePause()
	case 'l':
		c.Lock()
	case 'x':
		c.Complete()
	case 'd':
		c.Discard()
	case '+', '=', '-':
		c.VolumeButton()
	case 'f':
		c.CycleFeeling()
	case 'r':
		c.RetrySave()
	case 'q':
		c.Quit()
	default:
		return false
	}
	return true
}

func (c *Controller) Start() {
	c.report("start", c.engine.Start(), "Get ready")
}

// TogglePause pauses a running session and resumes a paused one
func (c *Controller) TogglePause() {
	phase := c.engine.View().Lifecycle.Phase
	switch phase {
	case session.PhasePaused:
		c.report("resume", c.engine.Resume(), "Resumed")
	default:
		c.report("pause", c.engine.Pause(), "Paused")
	}
}

func (c *Controller) Lock() {
	c.setDrag(0)
	c.report("lock", c.engine.Lock(), "Locked: hold -> and release with Enter, or press a volume key 4 times")
}

// MoveDrag moves the unlock slider by delta, clamped to the track
func (c *Controller) MoveDrag(delta float64) {
	c.mu.Lock()
	c.drag = math.Max(0, math.Min(1, c.drag+delta))
	c.mu.Unlock()
}

// DragOffset returns the slider position in [0, 1]
func (c *Controller) DragOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag
}

func (c *Controller) setDrag(v float64) {
	c.mu.Lock()
	c.drag = v
	c.mu.Unlock()
}

// ReleaseDrag lets go of the slider. It snaps back either way.
func (c *Controller) ReleaseDrag() {
	offset := c.DragOffset()
	c.setDrag(0)
	unlocked, err := c.engine.DragUnlock(offset)
	switch {
	case err != nil:
		c.report("unlock", err, "")
	case unlocked:
		c.setStatus("Unlocked")
	default:
		c.setStatus(fmt.Sprintf("Drag released at %.0f%%, keep going", offset*100))
	}
}

func (c *Controller) VolumeButton() {
	unlocked, err := c.engine.VolumeButton()
	switch {
	case err != nil:
		c.report("volume", err, "")
	case unlocked:
		c.setStatus("Unlocked")
	}
}

// CycleFeeling picks the next feeling rating for the finished session
func (c *Controller) CycleFeeling() {
	c.mu.Lock()
	next := calc.AllFeelings[0].Feeling
	for i, info := range calc.AllFeelings {
		if info.Feeling == c.feeling && i+1 < len(calc.AllFeelings) {
			next = calc.AllFeelings[i+1].Feeling
		}
	}
	c.feeling = next
	c.mu.Unlock()

	info, _ := calc.GetFeelingInfo(next)
	c.setStatus("Feeling: " + info.DisplayName)
}

// Feeling returns the rating completed sessions are saved with
func (c *Controller) Feeling() calc.Feeling {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeling
}

func (c *Controller) Complete() {
	meta := c.metadata
	meta.Feeling = c.Feeling()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	record, err := c.engine.Complete(ctx, meta)

	var persistErr *session.PersistError
	if errors.As(err, &persistErr) {
		c.setStatus(fmt.Sprintf("Finished, but saving failed: %v (press r to retry)", persistErr.Err))
		c.logger.Printf("Controller: %v", err)
		return
	}
	if err != nil {
		c.report("finish", err, "")
		return
	}
	snap := record.Snapshot
	c.setStatus(fmt.Sprintf("Finished: %s in %s, saved",
		FormatDistance(snap.DistanceMeters, record.Units), FormatElapsed(snap.ElapsedSeconds)))
}

func (c *Controller) RetrySave() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	c.report("save", c.engine.RetryPersist(ctx), "Saved")
}

// Discard ends the session without saving. A locked screen refuses it here
// so a stray key cannot throw the session away.
func (c *Controller) Discard() {
	if c.engine.View().Lifecycle.Phase == session.PhaseLocked {
		c.report("discard", fmt.Errorf("discard: %w", session.ErrLocked), "")
		return
	}
	c.report("discard", c.engine.Discard(), "Discarded")
}

func (c *Controller) Quit() {
	c.onQuit()
}

// Status returns the last status line
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// report turns a command result into the status line
func (c *Controller) report(op string, err error, ok string) {
	switch {
	case err == nil:
		c.setStatus(ok)
	case errors.Is(err, session.ErrLocked):
		c.setStatus("Screen is locked")
	case errors.Is(err, session.ErrAlreadyFinalized):
		c.setStatus("Session is over")
	case errors.Is(err, session.ErrEmptySession):
		c.setStatus("Nothing recorded yet")
	default:
		c.setStatus(fmt.Sprintf("Cannot %s now", op))
	}
	if err != nil {
		c.logger.Printf("Controller: %s: %v", op, err)
	}
}

// Package session is the live session engine: lifecycle state machine,
// metrics aggregator and screen-lock guard behind a single-writer event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/events"
	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
	"github.com/lowaak/cardio-tracker/internal/sensors"
)

// ErrEngineShutdown is returned by commands sent after Shutdown
var ErrEngineShutdown = errors.New("session engine shut down")

const (
	DefaultCountdownTicks    = 3
	DefaultMaxAccuracyMeters = 20.0

	// MaxTickInterval is the longest tick the aggregator accepts. A longer
	// gap between wall-clock ticks is dropped as a clock jump.
	MaxTickInterval = time.Duration(maxTickSeconds) * time.Second

	inboxSize         = 256
	healthSyncTimeout = 30 * time.Second
)

// Config is read once when the engine is created
type Config struct {
	SessionID      string
	Units          calc.UnitSystem
	Activity       calc.ActivityType
	Indoor         bool
	Profile        calc.UserProfile
	CountdownTicks int
	// TickInterval drives the internal timer; zero leaves ticking to SubmitTick
	TickInterval      time.Duration
	MaxAccuracyMeters float64
	Lock              LockPolicy
	Clock             func() time.Time
}

// View is what observers see after every applied event. It is never
// modified once published.
type View struct {
	SessionID     string
	Lifecycle     Lifecycle
	Snapshot      Snapshot
	Units         calc.UnitSystem
	Activity      calc.ActivityType
	Indoor        bool
	HeartRate     sensors.HeartRateStatus
	GPS           sensors.AccuracyClass
	VolumePresses int
	Diagnostics   Diagnostics
	UpdatedAt     time.Time
}

type eventKind int

const (
	evTick eventKind = iota
	evLocation
	evHeartRate
	evHeartRateStatus
	evCommand
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdLock
	cmdDragUnlock
	cmdVolume
	cmdComplete
	cmdDiscard
	cmdFlush
)

type commandResult struct {
	unlocked bool
	record   FinalRecord
	err      error
}

type sessionEvent struct {
	kind     eventKind
	delta    float64
	location sensors.LocationDelta
	bpm      int
	hrStatus sensors.HeartRateStatus
	cmd      commandKind
	offset   float64
	metadata Metadata
	reply    chan commandResult
}

// Engine serializes every input of one session through a single goroutine.
// Producers and the UI may call it from any goroutine.
type Engine struct {
	logger     *log.Logger
	config     Config
	clock      func() time.Time
	persister  Persister
	healthSync HealthSync

	// owned by the loop goroutine
	machine   *Machine
	agg       *Aggregator
	guard     *LockGuard
	hrStatus  sensors.HeartRateStatus
	gps       sensors.AccuracyClass
	startedAt time.Time
	lastTick  time.Time
	ticker    *time.Ticker

	view      atomic.Pointer[View]
	viewEvent *events.ChannelEvent[View]

	mu               sync.Mutex
	producers        []Producer
	producersStopped bool
	final            *FinalRecord
	persisted        bool
	persistMu        sync.Mutex

	inbox             chan sessionEvent
	doneChan          chan struct{}
	shutdownOnce      sync.Once
	stopProducersOnce sync.Once
	wg                sync.WaitGroup
}

// NewEngine creates an Armed session and starts its event loop. healthSync
// may be nil.
func NewEngine(config Config, persister Persister, healthSync HealthSync, logger *log.Logger) (*Engine, error) {
	if persister == nil {
		panic("Engine: persister cannot be nil")
	}
	if logger == nil {
		panic("Engine: logger cannot be nil")
	}
	if err := config.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if config.TickInterval < 0 || config.TickInterval > MaxTickInterval {
		return nil, fmt.Errorf("new session: tick interval %s outside 0..%s", config.TickInterval, MaxTickInterval)
	}

	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}
	if !config.Units.Valid() {
		config.Units = calc.UnitsMetric
	}
	if _, ok := calc.GetActivityTypeInfo(config.Activity); !ok {
		config.Activity = calc.ActivityRunning
	}
	if config.CountdownTicks < 0 {
		config.CountdownTicks = 0
	}
	if config.MaxAccuracyMeters <= 0 {
		config.MaxAccuracyMeters = DefaultMaxAccuracyMeters
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	e := &Engine{
		logger:     logger,
		config:     config,
		clock:      config.Clock,
		persister:  persister,
		healthSync: healthSync,
		viewEvent:  events.NewChannelEvent[View](true),
		inbox:      make(chan sessionEvent, inboxSize),
		doneChan:   make(chan struct{}),
	}
	e.machine = NewMachine(config.CountdownTicks)
	e.agg = NewAggregator(AggregatorConfig{
		Units:             config.Units,
		Activity:          config.Activity,
		WeightKg:          config.Profile.WeightKg,
		Age:               config.Profile.Age,
		MaxAccuracyMeters: config.MaxAccuracyMeters,
	}, e.machine, logger)
	e.guard = NewLockGuard(config.Lock)
	e.publish()

	logger.Printf("Session: %s armed (%s, %s)", config.SessionID, config.Activity, config.Units)
	go_func_utils.SafeGoWG(logger, &e.wg, e.run)
	return e, nil
}

// ID returns the session identifier
func (e *Engine) ID() string {
	return e.config.SessionID
}

// View returns the most recently published view
func (e *Engine) View() View {
	return *e.view.Load()
}

// ListenToView registers a channel that receives every published view.
// The latest view is replayed on registration.
func (e *Engine) ListenToView(ch chan<- View) func() {
	return e.viewEvent.Listen(ch)
}

// RegisterProducer adds a sensor source stopped when the session ends.
// A producer registered after the end is stopped immediately.
func (e *Engine) RegisterProducer(p Producer) {
	if p == nil {
		panic("Engine: producer cannot be nil")
	}
	e.mu.Lock()
	if e.producersStopped {
		e.mu.Unlock()
		p.Stop()
		return
	}
	e.producers = append(e.producers, p)
	e.mu.Unlock()
}

// SubmitTick feeds elapsed wall-clock seconds
func (e *Engine) SubmitTick(deltaSeconds float64) {
	e.submit(sessionEvent{kind: evTick, delta: deltaSeconds})
}

// SubmitLocation feeds a location delta
func (e *Engine) SubmitLocation(delta sensors.LocationDelta) {
	e.submit(sessionEvent{kind: evLocation, location: delta})
}

// SubmitHeartRate feeds a heart rate sample
func (e *Engine) SubmitHeartRate(bpm int) {
	e.submit(sessionEvent{kind: evHeartRate, bpm: bpm})
}

// SubmitHeartRateStatus records the strap status shown alongside the snapshot
func (e *Engine) SubmitHeartRateStatus(status sensors.HeartRateStatus) {
	e.submit(sessionEvent{kind: evHeartRateStatus, hrStatus: status})
}

func (e *Engine) submit(ev sessionEvent) {
	select {
	case e.inbox <- ev:
	case <-e.doneChan:
	}
}

func (e *Engine) send(ev sessionEvent) commandResult {
	ev.kind = evCommand
	ev.reply = make(chan commandResult, 1)
	select {
	case e.inbox <- ev:
	case <-e.doneChan:
		return commandResult{err: ErrEngineShutdown}
	}
	select {
	case res := <-ev.reply:
		return res
	case <-e.doneChan:
		return commandResult{err: ErrEngineShutdown}
	}
}

// Start begins the countdown
func (e *Engine) Start() error {
	return e.send(sessionEvent{cmd: cmdStart}).err
}

// Pause stops elapsed time and distance accrual
func (e *Engine) Pause() error {
	return e.send(sessionEvent{cmd: cmdPause}).err
}

func (e *Engine) Resume() error {
	return e.send(sessionEvent{cmd: cmdResume}).err
}

// Lock rejects user commands until an unlock gesture or button pattern
func (e *Engine) Lock() error {
	return e.send(sessionEvent{cmd: cmdLock}).err
}

// DragUnlock evaluates a released drag. offset is in the units of the
// configured track length.
func (e *Engine) DragUnlock(offset float64) (bool, error) {
	res := e.send(sessionEvent{cmd: cmdDragUnlock, offset: offset})
	return res.unlocked, res.err
}

// VolumeButton counts one hardware volume change. Outside of Locked it is
// ignored.
func (e *Engine) VolumeButton() (bool, error) {
	res := e.send(sessionEvent{cmd: cmdVolume})
	return res.unlocked, res.err
}

// Flush returns once every event submitted before it has been applied
func (e *Engine) Flush() error {
	return e.send(sessionEvent{cmd: cmdFlush}).err
}

// Discard ends the session without saving and stops every producer
func (e *Engine) Discard() error {
	if err := e.send(sessionEvent{cmd: cmdDiscard}).err; err != nil {
		return err
	}
	e.stopProducers()
	return nil
}

// Complete ends the session, stops every producer and hands the record to
// the persister. A persister failure returns the record with a
// *PersistError; the session stays Completed.
func (e *Engine) Complete(ctx context.Context, metadata Metadata) (FinalRecord, error) {
	res := e.send(sessionEvent{cmd: cmdComplete, metadata: metadata})
	if res.err != nil {
		return FinalRecord{}, res.err
	}
	e.stopProducers()
	e.startHealthSync(res.record)
	if err := e.persist(ctx, res.record); err != nil {
		return res.record, err
	}
	return res.record, nil
}

// RetryPersist saves the final record again after a failed hand-off. It
// does nothing once a save has succeeded.
func (e *Engine) RetryPersist(ctx context.Context) error {
	record, ok := e.FinalRecord()
	if !ok {
		return fmt.Errorf("retry persist: session not completed: %w", ErrInvalidTransition)
	}
	return e.persist(ctx, record)
}

// FinalRecord returns the record of a completed session
func (e *Engine) FinalRecord() (FinalRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.final == nil {
		return FinalRecord{}, false
	}
	return *e.final, true
}

// Persisted reports whether the final record was saved
func (e *Engine) Persisted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persisted
}

func (e *Engine) persist(ctx context.Context, record FinalRecord) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if e.Persisted() {
		return nil
	}
	if err := e.persister.Save(ctx, record); err != nil {
		e.logger.Printf("Session: failed to persist %s: %v", record.SessionID, err)
		return &PersistError{SessionID: record.SessionID, Err: err}
	}

	e.mu.Lock()
	e.persisted = true
	e.mu.Unlock()
	e.logger.Printf("Session: persisted %s", record.SessionID)
	return nil
}

func (e *Engine) startHealthSync(record FinalRecord) {
	if e.healthSync == nil {
		return
	}
	go_func_utils.SafeGoWG(e.logger, &e.wg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), healthSyncTimeout)
		defer cancel()
		if err := e.healthSync.Sync(ctx, record); err != nil {
			e.logger.Printf("Session: health sync of %s failed: %v", record.SessionID, err)
		}
	})
}

func (e *Engine) stopProducers() {
	e.stopProducersOnce.Do(func() {
		e.mu.Lock()
		producers := e.producers
		e.producers = nil
		e.producersStopped = true
		e.mu.Unlock()

		for _, p := range producers {
			p.Stop()
		}
		e.logger.Printf("Session: stopped %d producer(s)", len(producers))
	})
}

// Shutdown stops the event loop and every producer and waits for all
// engine goroutines. Safe to call multiple times.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.logger.Printf("Session: shutting down")
		e.stopProducers()
		close(e.doneChan)
		e.wg.Wait()
		e.logger.Printf("Session: shutdown complete")
	})
}

// --- loop goroutine ---

func (e *Engine) run() {
	defer e.stopTicker()
	for {
		var tickC <-chan time.Time
		if e.ticker != nil {
			tickC = e.ticker.C
		}

		select {
		case <-e.doneChan:
			return
		case ev := <-e.inbox:
			e.apply(ev)
		case <-tickC:
			now := e.clock()
			delta := now.Sub(e.lastTick).Seconds()
			e.lastTick = now
			e.applyTick(delta)
		}
		e.publish()
	}
}

func (e *Engine) apply(ev sessionEvent) {
	switch ev.kind {
	case evTick:
		e.applyTick(ev.delta)
	case evLocation:
		e.gps = ev.location.Accuracy
		e.agg.OnLocationDelta(ev.location.DistanceMeters, ev.location.SpeedMps, ev.location.HorizontalAccuracy)
	case evHeartRate:
		e.agg.OnHeartRateSample(ev.bpm)
	case evHeartRateStatus:
		e.hrStatus = ev.hrStatus
	case evCommand:
		ev.reply <- e.applyCommand(ev)
	}
}

func (e *Engine) applyTick(delta float64) {
	state := e.machine.State()
	counting := state.Phase == PhaseCountingDown ||
		(state.Phase == PhaseLocked && state.Prior == PhaseCountingDown)
	if !counting {
		e.agg.OnTick(delta)
		return
	}
	started, err := e.machine.CountdownTick()
	if err != nil {
		e.logger.Printf("Session: countdown tick: %v", err)
		return
	}
	if started {
		e.logger.Printf("Session: countdown finished, recording")
	}
}

func (e *Engine) applyCommand(ev sessionEvent) commandResult {
	switch ev.cmd {
	case cmdFlush:
		return commandResult{}
	case cmdStart:
		return commandResult{err: e.applyStart()}
	case cmdPause:
		return commandResult{err: e.guarded("pause", e.machine.Pause)}
	case cmdResume:
		return commandResult{err: e.guarded("resume", e.machine.Resume)}
	case cmdLock:
		err := e.guarded("lock", e.machine.Lock)
		if err == nil {
			e.guard.Reset()
		}
		return commandResult{err: err}
	case cmdDragUnlock:
		return e.applyDragUnlock(ev.offset)
	case cmdVolume:
		return e.applyVolume()
	case cmdComplete:
		return e.applyComplete(ev.metadata)
	case cmdDiscard:
		// the lock does not gate discard; only terminal phases refuse it
		if err := e.machine.Discard(); err != nil {
			return commandResult{err: err}
		}
		e.guard.Reset()
		e.stopTicker()
		e.logger.Printf("Session: %s discarded", e.config.SessionID)
		return commandResult{}
	default:
		return commandResult{err: fmt.Errorf("unknown command %d", ev.cmd)}
	}
}

// guarded runs a machine transition behind the lock guard
func (e *Engine) guarded(op string, transition func() error) error {
	if err := e.guard.Admit(e.machine.State(), op); err != nil {
		return err
	}
	if err := transition(); err != nil {
		return err
	}
	e.logger.Printf("Session: %s -> %s", op, e.machine.State())
	return nil
}

func (e *Engine) applyStart() error {
	if err := e.guarded("start", e.machine.Start); err != nil {
		return err
	}
	e.startedAt = e.clock()
	e.lastTick = e.startedAt
	if e.config.TickInterval > 0 {
		e.ticker = time.NewTicker(e.config.TickInterval)
	}
	return nil
}

func (e *Engine) applyDragUnlock(offset float64) commandResult {
	state := e.machine.State()
	if state.Terminal() {
		return commandResult{err: fmt.Errorf("drag unlock: %w", ErrAlreadyFinalized)}
	}
	if state.Phase != PhaseLocked {
		return commandResult{err: fmt.Errorf("drag unlock from %s: %w", state, ErrInvalidTransition)}
	}
	if !e.guard.EvaluateDrag(offset) {
		return commandResult{}
	}
	return e.unlock("drag")
}

func (e *Engine) applyVolume() commandResult {
	state := e.machine.State()
	if state.Terminal() {
		return commandResult{err: fmt.Errorf("volume unlock: %w", ErrAlreadyFinalized)}
	}
	if state.Phase != PhaseLocked {
		e.guard.Reset()
		return commandResult{}
	}
	if !e.guard.RegisterVolumeChange(e.clock()) {
		return commandResult{}
	}
	return e.unlock("volume buttons")
}

func (e *Engine) unlock(path string) commandResult {
	if err := e.machine.Unlock(); err != nil {
		return commandResult{err: err}
	}
	e.guard.Reset()
	e.logger.Printf("Session: unlocked by %s -> %s", path, e.machine.State())
	return commandResult{unlocked: true}
}

func (e *Engine) applyComplete(metadata Metadata) commandResult {
	if err := e.guard.Admit(e.machine.State(), "complete"); err != nil {
		return commandResult{err: err}
	}
	if err := e.machine.Complete(e.agg.Snapshot()); err != nil {
		return commandResult{err: err}
	}
	e.stopTicker()

	if metadata.Activity == "" {
		metadata.Activity = e.config.Activity
	}
	record := FinalRecord{
		SessionID:   e.config.SessionID,
		StartedAt:   e.startedAt,
		CompletedAt: e.clock(),
		Units:       e.config.Units,
		Profile:     e.config.Profile,
		Snapshot:    e.machine.State().Final.Clone(),
		Metadata:    metadata,
		Diagnostics: e.agg.Diagnostics(),
	}

	e.mu.Lock()
	kept := record
	e.final = &kept
	e.mu.Unlock()

	e.logger.Printf("Session: %s completed, %.0f m in %.0f s, %d kcal, %d split(s)",
		record.SessionID, record.Snapshot.DistanceMeters, record.Snapshot.ElapsedSeconds,
		record.Snapshot.Calories, len(record.Snapshot.Splits))
	return commandResult{record: record}
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) publish() {
	v := &View{
		SessionID:     e.config.SessionID,
		Lifecycle:     e.machine.State(),
		Snapshot:      e.agg.Snapshot(),
		Units:         e.config.Units,
		Activity:      e.config.Activity,
		Indoor:        e.config.Indoor,
		HeartRate:     e.hrStatus,
		GPS:           e.gps,
		VolumePresses: e.guard.PendingPresses(),
		Diagnostics:   e.agg.Diagnostics(),
		UpdatedAt:     e.clock(),
	}
	e.view.Store(v)
	e.viewEvent.Notify(*v)
}

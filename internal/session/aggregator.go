package session

import (
	"log"
	"math"

	"github.com/lowaak/cardio-tracker/internal/calc"
)

const (
	minPlausibleBpm = 30
	maxPlausibleBpm = 250
	// larger ticks are treated as clock jumps
	maxTickSeconds = 60.0
)

// Split is recorded once per completed distance unit. Elapsed, pace and bpm
// are interpolated to the moment the marker was crossed.
type Split struct {
	MarkerMeters    float64
	ElapsedSeconds  float64
	DurationSeconds float64
	Pace            calc.Pace
	HeartRate       int
	HasHeartRate    bool
}

// Snapshot is the running record of a session
type Snapshot struct {
	ElapsedSeconds float64
	DistanceMeters float64
	SpeedMps       float64
	Pace           calc.Pace
	Calories       int
	HeartRate      int
	HasHeartRate   bool
	Zone           calc.HeartRateZone
	Splits         []Split
}

// Clone returns a copy that shares no memory with s
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Splits != nil {
		c.Splits = make([]Split, len(s.Splits))
		copy(c.Splits, s.Splits)
	}
	return c
}

// AveragePace is the pace over the whole session
func (s Snapshot) AveragePace() calc.Pace {
	return calc.PaceFromDistance(s.DistanceMeters, s.ElapsedSeconds)
}

// AverageSpeedKmh is the speed over the whole session
func (s Snapshot) AverageSpeedKmh() float64 {
	return calc.SpeedKmh(s.DistanceMeters, s.ElapsedSeconds)
}

// Diagnostics counts discarded inputs per reason
type Diagnostics struct {
	LowAccuracy          int
	ImplausibleHeartRate int
	InvalidTick          int
	InvalidDelta         int
	Inactive             int
}

// Total returns the number of discarded inputs
func (d Diagnostics) Total() int {
	return d.LowAccuracy + d.ImplausibleHeartRate + d.InvalidTick + d.InvalidDelta + d.Inactive
}

// recordingGate tells the aggregator which inputs apply
type recordingGate interface {
	Recording() bool
	Terminal() bool
}

// AggregatorConfig is fixed for the lifetime of a session
type AggregatorConfig struct {
	Units             calc.UnitSystem
	Activity          calc.ActivityType
	WeightKg          float64
	Age               int
	MaxAccuracyMeters float64
}

// sample is the state at the last applied location delta, the left end of
// split interpolation
type sample struct {
	elapsed  float64
	distance float64
	speed    float64
	bpm      int
	hasBpm   bool
}

// Aggregator folds ticks, location deltas and heart rate samples into a
// Snapshot. It never fails on sensor input: bad samples are counted and
// dropped. Not safe for concurrent use.
type Aggregator struct {
	logger     *log.Logger
	config     AggregatorConfig
	gate       recordingGate
	splitUnit  float64
	snap       Snapshot
	calories   float64
	prev       sample
	nextMarker float64
	diag       Diagnostics
}

func NewAggregator(config AggregatorConfig, gate recordingGate, logger *log.Logger) *Aggregator {
	if gate == nil {
		panic("Aggregator: gate cannot be nil")
	}
	if logger == nil {
		panic("Aggregator: logger cannot be nil")
	}
	if !config.Units.Valid() {
		config.Units = calc.UnitsMetric
	}
	unit := config.Units.SplitDistanceMeters()
	return &Aggregator{
		logger:     logger,
		config:     config,
		gate:       gate,
		splitUnit:  unit,
		nextMarker: unit,
		snap:       Snapshot{Splits: []Split{}},
	}
}

// Snapshot returns a copy of the current snapshot
func (a *Aggregator) Snapshot() Snapshot {
	return a.snap.Clone()
}

// Diagnostics returns the discard counters
func (a *Aggregator) Diagnostics() Diagnostics {
	return a.diag
}

// OnTick advances elapsed time and accrues calories while recording
func (a *Aggregator) OnTick(deltaSeconds float64) {
	if math.IsNaN(deltaSeconds) || deltaSeconds <= 0 || deltaSeconds > maxTickSeconds {
		a.diag.InvalidTick++
		a.logger.Printf("Aggregator: dropping tick of %v s", deltaSeconds)
		return
	}
	if !a.gate.Recording() {
		a.diag.Inactive++
		return
	}

	a.snap.ElapsedSeconds += deltaSeconds

	// Calories accrue per tick at the current speed band so the total
	// never goes down when the speed does.
	speedKmh := calc.MpsToKmh(a.snap.SpeedMps)
	if speedKmh <= 0 {
		speedKmh = a.snap.AverageSpeedKmh()
	}
	a.calories += calc.Calories(a.config.Activity, speedKmh, a.config.WeightKg, deltaSeconds/3600)
	a.snap.Calories = int(math.Floor(a.calories))

	if a.snap.HasHeartRate {
		a.snap.Zone = calc.ZoneForHeartRate(a.snap.HeartRate, a.config.Age)
	}
}

// OnLocationDelta adds distance, updates speed and pace and records splits
// while recording. Deltas less accurate than the configured threshold are
// dropped.
func (a *Aggregator) OnLocationDelta(distanceMeters, speedMps, horizontalAccuracy float64) {
	if !finite(distanceMeters) || !finite(speedMps) || !finite(horizontalAccuracy) ||
		distanceMeters < 0 || horizontalAccuracy < 0 {
		a.diag.InvalidDelta++
		a.logger.Printf("Aggregator: dropping invalid delta d=%v v=%v acc=%v", distanceMeters, speedMps, horizontalAccuracy)
		return
	}
	if !a.gate.Recording() {
		a.diag.Inactive++
		return
	}
	if horizontalAccuracy > a.config.MaxAccuracyMeters {
		a.diag.LowAccuracy++
		return
	}
	if speedMps < 0 {
		speedMps = a.snap.SpeedMps
	}

	cur := sample{
		elapsed:  a.snap.ElapsedSeconds,
		distance: a.snap.DistanceMeters + distanceMeters,
		speed:    speedMps,
		bpm:      a.snap.HeartRate,
		hasBpm:   a.snap.HasHeartRate,
	}

	for cur.distance >= a.nextMarker && cur.distance > a.prev.distance {
		a.recordSplit(a.nextMarker, cur)
		a.nextMarker += a.splitUnit
	}

	a.snap.DistanceMeters = cur.distance
	a.snap.SpeedMps = speedMps
	a.snap.Pace = calc.PaceFromSpeed(speedMps)
	a.prev = cur
}

func (a *Aggregator) recordSplit(marker float64, cur sample) {
	frac := (marker - a.prev.distance) / (cur.distance - a.prev.distance)
	elapsed := lerp(a.prev.elapsed, cur.elapsed, frac)

	var lastElapsed float64
	if n := len(a.snap.Splits); n > 0 {
		lastElapsed = a.snap.Splits[n-1].ElapsedSeconds
	}

	split := Split{
		MarkerMeters:    marker,
		ElapsedSeconds:  elapsed,
		DurationSeconds: elapsed - lastElapsed,
		Pace:            calc.PaceFromSpeed(lerp(a.prev.speed, cur.speed, frac)),
	}
	if !split.Pace.Valid {
		split.Pace = calc.PaceFromDistance(a.splitUnit, split.DurationSeconds)
	}

	switch {
	case a.prev.hasBpm && cur.hasBpm:
		split.HeartRate = int(math.Round(lerp(float64(a.prev.bpm), float64(cur.bpm), frac)))
		split.HasHeartRate = true
	case cur.hasBpm:
		split.HeartRate = cur.bpm
		split.HasHeartRate = true
	}

	a.snap.Splits = append(a.snap.Splits, split)
	a.logger.Printf("Aggregator: split %d at %.0f m, %.1f s, pace %s",
		len(a.snap.Splits), marker, elapsed, split.Pace.Format(a.config.Units))
}

// OnHeartRateSample updates the current heart rate in any non-terminal phase
func (a *Aggregator) OnHeartRateSample(bpm int) {
	if a.gate.Terminal() {
		a.diag.Inactive++
		return
	}
	if bpm < minPlausibleBpm || bpm > maxPlausibleBpm {
		a.diag.ImplausibleHeartRate++
		return
	}
	a.snap.HeartRate = bpm
	a.snap.HasHeartRate = true
	a.snap.Zone = calc.ZoneForHeartRate(bpm, a.config.Age)
}

func lerp(from, to, frac float64) float64 {
	return from + (to-from)*frac
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package session

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

type fakeGate struct {
	recording bool
	terminal  bool
}

func (g *fakeGate) Recording() bool { return g.recording }
func (g *fakeGate) Terminal() bool  { return g.terminal }

func newTestAggregator(units calc.UnitSystem) (*Aggregator, *fakeGate) {
	gate := &fakeGate{recording: true}
	agg := NewAggregator(AggregatorConfig{
		Units:             units,
		Activity:          calc.ActivityRunning,
		WeightKg:          70,
		Age:               30,
		MaxAccuracyMeters: 20,
	}, gate, newTestLogger())
	return agg, gate
}

// tickFor advances the aggregator by seconds in one-second ticks
func tickFor(agg *Aggregator, seconds int) {
	for i := 0; i < seconds; i++ {
		agg.OnTick(1)
	}
}

func TestAggregator_PaceAndSpeed(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	tickFor(agg, 300)
	agg.OnLocationDelta(1000, 1000.0/300, 5)

	snap := agg.Snapshot()
	assert.Equal(t, 300.0, snap.ElapsedSeconds)
	assert.Equal(t, 1000.0, snap.DistanceMeters)
	assert.InDelta(t, 300, snap.Pace.SecondsPerKm, 1e-9)
	assert.Equal(t, "5:00", snap.Pace.Format(calc.UnitsMetric))
	assert.InDelta(t, 12, snap.AverageSpeedKmh(), 1e-9)
	assert.InDelta(t, 300, snap.AveragePace().SecondsPerKm, 1e-9)
}

func TestAggregator_NoPaceBeforeMovement(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	agg.OnTick(5)
	snap := agg.Snapshot()
	assert.False(t, snap.Pace.Valid)
	assert.False(t, snap.AveragePace().Valid)
	assert.Equal(t, calc.PaceUnavailable, snap.Pace.Format(calc.UnitsMetric))
	assert.NotNil(t, snap.Splits)
	assert.Empty(t, snap.Splits)
}

func TestAggregator_SplitInterpolation(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	tickFor(agg, 300)
	agg.OnLocationDelta(1200, 4, 5)

	snap := agg.Snapshot()
	require.Len(t, snap.Splits, 1)
	split := snap.Splits[0]
	assert.Equal(t, 1000.0, split.MarkerMeters)
	assert.InDelta(t, 250, split.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 250, split.DurationSeconds, 1e-9)
	assert.True(t, split.Pace.Valid)
}

func TestAggregator_OneSplitPerCrossedBoundary(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	agg.OnTick(30)
	agg.OnLocationDelta(999, 3, 5)
	assert.Empty(t, agg.Snapshot().Splits)

	agg.OnTick(30)
	agg.OnLocationDelta(1, 3, 5)
	require.Len(t, agg.Snapshot().Splits, 1)

	// a single large delta crosses two markers
	agg.OnTick(30)
	agg.OnLocationDelta(2100, 3, 5)
	splits := agg.Snapshot().Splits
	require.Len(t, splits, 3)
	assert.Equal(t, []float64{1000, 2000, 3000}, []float64{
		splits[0].MarkerMeters, splits[1].MarkerMeters, splits[2].MarkerMeters,
	})
	assert.Less(t, splits[1].ElapsedSeconds, splits[2].ElapsedSeconds)
}

func TestAggregator_ImperialSplits(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsImperial)
	agg.OnTick(60)
	agg.OnLocationDelta(1500, 3, 5)
	assert.Empty(t, agg.Snapshot().Splits)

	agg.OnTick(60)
	agg.OnLocationDelta(200, 3, 5)
	splits := agg.Snapshot().Splits
	require.Len(t, splits, 1)
	assert.InDelta(t, calc.MetersPerMile, splits[0].MarkerMeters, 1e-9)
}

func TestAggregator_SplitHeartRate(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	agg.OnHeartRateSample(140)
	tickFor(agg, 100)
	agg.OnLocationDelta(500, 5, 5)
	agg.OnHeartRateSample(160)
	tickFor(agg, 100)
	agg.OnLocationDelta(1000, 5, 5)

	snap := agg.Snapshot()
	assert.Equal(t, 200.0, snap.ElapsedSeconds)
	assert.Zero(t, agg.Diagnostics().InvalidTick)
	splits := snap.Splits
	require.Len(t, splits, 1)
	assert.InDelta(t, 150, splits[0].ElapsedSeconds, 1e-9)
	assert.InDelta(t, 150, splits[0].DurationSeconds, 1e-9)
	assert.True(t, splits[0].HasHeartRate)
	assert.Equal(t, 150, splits[0].HeartRate)
}

func TestAggregator_MonotonicAndCaloriesNeverDecrease(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	speeds := []float64{4, 4, 1, 0, 0.5, 3.5, 2, 6}

	var prev Snapshot
	for _, v := range speeds {
		agg.OnTick(10)
		agg.OnLocationDelta(v*10, v, 5)
		snap := agg.Snapshot()
		assert.GreaterOrEqual(t, snap.ElapsedSeconds, prev.ElapsedSeconds)
		assert.GreaterOrEqual(t, snap.DistanceMeters, prev.DistanceMeters)
		assert.GreaterOrEqual(t, snap.Calories, prev.Calories)
		assert.GreaterOrEqual(t, len(snap.Splits), len(prev.Splits))
		prev = snap
	}
	assert.Greater(t, prev.Calories, 0)
}

func TestAggregator_PausedInputsAreDropped(t *testing.T) {
	run := func(withPause bool) Snapshot {
		agg, gate := newTestAggregator(calc.UnitsMetric)
		for i := 0; i < 20; i++ {
			agg.OnTick(1)
			agg.OnLocationDelta(3, 3, 5)
		}
		if withPause {
			gate.recording = false
			for i := 0; i < 30; i++ {
				agg.OnTick(1)
				agg.OnLocationDelta(50, 3, 5)
			}
			gate.recording = true
		}
		for i := 0; i < 20; i++ {
			agg.OnTick(1)
			agg.OnLocationDelta(3, 3, 5)
		}
		return agg.Snapshot()
	}

	assert.Equal(t, run(false), run(true))
}

func TestAggregator_Diagnostics(t *testing.T) {
	agg, gate := newTestAggregator(calc.UnitsMetric)

	agg.OnTick(0)
	agg.OnTick(-1)
	agg.OnTick(math.NaN())
	agg.OnTick(61)
	agg.OnLocationDelta(-5, 3, 5)
	agg.OnLocationDelta(math.Inf(1), 3, 5)
	agg.OnLocationDelta(10, 3, 25)
	agg.OnHeartRateSample(20)
	agg.OnHeartRateSample(260)
	gate.recording = false
	agg.OnTick(1)
	agg.OnLocationDelta(10, 3, 5)

	d := agg.Diagnostics()
	assert.Equal(t, 4, d.InvalidTick)
	assert.Equal(t, 2, d.InvalidDelta)
	assert.Equal(t, 1, d.LowAccuracy)
	assert.Equal(t, 2, d.ImplausibleHeartRate)
	assert.Equal(t, 2, d.Inactive)
	assert.Equal(t, 11, d.Total())

	snap := agg.Snapshot()
	assert.Zero(t, snap.ElapsedSeconds)
	assert.Zero(t, snap.DistanceMeters)
	assert.False(t, snap.HasHeartRate)
}

func TestAggregator_UnknownSpeedKeepsLast(t *testing.T) {
	agg, _ := newTestAggregator(calc.UnitsMetric)
	agg.OnTick(10)
	agg.OnLocationDelta(30, 3, 5)
	agg.OnTick(10)
	agg.OnLocationDelta(30, -1, 5)
	assert.Equal(t, 3.0, agg.Snapshot().SpeedMps)
}

func TestAggregator_HeartRateWhilePaused(t *testing.T) {
	agg, gate := newTestAggregator(calc.UnitsMetric)
	gate.recording = false

	agg.OnHeartRateSample(171)
	snap := agg.Snapshot()
	assert.True(t, snap.HasHeartRate)
	assert.Equal(t, 171, snap.HeartRate)
	// 171 of 190 is 90%
	assert.Equal(t, calc.Zone5, snap.Zone)

	gate.terminal = true
	agg.OnHeartRateSample(120)
	assert.Equal(t, 171, agg.Snapshot().HeartRate)
}

func TestSnapshot_CloneDoesNotAlias(t *testing.T) {
	snap := Snapshot{Splits: []Split{{MarkerMeters: 1000}}}
	c := snap.Clone()
	c.Splits[0].MarkerMeters = 1
	assert.Equal(t, 1000.0, snap.Splits[0].MarkerMeters)
}

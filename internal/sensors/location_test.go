package sensors

import (
	"bytes"
	"log"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

var t0 = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

// metersNorth returns the latitude reached by moving m meters north of lat
func metersNorth(lat, m float64) float64 {
	return lat + (m/earthRadiusMeters)*180/math.Pi
}

func TestHaversineMeters(t *testing.T) {
	assert.InDelta(t, 0, HaversineMeters(52.0, 4.0, 52.0, 4.0), 1e-9)
	// one degree of latitude
	assert.InDelta(t, 111195, HaversineMeters(0, 0, 1, 0), 1)
	// Amsterdam to Rotterdam, about 57 km
	assert.InDelta(t, 57000, HaversineMeters(52.3676, 4.9041, 51.9244, 4.4777), 1500)
	assert.InDelta(t, 100, HaversineMeters(52.0, 4.0, metersNorth(52.0, 100), 4.0), 0.01)
}

func TestClassifyAccuracy(t *testing.T) {
	tests := []struct {
		accuracy float64
		max      float64
		want     AccuracyClass
	}{
		{3, 20, AccuracyExcellent},
		{5, 20, AccuracyExcellent},
		{10, 20, AccuracyGood},
		{15, 20, AccuracyGood},
		{18, 20, AccuracyFair},
		{20, 20, AccuracyFair},
		{20.5, 20, AccuracyPoor},
		{4, 3, AccuracyPoor},
		{-1, 20, AccuracyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyAccuracy(tt.accuracy, tt.max), "accuracy %v max %v", tt.accuracy, tt.max)
	}
	assert.Equal(t, "Excellent", AccuracyExcellent.String())
	assert.Equal(t, "No signal", AccuracyUnknown.String())
}

func TestLocationSampler_DeltasFromTrustedAnchor(t *testing.T) {
	var got []LocationDelta
	s := NewLocationSampler(newTestLogger(), 20, func(d LocationDelta) { got = append(got, d) })

	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: 4, Speed: 3, Timestamp: t0})
	s.Accept(Fix{Latitude: metersNorth(52, 10), Longitude: 4, HorizontalAccuracy: 4, Speed: -1, Timestamp: t0.Add(2 * time.Second)})

	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0].DistanceMeters)
	assert.Equal(t, 3.0, got[0].SpeedMps)
	assert.InDelta(t, 10, got[1].DistanceMeters, 0.01)
	assert.InDelta(t, 5, got[1].SpeedMps, 0.01, "speed derived from distance over time")
	assert.Equal(t, AccuracyExcellent, got[1].Accuracy)
}

func TestLocationSampler_NoisyFixForwardedWithoutMovingAnchor(t *testing.T) {
	var got []LocationDelta
	s := NewLocationSampler(newTestLogger(), 20, func(d LocationDelta) { got = append(got, d) })

	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: 4, Speed: 3, Timestamp: t0})
	s.Accept(Fix{Latitude: metersNorth(52, 500), Longitude: 4, HorizontalAccuracy: 80, Speed: 3, Timestamp: t0.Add(time.Second)})
	s.Accept(Fix{Latitude: metersNorth(52, 6), Longitude: 4, HorizontalAccuracy: 4, Speed: 3, Timestamp: t0.Add(2 * time.Second)})

	require.Len(t, got, 3)
	assert.Equal(t, AccuracyPoor, got[1].Accuracy)
	assert.Equal(t, 80.0, got[1].HorizontalAccuracy)
	assert.InDelta(t, 6, got[2].DistanceMeters, 0.01, "measured from the trusted anchor")
}

func TestLocationSampler_DropsStaleAndInvalidFixes(t *testing.T) {
	var got []LocationDelta
	s := NewLocationSampler(newTestLogger(), 20, func(d LocationDelta) { got = append(got, d) })

	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0.Add(10 * time.Second)})
	s.Accept(Fix{Latitude: 52.001, Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0.Add(5 * time.Second)})
	s.Accept(Fix{Latitude: 52.001, Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0.Add(10 * time.Second)})
	s.Accept(Fix{Latitude: math.NaN(), Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0.Add(11 * time.Second)})
	s.Accept(Fix{Latitude: 95, Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0.Add(12 * time.Second)})
	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: -2, Timestamp: t0.Add(13 * time.Second)})

	assert.Len(t, got, 1)
}

func TestLocationSampler_Stop(t *testing.T) {
	var got []LocationDelta
	s := NewLocationSampler(newTestLogger(), 20, func(d LocationDelta) { got = append(got, d) })
	s.Stop()
	s.Stop()
	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: 4, Timestamp: t0})
	assert.Empty(t, got)
}

func TestLocationSampler_NilSinkPanics(t *testing.T) {
	assert.Panics(t, func() { NewLocationSampler(newTestLogger(), 20, nil) })
	assert.Panics(t, func() { NewLocationSampler(nil, 20, func(LocationDelta) {}) })
}

func TestSimulatedTrack_Next(t *testing.T) {
	cfg := SimulatedTrackConfig{
		StartLatitude:  52,
		StartLongitude: 4,
		SpeedMps:       4,
		Interval:       time.Second,
		NoisyEvery:     3,
	}
	track := NewSimulatedTrack(newTestLogger(), cfg, t0, func(Fix) {})

	var got []LocationDelta
	s := NewLocationSampler(newTestLogger(), 20, func(d LocationDelta) { got = append(got, d) })
	s.Accept(Fix{Latitude: 52, Longitude: 4, HorizontalAccuracy: 4, Speed: 0, Timestamp: t0})

	f1 := track.Next()
	f2 := track.Next()
	f3 := track.Next()
	assert.Equal(t, t0.Add(time.Second), f1.Timestamp)
	assert.Equal(t, 4.0, f1.HorizontalAccuracy)
	assert.Equal(t, 65.0, f3.HorizontalAccuracy)

	s.Accept(f1)
	s.Accept(f2)
	s.Accept(f3)
	f4 := track.Next()
	s.Accept(f4)

	require.Len(t, got, 5)
	assert.InDelta(t, 4, got[1].DistanceMeters, 0.01)
	assert.InDelta(t, 4, got[2].DistanceMeters, 0.01)
	assert.Equal(t, AccuracyPoor, got[3].Accuracy)
	assert.InDelta(t, 8, got[4].DistanceMeters, 0.01, "distance from the last trusted fix")
}

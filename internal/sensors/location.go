// Package sensors adapts raw position fixes and BLE heart-rate notifications
// into the samples consumed by the session engine.
package sensors

import (
	"log"
	"math"
	"sync"
	"time"
)

const earthRadiusMeters = 6371008.8

// AccuracyClass buckets the horizontal accuracy of a fix
type AccuracyClass int

const (
	AccuracyUnknown AccuracyClass = iota
	AccuracyExcellent
	AccuracyGood
	AccuracyFair
	AccuracyPoor
)

const (
	excellentAccuracyMeters = 5.0
	goodAccuracyMeters      = 15.0
)

func (a AccuracyClass) String() string {
	switch a {
	case AccuracyExcellent:
		return "Excellent"
	case AccuracyGood:
		return "Good"
	case AccuracyFair:
		return "Fair"
	case AccuracyPoor:
		return "Poor"
	default:
		return "No signal"
	}
}

// ClassifyAccuracy returns the class of a horizontal accuracy in meters.
// Anything worse than maxAccuracy is Poor.
func ClassifyAccuracy(accuracy, maxAccuracy float64) AccuracyClass {
	switch {
	case accuracy < 0 || math.IsNaN(accuracy):
		return AccuracyUnknown
	case accuracy <= excellentAccuracyMeters && accuracy <= maxAccuracy:
		return AccuracyExcellent
	case accuracy <= goodAccuracyMeters && accuracy <= maxAccuracy:
		return AccuracyGood
	case accuracy <= maxAccuracy:
		return AccuracyFair
	default:
		return AccuracyPoor
	}
}

// Fix is a raw position report. A negative Speed means the receiver did not
// report one.
type Fix struct {
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
	Speed              float64
	Timestamp          time.Time
}

// LocationDelta is the movement between the last trusted fix and a new one
type LocationDelta struct {
	DistanceMeters     float64
	SpeedMps           float64
	HorizontalAccuracy float64
	Accuracy           AccuracyClass
	Timestamp          time.Time
}

// HaversineMeters returns the great-circle distance between two coordinates
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// LocationSampler turns fixes into deltas measured from the last trusted fix.
// Fixes worse than the accuracy threshold are forwarded with their distance
// from the anchor but never move it.
type LocationSampler struct {
	logger      *log.Logger
	maxAccuracy float64
	sink        func(LocationDelta)

	mu      sync.Mutex
	anchor  *Fix
	stopped bool
}

func NewLocationSampler(logger *log.Logger, maxAccuracy float64, sink func(LocationDelta)) *LocationSampler {
	if logger == nil {
		panic("LocationSampler: logger cannot be nil")
	}
	if sink == nil {
		panic("LocationSampler: sink cannot be nil")
	}
	if maxAccuracy <= 0 {
		panic("LocationSampler: maxAccuracy must be > 0")
	}
	return &LocationSampler{
		logger:      logger,
		maxAccuracy: maxAccuracy,
		sink:        sink,
	}
}

// Accept processes one fix from the position provider
func (s *LocationSampler) Accept(fix Fix) {
	delta, ok := s.fold(fix)
	if ok {
		s.sink(delta)
	}
}

func (s *LocationSampler) fold(fix Fix) (LocationDelta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return LocationDelta{}, false
	}
	if !validFix(fix) {
		s.logger.Printf("LocationSampler: dropping invalid fix %+v", fix)
		return LocationDelta{}, false
	}
	if s.anchor != nil && !fix.Timestamp.After(s.anchor.Timestamp) {
		s.logger.Printf("LocationSampler: dropping stale fix at %v", fix.Timestamp)
		return LocationDelta{}, false
	}

	class := ClassifyAccuracy(fix.HorizontalAccuracy, s.maxAccuracy)
	delta := LocationDelta{
		HorizontalAccuracy: fix.HorizontalAccuracy,
		Accuracy:           class,
		Timestamp:          fix.Timestamp,
		SpeedMps:           math.Max(fix.Speed, 0),
	}
	if s.anchor != nil {
		delta.DistanceMeters = HaversineMeters(s.anchor.Latitude, s.anchor.Longitude, fix.Latitude, fix.Longitude)
	}

	if class == AccuracyPoor {
		return delta, true
	}

	if fix.Speed < 0 {
		delta.SpeedMps = 0
		if s.anchor != nil {
			if dt := fix.Timestamp.Sub(s.anchor.Timestamp).Seconds(); dt > 0 {
				delta.SpeedMps = delta.DistanceMeters / dt
			}
		}
	}
	anchor := fix
	s.anchor = &anchor
	return delta, true
}

func validFix(fix Fix) bool {
	for _, v := range []float64{fix.Latitude, fix.Longitude, fix.HorizontalAccuracy, fix.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return fix.Latitude >= -90 && fix.Latitude <= 90 &&
		fix.Longitude >= -180 && fix.Longitude <= 180 &&
		fix.HorizontalAccuracy >= 0 &&
		!fix.Timestamp.IsZero()
}

// Stop discards every later fix
func (s *LocationSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		s.logger.Println("LocationSampler: stopped")
	}
}

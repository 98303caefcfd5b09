package sensors

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
)

// SimulatedTrackConfig describes a straight synthetic route
type SimulatedTrackConfig struct {
	StartLatitude  float64
	StartLongitude float64
	HeadingDegrees float64
	SpeedMps       float64
	Interval       time.Duration
	// every NoisyEvery-th fix carries a poor accuracy and a sideways jump; 0 disables
	NoisyEvery int
}

// DefaultSimulatedTrackConfig runs north from a fixed point at 5:00 min/km
func DefaultSimulatedTrackConfig() SimulatedTrackConfig {
	return SimulatedTrackConfig{
		StartLatitude:  52.3676,
		StartLongitude: 4.9041,
		HeadingDegrees: 0,
		SpeedMps:       1000.0 / 300.0,
		Interval:       time.Second,
		NoisyEvery:     20,
	}
}

// SimulatedTrack produces fixes along a straight line for running without a
// GPS receiver
type SimulatedTrack struct {
	logger *log.Logger
	config SimulatedTrackConfig
	emit   func(Fix)

	mu       sync.Mutex
	lat      float64
	lon      float64
	count    int
	start    time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSimulatedTrack(logger *log.Logger, config SimulatedTrackConfig, start time.Time, emit func(Fix)) *SimulatedTrack {
	if logger == nil {
		panic("SimulatedTrack: logger cannot be nil")
	}
	if emit == nil {
		panic("SimulatedTrack: emit cannot be nil")
	}
	if config.Interval <= 0 {
		panic("SimulatedTrack: interval must be > 0")
	}
	return &SimulatedTrack{
		logger:   logger,
		config:   config,
		emit:     emit,
		lat:      config.StartLatitude,
		lon:      config.StartLongitude,
		start:    start,
		stopChan: make(chan struct{}),
	}
}

// SetSpeed changes the simulated speed for the following fixes
func (t *SimulatedTrack) SetSpeed(mps float64) {
	t.mu.Lock()
	t.config.SpeedMps = math.Max(mps, 0)
	t.mu.Unlock()
}

// Next advances the track by one interval and returns the resulting fix
func (t *SimulatedTrack) Next() Fix {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	step := t.config.SpeedMps * t.config.Interval.Seconds()
	heading := t.config.HeadingDegrees * math.Pi / 180
	t.lat += (step * math.Cos(heading) / earthRadiusMeters) * 180 / math.Pi
	t.lon += (step * math.Sin(heading) / (earthRadiusMeters * math.Cos(t.lat*math.Pi/180))) * 180 / math.Pi

	fix := Fix{
		Latitude:           t.lat,
		Longitude:          t.lon,
		HorizontalAccuracy: 4,
		Speed:              t.config.SpeedMps,
		Timestamp:          t.start.Add(time.Duration(t.count) * t.config.Interval),
	}
	if t.config.NoisyEvery > 0 && t.count%t.config.NoisyEvery == 0 {
		// 30 m sideways jump
		fix.Longitude += (30 / (earthRadiusMeters * math.Cos(t.lat*math.Pi/180))) * 180 / math.Pi
		fix.HorizontalAccuracy = 65
		fix.Speed = -1
	}
	return fix
}

// Start emits a fix every interval until Stop
func (t *SimulatedTrack) Start() {
	t.logger.Printf("SimulatedTrack: starting at %.5f,%.5f, %.2f m/s", t.config.StartLatitude, t.config.StartLongitude, t.config.SpeedMps)
	go_func_utils.SafeGoWG(t.logger, &t.wg, func() {
		ticker := time.NewTicker(t.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopChan:
				return
			case <-ticker.C:
				t.emit(t.Next())
			}
		}
	})
}

// Stop ends emission and waits for the emitting goroutine
func (t *SimulatedTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()
}

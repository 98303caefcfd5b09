package calc

import (
	"fmt"
	"math"
)

// PaceUnavailable is what a pace renders to when it cannot be computed
const PaceUnavailable = "--:--"

// minMovingSpeedMps is the speed below which pace is treated as not computable
const minMovingSpeedMps = 0.1

// Pace is a duration per kilometer. Valid is false when no distance has been covered.
type Pace struct {
	SecondsPerKm float64
	Valid        bool
}

// PaceFromDistance computes seconds per km from a distance and elapsed time
func PaceFromDistance(distanceMeters, elapsedSeconds float64) Pace {
	if distanceMeters <= 0 || elapsedSeconds < 0 || !isFinite(distanceMeters) || !isFinite(elapsedSeconds) {
		return Pace{}
	}
	return Pace{SecondsPerKm: elapsedSeconds / (distanceMeters / MetersPerKilometer), Valid: true}
}

// PaceFromSpeed converts an instantaneous speed into a pace
func PaceFromSpeed(speedMps float64) Pace {
	if speedMps < minMovingSpeedMps || !isFinite(speedMps) {
		return Pace{}
	}
	return Pace{SecondsPerKm: MetersPerKilometer / speedMps, Valid: true}
}

// SecondsPer returns the pace expressed per display unit of the given system
func (p Pace) SecondsPer(units UnitSystem) float64 {
	if !p.Valid {
		return 0
	}
	return p.SecondsPerKm * units.SplitDistanceMeters() / MetersPerKilometer
}

// Format renders the pace as m:ss per display unit, or PaceUnavailable
func (p Pace) Format(units UnitSystem) string {
	if !p.Valid {
		return PaceUnavailable
	}
	total := int(math.Round(p.SecondsPer(units)))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// String renders the pace per kilometer
func (p Pace) String() string {
	return p.Format(UnitsMetric)
}

// SpeedKmh computes average speed in km/h. Zero elapsed time yields 0.
func SpeedKmh(distanceMeters, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 || distanceMeters <= 0 {
		return 0
	}
	return (distanceMeters / MetersPerKilometer) / (elapsedSeconds / 3600)
}

// MpsToKmh converts meters per second to kilometers per hour
func MpsToKmh(speedMps float64) float64 {
	return speedMps * 3.6
}

// MET returns the metabolic equivalent for an activity at the given speed.
// Unknown activity types fall back to the running table.
func MET(activity ActivityType, speedKmh float64) float64 {
	info, ok := GetActivityTypeInfo(activity)
	if !ok {
		info, _ = GetActivityTypeInfo(ActivityRunning)
	}
	for _, band := range info.METBands {
		if speedKmh < band.MaxSpeedKmh {
			return band.MET
		}
	}
	return info.METBands[len(info.METBands)-1].MET
}

// Calories estimates energy expenditure in kcal as MET x weight x hours
func Calories(activity ActivityType, speedKmh, weightKg, elapsedHours float64) float64 {
	if weightKg <= 0 || elapsedHours <= 0 {
		return 0
	}
	return MET(activity, speedKmh) * weightKg * elapsedHours
}

// EstimatedMaxHeartRate uses the 220 - age estimate
func EstimatedMaxHeartRate(age int) int {
	return 220 - age
}

// ZoneForHeartRate maps a bpm to its zone for a person of the given age.
// Anything under the Zone2 threshold is Zone1; a non-positive bpm has no zone.
func ZoneForHeartRate(bpm int, age int) HeartRateZone {
	maxHR := EstimatedMaxHeartRate(age)
	if bpm <= 0 || maxHR <= 0 {
		return ZoneNone
	}
	ratio := float64(bpm) / float64(maxHR)
	zone := Zone1
	for _, info := range AllHeartRateZones {
		if ratio >= info.MinMaxHRRatio {
			zone = info.Zone
		}
	}
	return zone
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

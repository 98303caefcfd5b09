package calc

import "math"

// ActivityType identifies the kind of cardio session being tracked
type ActivityType string

const (
	ActivityRunning    ActivityType = "running"
	ActivityWalking    ActivityType = "walking"
	ActivityCycling    ActivityType = "cycling"
	ActivityHiking     ActivityType = "hiking"
	ActivityRowing     ActivityType = "rowing"
	ActivityElliptical ActivityType = "elliptical"
)

// METBand maps a speed range to a Metabolic Equivalent of Task value.
// A band applies to speeds strictly below MaxSpeedKmh.
type METBand struct {
	MaxSpeedKmh float64
	MET         float64
}

// ActivityTypeInfo contains display and energy information for an activity type
type ActivityTypeInfo struct {
	ID          ActivityType
	DisplayName string
	METBands    []METBand // Ordered by MaxSpeedKmh, last band is unbounded
}

var unbounded = math.Inf(1)

// AllActivityTypes defines every supported activity type in display order
var AllActivityTypes = []ActivityTypeInfo{
	{
		ID:          ActivityRunning,
		DisplayName: "Running",
		METBands: []METBand{
			{MaxSpeedKmh: 8, MET: 7.0},
			{MaxSpeedKmh: 12, MET: 9.8},
			{MaxSpeedKmh: unbounded, MET: 11.8},
		},
	},
	{
		ID:          ActivityWalking,
		DisplayName: "Walking",
		METBands: []METBand{
			{MaxSpeedKmh: 4, MET: 2.8},
			{MaxSpeedKmh: 6, MET: 3.5},
			{MaxSpeedKmh: unbounded, MET: 5.0},
		},
	},
	{
		ID:          ActivityCycling,
		DisplayName: "Cycling",
		METBands: []METBand{
			{MaxSpeedKmh: 16, MET: 4.0},
			{MaxSpeedKmh: 22, MET: 8.0},
			{MaxSpeedKmh: unbounded, MET: 10.0},
		},
	},
	{
		ID:          ActivityHiking,
		DisplayName: "Hiking",
		METBands:    []METBand{{MaxSpeedKmh: unbounded, MET: 6.0}},
	},
	{
		ID:          ActivityRowing,
		DisplayName: "Rowing",
		METBands:    []METBand{{MaxSpeedKmh: unbounded, MET: 7.0}},
	},
	{
		ID:          ActivityElliptical,
		DisplayName: "Elliptical",
		METBands:    []METBand{{MaxSpeedKmh: unbounded, MET: 5.0}},
	},
}

// GetActivityTypeInfo returns the info for a given activity type
func GetActivityTypeInfo(id ActivityType) (ActivityTypeInfo, bool) {
	for _, info := range AllActivityTypes {
		if info.ID == id {
			return info, true
		}
	}
	return ActivityTypeInfo{}, false
}

// Feeling is the subjective rating a user gives a finished session
type Feeling int

const (
	FeelingUnrated Feeling = iota
	FeelingExhausted
	FeelingTired
	FeelingOkay
	FeelingGood
	FeelingGreat
)

// FeelingInfo contains display information for a feeling rating
type FeelingInfo struct {
	Feeling     Feeling
	ID          string
	DisplayName string
}

// AllFeelings defines the feeling ratings from worst to best
var AllFeelings = []FeelingInfo{
	{Feeling: FeelingUnrated, ID: "unrated", DisplayName: "Not rated"},
	{Feeling: FeelingExhausted, ID: "exhausted", DisplayName: "Exhausted"},
	{Feeling: FeelingTired, ID: "tired", DisplayName: "Tired"},
	{Feeling: FeelingOkay, ID: "okay", DisplayName: "Okay"},
	{Feeling: FeelingGood, ID: "good", DisplayName: "Good"},
	{Feeling: FeelingGreat, ID: "great", DisplayName: "Great"},
}

// GetFeelingInfo returns the info for a given feeling
func GetFeelingInfo(f Feeling) (FeelingInfo, bool) {
	for _, info := range AllFeelings {
		if info.Feeling == f {
			return info, true
		}
	}
	return FeelingInfo{}, false
}

// ParseFeeling looks a feeling up by its ID
func ParseFeeling(id string) (Feeling, bool) {
	for _, info := range AllFeelings {
		if info.ID == id {
			return info.Feeling, true
		}
	}
	return FeelingUnrated, false
}

// String returns the feeling ID
func (f Feeling) String() string {
	if info, ok := GetFeelingInfo(f); ok {
		return info.ID
	}
	return "unknown"
}

// HeartRateZone is an ordinal exertion band. ZoneNone means no heart rate is known.
type HeartRateZone int

const (
	ZoneNone HeartRateZone = iota
	Zone1
	Zone2
	Zone3
	Zone4
	Zone5
)

// HeartRateZoneInfo describes a zone and the fraction of max heart rate where it starts
type HeartRateZoneInfo struct {
	Zone          HeartRateZone
	DisplayName   string
	MinMaxHRRatio float64
}

// AllHeartRateZones is ordered from lowest to highest intensity
var AllHeartRateZones = []HeartRateZoneInfo{
	{Zone: Zone1, DisplayName: "Z1 Recovery", MinMaxHRRatio: 0.50},
	{Zone: Zone2, DisplayName: "Z2 Endurance", MinMaxHRRatio: 0.60},
	{Zone: Zone3, DisplayName: "Z3 Tempo", MinMaxHRRatio: 0.70},
	{Zone: Zone4, DisplayName: "Z4 Threshold", MinMaxHRRatio: 0.80},
	{Zone: Zone5, DisplayName: "Z5 Maximum", MinMaxHRRatio: 0.90},
}

// GetHeartRateZoneInfo returns the info for a given zone
func GetHeartRateZoneInfo(zone HeartRateZone) (HeartRateZoneInfo, bool) {
	for _, info := range AllHeartRateZones {
		if info.Zone == zone {
			return info, true
		}
	}
	return HeartRateZoneInfo{}, false
}

// String returns the zone display name, or "--" when there is no zone
func (z HeartRateZone) String() string {
	if info, ok := GetHeartRateZoneInfo(z); ok {
		return info.DisplayName
	}
	return "--"
}

// UnitSystem selects the split distance and display units
type UnitSystem string

const (
	UnitsMetric   UnitSystem = "metric"
	UnitsImperial UnitSystem = "imperial"
)

const (
	MetersPerKilometer = 1000.0
	MetersPerMile      = 1609.344
)

// SplitDistanceMeters returns the distance covered by one split
func (u UnitSystem) SplitDistanceMeters() float64 {
	if u == UnitsImperial {
		return MetersPerMile
	}
	return MetersPerKilometer
}

// DistanceLabel returns the short label for the display distance unit
func (u UnitSystem) DistanceLabel() string {
	if u == UnitsImperial {
		return "mi"
	}
	return "km"
}

// Valid reports whether u is a known unit system
func (u UnitSystem) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// Sex selects the sex-specific body composition formulas
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// ActivityLevel describes everyday activity outside of tracked sessions
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// activityLevelMultipliers scales BMR into total daily energy expenditure
var activityLevelMultipliers = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

// Goal is the user's body composition goal
type Goal string

const (
	GoalCut      Goal = "cut"
	GoalMaintain Goal = "maintain"
	GoalBulk     Goal = "bulk"
)

// GoalInfo holds the nutrition parameters associated with a goal
type GoalInfo struct {
	ID                Goal
	CalorieMultiplier float64 // Applied to TDEE
	ProteinGramsPerKg float64
	CarbShare         float64 // Share of the non-protein calories from carbs, the rest is fat
}

// AllGoals defines the nutrition table for every goal
var AllGoals = []GoalInfo{
	{ID: GoalCut, CalorieMultiplier: 0.8, ProteinGramsPerKg: 2.2, CarbShare: 0.45},
	{ID: GoalMaintain, CalorieMultiplier: 1.0, ProteinGramsPerKg: 1.8, CarbShare: 0.55},
	{ID: GoalBulk, CalorieMultiplier: 1.1, ProteinGramsPerKg: 2.0, CarbShare: 0.60},
}

// GetGoalInfo returns the info for a given goal
func GetGoalInfo(id Goal) (GoalInfo, bool) {
	for _, info := range AllGoals {
		if info.ID == id {
			return info, true
		}
	}
	return GoalInfo{}, false
}

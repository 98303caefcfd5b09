package calc

import (
	"errors"
	"fmt"
	"math"
)

const (
	maxBodyFatPercent = 50.0
	proteinKcalPerG   = 4.0
	carbKcalPerG      = 4.0
	fatKcalPerG       = 9.0
)

// UserProfile is the read-only description of the athlete. Circumferences
// are optional and left at zero when not measured.
type UserProfile struct {
	Age           int           `mapstructure:"age"`
	Sex           Sex           `mapstructure:"sex"`
	HeightCm      float64       `mapstructure:"height_cm"`
	WeightKg      float64       `mapstructure:"weight_kg"`
	NeckCm        float64       `mapstructure:"neck_cm"`
	WaistCm       float64       `mapstructure:"waist_cm"`
	HipCm         float64       `mapstructure:"hip_cm"`
	ActivityLevel ActivityLevel `mapstructure:"activity_level"`
	Goal          Goal          `mapstructure:"goal"`
}

// ErrInvalidProfile is returned by Validate
var ErrInvalidProfile = errors.New("invalid user profile")

// Validate checks the fields every calculation depends on
func (p UserProfile) Validate() error {
	switch {
	case p.Age <= 0 || p.Age >= 120:
		return fmt.Errorf("%w: age %d", ErrInvalidProfile, p.Age)
	case p.Sex != SexMale && p.Sex != SexFemale:
		return fmt.Errorf("%w: sex %q", ErrInvalidProfile, p.Sex)
	case p.HeightCm <= 0:
		return fmt.Errorf("%w: height %.1f cm", ErrInvalidProfile, p.HeightCm)
	case p.WeightKg <= 0:
		return fmt.Errorf("%w: weight %.1f kg", ErrInvalidProfile, p.WeightKg)
	}
	if _, ok := activityLevelMultipliers[p.ActivityLevel]; !ok {
		return fmt.Errorf("%w: activity level %q", ErrInvalidProfile, p.ActivityLevel)
	}
	if _, ok := GetGoalInfo(p.Goal); !ok {
		return fmt.Errorf("%w: goal %q", ErrInvalidProfile, p.Goal)
	}
	return nil
}

// NavyBodyFat estimates body-fat percentage with the U.S. Navy circumference
// method (metric form). ok is false when the required measurements are missing.
func NavyBodyFat(p UserProfile) (percent float64, ok bool) {
	if p.HeightCm <= 0 || p.NeckCm <= 0 || p.WaistCm <= 0 {
		return 0, false
	}

	var density float64
	switch p.Sex {
	case SexMale:
		diff := p.WaistCm - p.NeckCm
		if diff <= 0 {
			return 0, false
		}
		density = 1.0324 - 0.19077*math.Log10(diff) + 0.15456*math.Log10(p.HeightCm)
	case SexFemale:
		if p.HipCm <= 0 {
			return 0, false
		}
		sum := p.WaistCm + p.HipCm - p.NeckCm
		if sum <= 0 {
			return 0, false
		}
		density = 1.29579 - 0.35004*math.Log10(sum) + 0.22100*math.Log10(p.HeightCm)
	default:
		return 0, false
	}
	if density <= 0 {
		return 0, false
	}

	percent = 495/density - 450
	return math.Max(0, math.Min(maxBodyFatPercent, percent)), true
}

// BMRFormula names the equation used for a BMR result
type BMRFormula string

const (
	FormulaMifflinStJeor BMRFormula = "mifflin_st_jeor"
	FormulaKatchMcArdle  BMRFormula = "katch_mcardle"
)

// BMR returns the basal metabolic rate in kcal/day. Katch-McArdle is used
// whenever body fat can be estimated, Mifflin-St Jeor otherwise.
func BMR(p UserProfile) (float64, BMRFormula) {
	if bodyFat, ok := NavyBodyFat(p); ok {
		return KatchMcArdle(p.WeightKg, bodyFat), FormulaKatchMcArdle
	}
	return MifflinStJeor(p), FormulaMifflinStJeor
}

// MifflinStJeor computes BMR from weight, height, age and sex
func MifflinStJeor(p UserProfile) float64 {
	base := 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age)
	if p.Sex == SexFemale {
		return base - 161
	}
	return base + 5
}

// KatchMcArdle computes BMR from lean body mass
func KatchMcArdle(weightKg, bodyFatPercent float64) float64 {
	leanMassKg := weightKg * (1 - bodyFatPercent/100)
	return 370 + 21.6*leanMassKg
}

// TDEE scales BMR by the activity level multiplier. Unknown levels count as sedentary.
func TDEE(bmr float64, level ActivityLevel) float64 {
	multiplier, ok := activityLevelMultipliers[level]
	if !ok {
		multiplier = activityLevelMultipliers[ActivitySedentary]
	}
	return bmr * multiplier
}

// Macros is a daily macronutrient target in grams
type Macros struct {
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// NutritionPlan is the daily energy summary derived from a profile
type NutritionPlan struct {
	BMR         float64
	Formula     BMRFormula
	TDEE        float64
	CalorieGoal float64
	Macros      Macros
}

// DailyCalorieGoal applies the goal multiplier to TDEE. Unknown goals maintain.
func DailyCalorieGoal(tdee float64, goal Goal) float64 {
	info, ok := GetGoalInfo(goal)
	if !ok {
		info, _ = GetGoalInfo(GoalMaintain)
	}
	return tdee * info.CalorieMultiplier
}

// MacroSplit derives protein from body weight and splits the remaining
// calories between carbs and fat according to the goal.
func MacroSplit(weightKg, calorieGoal float64, goal Goal) Macros {
	info, ok := GetGoalInfo(goal)
	if !ok {
		info, _ = GetGoalInfo(GoalMaintain)
	}
	protein := info.ProteinGramsPerKg * weightKg
	remaining := math.Max(0, calorieGoal-protein*proteinKcalPerG)
	return Macros{
		ProteinG: protein,
		CarbsG:   remaining * info.CarbShare / carbKcalPerG,
		FatG:     remaining * (1 - info.CarbShare) / fatKcalPerG,
	}
}

// PlanNutrition runs the whole BMR -> TDEE -> goal -> macros chain
func PlanNutrition(p UserProfile) NutritionPlan {
	bmr, formula := BMR(p)
	tdee := TDEE(bmr, p.ActivityLevel)
	goal := DailyCalorieGoal(tdee, p.Goal)
	return NutritionPlan{
		BMR:         bmr,
		Formula:     formula,
		TDEE:        tdee,
		CalorieGoal: goal,
		Macros:      MacroSplit(p.WeightKg, goal, p.Goal),
	}
}

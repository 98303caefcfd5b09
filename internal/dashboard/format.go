package dashboard

import (
	"fmt"
	"strings"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/sensors"
	"github.com/lowaak/cardio-tracker/internal/session"
)

const sliderWidth = 20

// FormatElapsed renders seconds as mm:ss, or h:mm:ss from one hour on
func FormatElapsed(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatDistance renders meters in the display unit with two decimals
func FormatDistance(meters float64, units calc.UnitSystem) string {
	return fmt.Sprintf("%.2f %s", meters/units.SplitDistanceMeters(), units.DistanceLabel())
}

// FormatSpeed renders meters per second as km/h or mph
func FormatSpeed(mps float64, units calc.UnitSystem) string {
	if units == calc.UnitsImperial {
		return fmt.Sprintf("%.1f mph", mps*3600/calc.MetersPerMile)
	}
	return fmt.Sprintf("%.1f km/h", calc.MpsToKmh(mps))
}

func phaseColor(phase session.Phase) string {
	switch phase {
	case session.PhaseRunning:
		return "green"
	case session.PhasePaused, session.PhaseCountingDown:
		return "yellow"
	case session.PhaseLocked:
		return "red"
	default:
		return "gray"
	}
}

// FormatMetrics renders the metrics panel
func FormatMetrics(v session.View) string {
	snap := v.Snapshot
	units := v.Units
	if !units.Valid() {
		units = calc.UnitsMetric
	}

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [%s]%s[white]  %s\n\n", phaseColor(v.Lifecycle.Phase), v.Lifecycle, v.Activity)
	if v.Lifecycle.Phase == session.PhaseCountingDown {
		fmt.Fprintf(&b, "  [yellow]Starting in %d...[white]\n\n", v.Lifecycle.TicksRemaining)
	}
	fmt.Fprintf(&b, "  Elapsed:     [yellow]%s[white]\n\n", FormatElapsed(snap.ElapsedSeconds))
	fmt.Fprintf(&b, "  Distance:    [yellow]%s[white]\n\n", FormatDistance(snap.DistanceMeters, units))
	fmt.Fprintf(&b, "  Pace:        [yellow]%s[white] /%s  (avg %s)\n\n",
		snap.Pace.Format(units), units.DistanceLabel(), snap.AveragePace().Format(units))
	fmt.Fprintf(&b, "  Speed:       [yellow]%s[white]\n\n", FormatSpeed(snap.SpeedMps, units))
	fmt.Fprintf(&b, "  Calories:    [yellow]%d[white] kcal\n\n", snap.Calories)
	if snap.HasHeartRate {
		fmt.Fprintf(&b, "  Heart Rate:  [yellow]%d[white] bpm  %s\n", snap.HeartRate, snap.Zone)
	} else {
		b.WriteString("  Heart Rate:  [gray]--[white]\n")
	}
	return b.String()
}

// FormatSensors renders the sensor status panel
func FormatSensors(v session.View) string {
	var b strings.Builder
	b.WriteString("\n")
	hr := v.HeartRate
	switch hr.State {
	case sensors.HeartRateConnected:
		fmt.Fprintf(&b, "  [green]HR[white]   %s", hr.DeviceName)
		if hr.HasBattery {
			fmt.Fprintf(&b, "  battery %d%%", hr.Battery)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "  [gray]HR[white]   %s\n", hr.State)
	}
	if v.Indoor {
		b.WriteString("  [gray]GPS[white]  indoor\n")
	} else {
		color := "green"
		switch v.GPS {
		case sensors.AccuracyFair:
			color = "yellow"
		case sensors.AccuracyPoor, sensors.AccuracyUnknown:
			color = "red"
		}
		fmt.Fprintf(&b, "  [%s]GPS[white]  %s\n", color, v.GPS)
	}
	if n := v.Diagnostics.Total(); n > 0 {
		fmt.Fprintf(&b, "  [gray]%d sample(s) dropped[white]\n", n)
	}
	return b.String()
}

// FormatControls renders the key help, the unlock slider and the status line
func FormatControls(v session.View, dragOffset float64, feeling calc.Feeling, status string) string {
	var b strings.Builder
	b.WriteString("\n")
	if v.Lifecycle.Phase == session.PhaseLocked {
		filled := int(dragOffset*sliderWidth + 0.5)
		fmt.Fprintf(&b, "  [red]LOCKED[white]  [%s%s]  ->/<- drag, Enter release, +/- volume (%d)\n",
			strings.Repeat("=", filled), strings.Repeat(" ", sliderWidth-filled), v.VolumePresses)
	} else {
		b.WriteString("  [yellow]s[white] Start  [yellow]p[white] Pause/Resume  [yellow]l[white] Lock  " +
			"[yellow]x[white] Finish  [yellow]d[white] Discard  [yellow]f[white] Feeling  [yellow]Esc[white] Quit\n")
	}
	info, _ := calc.GetFeelingInfo(feeling)
	fmt.Fprintf(&b, "  Feeling: %s\n", info.DisplayName)
	if status != "" {
		fmt.Fprintf(&b, "  %s\n", status)
	}
	return b.String()
}

// SplitRows renders one row per split: marker, split time, pace and heart rate
func SplitRows(v session.View) [][]string {
	units := v.Units
	if !units.Valid() {
		units = calc.UnitsMetric
	}
	rows := make([][]string, 0, len(v.Snapshot.Splits))
	for i, split := range v.Snapshot.Splits {
		hr := "--"
		if split.HasHeartRate {
			hr = fmt.Sprintf("%d", split.HeartRate)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d %s", i+1, units.DistanceLabel()),
			FormatElapsed(split.DurationSeconds),
			split.Pace.Format(units),
			hr,
		})
	}
	return rows
}

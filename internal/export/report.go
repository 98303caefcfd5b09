package export

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lowaak/cardio-tracker/internal/calc"
)

// Report is a saved session read back from disk, with journal totals
type Report struct {
	Summary         Summary
	Sidecar         Sidecar
	JournalSessions int
	JournalMeters   float64
}

// ReadSummary decodes the FIT file of a saved session
func (s *FitStore) ReadSummary(sessionID string) (Summary, error) {
	file, err := os.Open(s.Path(sessionID))
	if err != nil {
		return Summary{}, fmt.Errorf("open activity: %w", err)
	}
	defer file.Close()
	return DecodeSummary(file)
}

// LoadReport reads back the FIT file and sidecar of a saved session. The
// journal is optional.
func LoadReport(store *FitStore, journal *Journal, sessionID string) (Report, error) {
	var report Report
	summary, err := store.ReadSummary(sessionID)
	if err != nil {
		return report, err
	}
	sidecar, err := store.ReadSidecar(sessionID)
	if err != nil {
		return report, err
	}
	report.Summary = summary
	report.Sidecar = sidecar

	if journal == nil {
		return report, nil
	}
	entries, err := journal.Entries()
	if err != nil {
		return report, err
	}
	report.JournalSessions = len(entries)
	for _, entry := range entries {
		report.JournalMeters += entry.DistanceMeters
	}
	return report, nil
}

// Write prints the report in the session's unit system
func (r Report) Write(w io.Writer) {
	units := r.Sidecar.Units
	if !units.Valid() {
		units = calc.UnitsMetric
	}
	label := units.DistanceLabel()
	name := string(r.Sidecar.Metadata.Activity)
	if info, ok := calc.GetActivityTypeInfo(r.Sidecar.Metadata.Activity); ok {
		name = info.DisplayName
	}

	fmt.Fprintf(w, "Session %s\n", r.Sidecar.SessionID)
	fmt.Fprintf(w, "  %s, %.2f %s in %s, avg pace %s /%s\n",
		name,
		r.Summary.DistanceMeters/units.SplitDistanceMeters(), label,
		seconds(r.Summary.TimerSeconds).Round(time.Second),
		r.Sidecar.AveragePace, label)
	fmt.Fprintf(w, "  %d kcal, %d split(s)", r.Summary.Calories, r.Summary.Laps)
	if r.Summary.AvgHeartRate > 0 {
		fmt.Fprintf(w, ", avg HR %d bpm", r.Summary.AvgHeartRate)
	}
	fmt.Fprintf(w, ", feeling: %s\n", r.Sidecar.Feeling)
	if r.JournalSessions > 0 {
		fmt.Fprintf(w, "Journal: %d session(s), %.1f %s total\n",
			r.JournalSessions, r.JournalMeters/units.SplitDistanceMeters(), label)
	}
}

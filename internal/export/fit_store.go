// Package export writes completed sessions to disk: a FIT activity file per
// session with a JSON sidecar, and an append-only journal.
package export

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/tormoder/fit"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/session"
)

type sportInfo struct {
	sport     fit.Sport
	sub       fit.SubSport
	indoorSub fit.SubSport
}

var activitySports = map[calc.ActivityType]sportInfo{
	calc.ActivityRunning:    {fit.SportRunning, fit.SubSportGeneric, fit.SubSportTreadmill},
	calc.ActivityWalking:    {fit.SportWalking, fit.SubSportGeneric, fit.SubSportTreadmill},
	calc.ActivityCycling:    {fit.SportCycling, fit.SubSportGeneric, fit.SubSportIndoorCycling},
	calc.ActivityHiking:     {fit.SportHiking, fit.SubSportGeneric, fit.SubSportGeneric},
	calc.ActivityRowing:     {fit.SportRowing, fit.SubSportGeneric, fit.SubSportIndoorRowing},
	calc.ActivityElliptical: {fit.SportFitnessEquipment, fit.SubSportElliptical, fit.SubSportElliptical},
}

// FitStore is the persistence collaborator of the session engine
type FitStore struct {
	dir    string
	logger *log.Logger
}

func NewFitStore(dir string, logger *log.Logger) *FitStore {
	if logger == nil {
		panic("FitStore: logger cannot be nil")
	}
	return &FitStore{dir: dir, logger: logger}
}

// Path returns the FIT file of a session
func (s *FitStore) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".fit")
}

// SidecarPath returns the JSON file holding what FIT cannot carry
func (s *FitStore) SidecarPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the FIT file and its sidecar. Existing files of the same
// session are replaced.
func (s *FitStore) Save(ctx context.Context, record session.FinalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.SessionID == "" {
		return fmt.Errorf("save session: empty session id")
	}

	data, err := EncodeActivity(record)
	if err != nil {
		return err
	}
	sidecar, err := json.MarshalIndent(newSidecar(record), "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := writeFileAtomic(s.Path(record.SessionID), data); err != nil {
		return err
	}
	if err := writeFileAtomic(s.SidecarPath(record.SessionID), sidecar); err != nil {
		return err
	}
	s.logger.Printf("FitStore: wrote %s (%d bytes)", s.Path(record.SessionID), len(data))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// EncodeActivity renders a completed session as a FIT activity file with one
// lap and one record per split.
func EncodeActivity(record session.FinalRecord) ([]byte, error) {
	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		return nil, fmt.Errorf("new fit file: %w", err)
	}
	activity, err := file.Activity()
	if err != nil {
		return nil, fmt.Errorf("fit activity: %w", err)
	}

	snap := record.Snapshot
	start := record.StartedAt
	end := record.CompletedAt
	if end.Before(start) {
		end = start
	}

	startEvent := fit.NewEventMsg()
	startEvent.Timestamp = start
	startEvent.Event = fit.EventTimer
	startEvent.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, startEvent)

	lapStart := start
	lapStartDistance := 0.0
	for _, split := range snap.Splits {
		at := start.Add(seconds(split.ElapsedSeconds))

		rec := fit.NewRecordMsg()
		rec.Timestamp = at
		rec.Distance = scaled32(split.MarkerMeters, 100)
		if split.Pace.Valid {
			rec.Speed = scaled16(calc.MetersPerKilometer/split.Pace.SecondsPerKm, 1000)
		}
		if split.HasHeartRate {
			rec.HeartRate = uint8(split.HeartRate)
		}
		activity.Records = append(activity.Records, rec)

		lap := fit.NewLapMsg()
		lap.Timestamp = at
		lap.StartTime = lapStart
		lap.TotalElapsedTime = scaled32(split.DurationSeconds, 1000)
		lap.TotalTimerTime = scaled32(split.DurationSeconds, 1000)
		lap.TotalDistance = scaled32(split.MarkerMeters-lapStartDistance, 100)
		if split.DurationSeconds > 0 {
			lap.AvgSpeed = scaled16((split.MarkerMeters-lapStartDistance)/split.DurationSeconds, 1000)
		}
		if split.HasHeartRate {
			lap.AvgHeartRate = uint8(split.HeartRate)
		}
		activity.Laps = append(activity.Laps, lap)

		lapStart = at
		lapStartDistance = split.MarkerMeters
	}

	last := fit.NewRecordMsg()
	last.Timestamp = end
	last.Distance = scaled32(snap.DistanceMeters, 100)
	last.Speed = scaled16(snap.SpeedMps, 1000)
	if snap.HasHeartRate {
		last.HeartRate = uint8(snap.HeartRate)
	}
	activity.Records = append(activity.Records, last)

	stopEvent := fit.NewEventMsg()
	stopEvent.Timestamp = end
	stopEvent.Event = fit.EventTimer
	stopEvent.EventType = fit.EventTypeStop
	activity.Events = append(activity.Events, stopEvent)

	sport := sportFor(record.Metadata.Activity)
	sess := fit.NewSessionMsg()
	sess.Timestamp = end
	sess.StartTime = start
	sess.Sport = sport.sport
	sess.SubSport = sport.sub
	if record.Metadata.Indoor {
		sess.SubSport = sport.indoorSub
	}
	sess.TotalElapsedTime = scaled32(end.Sub(start).Seconds(), 1000)
	sess.TotalTimerTime = scaled32(snap.ElapsedSeconds, 1000)
	sess.TotalDistance = scaled32(snap.DistanceMeters, 100)
	sess.AvgSpeed = scaled16(calc.SpeedKmh(snap.DistanceMeters, snap.ElapsedSeconds)/3.6, 1000)
	sess.TotalCalories = uint16(clamp(float64(snap.Calories), math.MaxUint16-1))
	sess.NumLaps = uint16(len(activity.Laps))
	if bpm, ok := averageHeartRate(snap); ok {
		sess.AvgHeartRate = uint8(bpm)
	}
	activity.Sessions = append(activity.Sessions, sess)

	summary := fit.NewActivityMsg()
	summary.Timestamp = end
	summary.TotalTimerTime = scaled32(snap.ElapsedSeconds, 1000)
	summary.NumSessions = 1
	activity.Activity = summary

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode fit: %w", err)
	}
	return buf.Bytes(), nil
}

func sportFor(activity calc.ActivityType) sportInfo {
	if info, ok := activitySports[activity]; ok {
		return info
	}
	return activitySports[calc.ActivityRunning]
}

// averageHeartRate averages the split heart rates, falling back to the last
// sample of a session too short for a split
func averageHeartRate(snap session.Snapshot) (int, bool) {
	sum, n := 0, 0
	for _, split := range snap.Splits {
		if split.HasHeartRate {
			sum += split.HeartRate
			n++
		}
	}
	if n > 0 {
		return int(math.Round(float64(sum) / float64(n))), true
	}
	return snap.HeartRate, snap.HasHeartRate
}

// Summary is the part of a FIT activity read back by DecodeSummary
type Summary struct {
	Sport          fit.Sport
	SubSport       fit.SubSport
	StartTime      time.Time
	TimerSeconds   float64
	DistanceMeters float64
	AvgSpeedMps    float64
	Calories       int
	AvgHeartRate   int
	Laps           int
	Records        int
}

// DecodeSummary reads the first session of a FIT activity file
func DecodeSummary(r io.Reader) (Summary, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return Summary{}, fmt.Errorf("decode fit: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return Summary{}, fmt.Errorf("fit activity: %w", err)
	}
	if len(activity.Sessions) == 0 {
		return Summary{}, fmt.Errorf("fit activity has no session")
	}
	s := activity.Sessions[0]
	summary := Summary{
		Sport:          s.Sport,
		SubSport:       s.SubSport,
		StartTime:      s.StartTime,
		TimerSeconds:   float64(s.TotalTimerTime) / 1000,
		DistanceMeters: float64(s.TotalDistance) / 100,
		AvgSpeedMps:    float64(s.AvgSpeed) / 1000,
		Calories:       int(s.TotalCalories),
		Laps:           len(activity.Laps),
		Records:        len(activity.Records),
	}
	if s.AvgHeartRate != 0xFF {
		summary.AvgHeartRate = int(s.AvgHeartRate)
	}
	return summary, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func clamp(v, limit float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// scaled32 and scaled16 apply a FIT field scale. The all-ones value is
// reserved for "invalid" and never produced.
func scaled32(v, scale float64) uint32 {
	return uint32(math.Round(clamp(v*scale, math.MaxUint32-1)))
}

func scaled16(v, scale float64) uint16 {
	return uint16(math.Round(clamp(v*scale, math.MaxUint16-1)))
}

// SidecarSplit is one split as written to the sidecar
type SidecarSplit struct {
	MarkerMeters    float64 `json:"marker_m"`
	ElapsedSeconds  float64 `json:"elapsed_s"`
	DurationSeconds float64 `json:"duration_s"`
	Pace            string  `json:"pace"`
	HeartRate       int     `json:"heart_rate,omitempty"`
}

// Sidecar holds the metadata and display values FIT has no field for
type Sidecar struct {
	SessionID   string              `json:"session_id"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Units       calc.UnitSystem     `json:"units"`
	Metadata    session.Metadata    `json:"metadata"`
	Feeling     string              `json:"feeling_label"`
	Calories    int                 `json:"calories"`
	AveragePace string              `json:"average_pace"`
	Splits      []SidecarSplit      `json:"splits"`
	Diagnostics session.Diagnostics `json:"diagnostics"`
}

func newSidecar(record session.FinalRecord) Sidecar {
	out := Sidecar{
		SessionID:   record.SessionID,
		StartedAt:   record.StartedAt,
		CompletedAt: record.CompletedAt,
		Units:       record.Units,
		Metadata:    record.Metadata,
		Feeling:     record.Metadata.Feeling.String(),
		Calories:    record.Snapshot.Calories,
		AveragePace: record.Snapshot.AveragePace().Format(record.Units),
		Splits:      make([]SidecarSplit, 0, len(record.Snapshot.Splits)),
		Diagnostics: record.Diagnostics,
	}
	for _, split := range record.Snapshot.Splits {
		s := SidecarSplit{
			MarkerMeters:    split.MarkerMeters,
			ElapsedSeconds:  split.ElapsedSeconds,
			DurationSeconds: split.DurationSeconds,
			Pace:            split.Pace.Format(record.Units),
		}
		if split.HasHeartRate {
			s.HeartRate = split.HeartRate
		}
		out.Splits = append(out.Splits, s)
	}
	return out
}

// ReadSidecar loads the sidecar of a saved session
func (s *FitStore) ReadSidecar(sessionID string) (Sidecar, error) {
	var out Sidecar
	data, err := os.ReadFile(s.SidecarPath(sessionID))
	if err != nil {
		return out, fmt.Errorf("read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode sidecar: %w", err)
	}
	return out, nil
}

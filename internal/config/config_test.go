package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/session"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	return Load(NewFlagSet("test"), args)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, calc.UnitsMetric, cfg.Units)
	assert.Equal(t, calc.ActivityRunning, cfg.Activity)
	assert.Equal(t, 3, cfg.CountdownTicks)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 20.0, cfg.Location.MaxAccuracyMeters)
	assert.Equal(t, 0.8, cfg.Lock.DragThreshold)
	assert.Equal(t, 4, cfg.Lock.VolumePresses)
	assert.Equal(t, 3*time.Second, cfg.Lock.VolumeWindow)
	assert.Equal(t, 1.0, cfg.Lock.TrackLength)
	assert.Equal(t, 30, cfg.Profile.Age)
	assert.Equal(t, calc.SexMale, cfg.Profile.Sex)
	assert.Equal(t, 15*time.Second, cfg.HeartRate.ScanTimeout)
	assert.False(t, cfg.Simulate.Enabled)
	assert.Equal(t, "sessions", cfg.Export.Dir)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.Equal(t, 250*time.Millisecond, cfg.UI.Refresh)
	assert.False(t, cfg.ProfileSummary)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := load(t,
		"--units", "imperial",
		"--activity", "cycling",
		"--indoor",
		"--countdown", "0",
		"--volume-window", "2s",
		"--drag-threshold", "0.9",
		"--weight", "82.5",
		"--simulate",
		"--sim-pace", "4:30",
		"--profile-summary",
	)
	require.NoError(t, err)

	assert.Equal(t, calc.UnitsImperial, cfg.Units)
	assert.Equal(t, calc.ActivityCycling, cfg.Activity)
	assert.True(t, cfg.Indoor)
	assert.Equal(t, 0, cfg.CountdownTicks)
	assert.Equal(t, 2*time.Second, cfg.Lock.VolumeWindow)
	assert.Equal(t, 0.9, cfg.Lock.DragThreshold)
	assert.Equal(t, 82.5, cfg.Profile.WeightKg)
	assert.True(t, cfg.Simulate.Enabled)
	assert.True(t, cfg.ProfileSummary)

	speed, err := cfg.SimulatedSpeed()
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/270, speed, 1e-9)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("CARDIO_UNITS", "imperial")
	t.Setenv("CARDIO_LOCK_VOLUME_PRESSES", "5")
	t.Setenv("CARDIO_PROFILE_AGE", "45")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, calc.UnitsImperial, cfg.Units)
	assert.Equal(t, 5, cfg.Lock.VolumePresses)
	assert.Equal(t, 45, cfg.Profile.Age)

	// flags still win
	cfg, err = load(t, "--units", "metric")
	require.NoError(t, err)
	assert.Equal(t, calc.UnitsMetric, cfg.Units)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
activity: walking
lock:
  drag_threshold: 0.7
  volume_window: 4s
profile:
  age: 52
  sex: female
  height_cm: 165
  weight_kg: 60
  goal: cut
export:
  dir: /tmp/cardio
`), 0o644))

	cfg, err := load(t, "--config", path, "--age", "53")
	require.NoError(t, err)
	assert.Equal(t, calc.ActivityWalking, cfg.Activity)
	assert.Equal(t, 0.7, cfg.Lock.DragThreshold)
	assert.Equal(t, 4*time.Second, cfg.Lock.VolumeWindow)
	assert.Equal(t, 53, cfg.Profile.Age)
	assert.Equal(t, calc.SexFemale, cfg.Profile.Sex)
	assert.Equal(t, calc.GoalCut, cfg.Profile.Goal)
	assert.Equal(t, "/tmp/cardio", cfg.Export.Dir)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--units", "furlongs"},
		{"--activity", "swimming"},
		{"--countdown", "-1"},
		{"--tick", "0s"},
		{"--tick", "61s"},
		{"--max-accuracy", "0"},
		{"--drag-threshold", "1.5"},
		{"--volume-presses", "0"},
		{"--age", "0"},
		{"--simulate", "--sim-pace", "fast"},
	} {
		_, err := load(t, args...)
		assert.ErrorIs(t, err, ErrInvalidConfig, "args %v", args)
	}

	cfg, err := load(t, "--tick", "60s")
	require.NoError(t, err)
	assert.Equal(t, session.MaxTickInterval, cfg.TickInterval)

	_, err = load(t, "--no-such-flag")
	assert.Error(t, err)
}

func TestParsePace(t *testing.T) {
	secs, err := ParsePace("5:00")
	require.NoError(t, err)
	assert.Equal(t, 300.0, secs)

	secs, err = ParsePace(" 12:05 ")
	require.NoError(t, err)
	assert.Equal(t, 725.0, secs)

	for _, bad := range []string{"", "5", "5:7", "5:60", "x:00", "0:00", "-1:00"} {
		_, err := ParsePace(bad)
		assert.Error(t, err, bad)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg, err := load(t, "--countdown", "5")
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, 5, sc.CountdownTicks)
	assert.Equal(t, cfg.Profile, sc.Profile)
	assert.Equal(t, cfg.Lock, sc.Lock)
	assert.Equal(t, 20.0, sc.MaxAccuracyMeters)
}

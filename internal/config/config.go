// Package config loads the tracker settings from defaults, an optional
// config file, CARDIO_ environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/session"
)

const envPrefix = "CARDIO"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

type LocationConfig struct {
	MaxAccuracyMeters float64 `mapstructure:"max_accuracy_m"`
}

type HeartRateConfig struct {
	// Address of the strap; empty picks the first one advertising the service
	Address     string        `mapstructure:"address"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

type SimulateConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Pace of the simulated track as m:ss per kilometer
	Pace string `mapstructure:"pace"`
}

type ExportConfig struct {
	Dir     string `mapstructure:"dir"`
	Journal string `mapstructure:"journal"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type UIConfig struct {
	Refresh time.Duration `mapstructure:"refresh"`
}

type Config struct {
	Units          calc.UnitSystem    `mapstructure:"units"`
	Activity       calc.ActivityType  `mapstructure:"activity"`
	Indoor         bool               `mapstructure:"indoor"`
	CountdownTicks int                `mapstructure:"countdown_ticks"`
	TickInterval   time.Duration      `mapstructure:"tick_interval"`
	Location       LocationConfig     `mapstructure:"location"`
	Lock           session.LockPolicy `mapstructure:"lock"`
	Profile        calc.UserProfile   `mapstructure:"profile"`
	HeartRate      HeartRateConfig    `mapstructure:"heart_rate"`
	Simulate       SimulateConfig     `mapstructure:"simulate"`
	Export         ExportConfig       `mapstructure:"export"`
	Log            LogConfig          `mapstructure:"log"`
	UI             UIConfig           `mapstructure:"ui"`
	ProfileSummary bool               `mapstructure:"profile_summary"`
}

var defaults = map[string]interface{}{
	"units":                   string(calc.UnitsMetric),
	"activity":                string(calc.ActivityRunning),
	"indoor":                  false,
	"countdown_ticks":         session.DefaultCountdownTicks,
	"tick_interval":           time.Second,
	"location.max_accuracy_m": session.DefaultMaxAccuracyMeters,
	"lock.track_length":       session.DefaultLockPolicy().TrackLength,
	"lock.drag_threshold":     session.DefaultLockPolicy().DragThreshold,
	"lock.volume_presses":     session.DefaultLockPolicy().VolumePresses,
	"lock.volume_window":      session.DefaultLockPolicy().VolumeWindow,
	"profile.age":             30,
	"profile.sex":             string(calc.SexMale),
	"profile.height_cm":       175.0,
	"profile.weight_kg":       70.0,
	"profile.neck_cm":         0.0,
	"profile.waist_cm":        0.0,
	"profile.hip_cm":          0.0,
	"profile.activity_level":  string(calc.ActivityModerate),
	"profile.goal":            string(calc.GoalMaintain),
	"heart_rate.address":      "",
	"heart_rate.scan_timeout": 15 * time.Second,
	"simulate.enabled":        false,
	"simulate.pace":           "5:00",
	"export.dir":              "sessions",
	"export.journal":          "sessions/journal.jsonl",
	"log.file":                "cardio-tracker.log",
	"log.max_size_mb":         10,
	"log.max_backups":         3,
	"log.max_age_days":        28,
	"ui.refresh":              250 * time.Millisecond,
	"profile_summary":         false,
}

// flagBinding ties a command-line flag to a config key
type flagBinding struct {
	flag string
	key  string
}

var flagBindings = []flagBinding{
	{"units", "units"},
	{"activity", "activity"},
	{"indoor", "indoor"},
	{"countdown", "countdown_ticks"},
	{"tick", "tick_interval"},
	{"max-accuracy", "location.max_accuracy_m"},
	{"drag-threshold", "lock.drag_threshold"},
	{"volume-presses", "lock.volume_presses"},
	{"volume-window", "lock.volume_window"},
	{"age", "profile.age"},
	{"sex", "profile.sex"},
	{"height", "profile.height_cm"},
	{"weight", "profile.weight_kg"},
	{"neck", "profile.neck_cm"},
	{"waist", "profile.waist_cm"},
	{"hip", "profile.hip_cm"},
	{"activity-level", "profile.activity_level"},
	{"goal", "profile.goal"},
	{"hr-address", "heart_rate.address"},
	{"hr-scan-timeout", "heart_rate.scan_timeout"},
	{"simulate", "simulate.enabled"},
	{"sim-pace", "simulate.pace"},
	{"export-dir", "export.dir"},
	{"journal", "export.journal"},
	{"log-file", "log.file"},
	{"ui-refresh", "ui.refresh"},
	{"profile-summary", "profile_summary"},
}

// NewFlagSet declares every command-line flag. Defaults shown in the usage
// text are the built-in defaults; viper resolves the effective values.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML/JSON/TOML config file")

	fs.String("units", "metric", "unit system: metric or imperial")
	fs.String("activity", "running", "activity: running, walking, cycling, hiking, rowing, elliptical")
	fs.Bool("indoor", false, "indoor session (no GPS expected)")
	fs.Int("countdown", session.DefaultCountdownTicks, "countdown ticks before recording starts")
	fs.Duration("tick", time.Second, "timer tick interval")
	fs.Float64("max-accuracy", session.DefaultMaxAccuracyMeters, "worst horizontal accuracy in meters still counted")
	fs.Float64("drag-threshold", session.DefaultLockPolicy().DragThreshold, "fraction of the unlock track a drag must pass")
	fs.Int("volume-presses", session.DefaultLockPolicy().VolumePresses, "volume presses that unlock")
	fs.Duration("volume-window", session.DefaultLockPolicy().VolumeWindow, "window the volume presses must fall in")

	fs.Int("age", 30, "age in years")
	fs.String("sex", "male", "male or female")
	fs.Float64("height", 175, "height in cm")
	fs.Float64("weight", 70, "weight in kg")
	fs.Float64("neck", 0, "neck circumference in cm")
	fs.Float64("waist", 0, "waist circumference in cm")
	fs.Float64("hip", 0, "hip circumference in cm")
	fs.String("activity-level", "moderate", "sedentary, light, moderate, active or very_active")
	fs.String("goal", "maintain", "cut, maintain or bulk")

	fs.String("hr-address", "", "heart rate strap address (empty: first found)")
	fs.Duration("hr-scan-timeout", 15*time.Second, "heart rate strap scan timeout")
	fs.Bool("simulate", false, "simulate GPS and the heart rate strap")
	fs.String("sim-pace", "5:00", "simulated pace per km (m:ss)")
	fs.String("export-dir", "sessions", "directory for FIT files")
	fs.String("journal", "sessions/journal.jsonl", "training journal file")
	fs.String("log-file", "cardio-tracker.log", "log file")
	fs.Duration("ui-refresh", 250*time.Millisecond, "dashboard refresh interval")
	fs.Bool("profile-summary", false, "print the daily nutrition summary and exit")
	return fs
}

// Load parses args with fs and resolves the configuration. fs must come from
// NewFlagSet.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, b := range flagBindings {
		flag := fs.Lookup(b.flag)
		if flag == nil {
			return Config{}, fmt.Errorf("flag %q is not declared", b.flag)
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %q: %w", b.flag, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("could not read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values a session cannot start without
func (c Config) Validate() error {
	if !c.Units.Valid() {
		return fmt.Errorf("%w: units %q", ErrInvalidConfig, c.Units)
	}
	if _, ok := calc.GetActivityTypeInfo(c.Activity); !ok {
		return fmt.Errorf("%w: activity %q", ErrInvalidConfig, c.Activity)
	}
	if c.CountdownTicks < 0 {
		return fmt.Errorf("%w: countdown_ticks %d", ErrInvalidConfig, c.CountdownTicks)
	}
	if c.TickInterval <= 0 || c.TickInterval > session.MaxTickInterval {
		return fmt.Errorf("%w: tick_interval %s", ErrInvalidConfig, c.TickInterval)
	}
	if c.Location.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("%w: location.max_accuracy_m %v", ErrInvalidConfig, c.Location.MaxAccuracyMeters)
	}
	if c.Lock.DragThreshold <= 0 || c.Lock.DragThreshold > 1 {
		return fmt.Errorf("%w: lock.drag_threshold %v", ErrInvalidConfig, c.Lock.DragThreshold)
	}
	if c.Lock.VolumePresses < 1 || c.Lock.VolumeWindow <= 0 {
		return fmt.Errorf("%w: lock.volume_presses %d within %s", ErrInvalidConfig, c.Lock.VolumePresses, c.Lock.VolumeWindow)
	}
	if err := c.Profile.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Simulate.Enabled {
		if _, err := c.SimulatedSpeed(); err != nil {
			return err
		}
	}
	return nil
}

// SimulatedSpeed converts the simulated pace into meters per second
func (c Config) SimulatedSpeed() (float64, error) {
	secondsPerKm, err := ParsePace(c.Simulate.Pace)
	if err != nil {
		return 0, fmt.Errorf("%w: simulate.pace: %w", ErrInvalidConfig, err)
	}
	return calc.MetersPerKilometer / secondsPerKm, nil
}

// ParsePace reads an "m:ss" pace and returns seconds per kilometer
func ParsePace(s string) (float64, error) {
	minutes, secs, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("pace %q is not m:ss", s)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("pace %q: bad minutes", s)
	}
	sec, err := strconv.Atoi(secs)
	if err != nil || sec < 0 || sec > 59 || len(secs) != 2 {
		return 0, fmt.Errorf("pace %q: bad seconds", s)
	}
	total := float64(m*60 + sec)
	if total == 0 {
		return 0, fmt.Errorf("pace %q is zero", s)
	}
	return total, nil
}

// SessionConfig builds the engine configuration
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Units:             c.Units,
		Activity:          c.Activity,
		Indoor:            c.Indoor,
		Profile:           c.Profile,
		CountdownTicks:    c.CountdownTicks,
		TickInterval:      c.TickInterval,
		MaxAccuracyMeters: c.Location.MaxAccuracyMeters,
		Lock:              c.Lock,
	}
}

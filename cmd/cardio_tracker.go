package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/cardio-tracker/internal/bt"
	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/config"
	"github.com/lowaak/cardio-tracker/internal/dashboard"
	"github.com/lowaak/cardio-tracker/internal/export"
	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
	"github.com/lowaak/cardio-tracker/internal/sensors"
	"github.com/lowaak/cardio-tracker/internal/session"
)

const simulatedNotifyInterval = time.Second

func main() {
	fs := config.NewFlagSet("cardio-tracker")
	cfg, err := config.Load(fs, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cfg.ProfileSummary {
		printNutritionPlan(os.Stdout, cfg.Profile)
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	// The terminal UI owns stdout, so logs go to a rotating file and the log panel
	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	}
	defer rotator.Close()
	logs := dashboard.NewLogBuffer()
	logger := log.New(io.MultiWriter(rotator, logs), "", log.LstdFlags|log.Lmicroseconds)

	btManager, mockManager := newBTManager(cfg, logger)
	defer btManager.Shutdown()
	if err := btManager.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth: %w", err)
	}

	store := export.NewFitStore(cfg.Export.Dir, logger)
	journal := export.NewJournal(cfg.Export.Journal, logger)
	engine, err := session.NewEngine(cfg.SessionConfig(), store, journal, logger)
	if err != nil {
		return err
	}
	defer engine.Shutdown()
	logger.Printf("Main: session %s ready", engine.ID())

	hrSampler := sensors.NewHeartRateSampler(btManager, logger, sensors.HeartRateSamplerConfig{
		ScanTimeout: cfg.HeartRate.ScanTimeout,
	}, engine.SubmitHeartRate)
	unregisterStatus := hrSampler.ListenToStatus(engine.SubmitHeartRateStatus)
	defer unregisterStatus()
	remembered := ""
	if mockManager == nil {
		strapMemory := sensors.NewStrapMemory(sensors.DefaultStrapMemoryPath(), logger)
		remembered = strapMemory.PreferredAddress()
		unregisterMemory := hrSampler.ListenToStatus(strapMemory.Remember)
		defer unregisterMemory()
	}
	engine.RegisterProducer(hrSampler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go_func_utils.SafeGo(logger, func() {
		connectStrap(ctx, hrSampler, cfg.HeartRate.Address, remembered, logger)
	})

	if err := startLocation(cfg, engine, mockManager, logger); err != nil {
		return err
	}

	app := tview.NewApplication()
	controller := dashboard.NewController(engine, session.Metadata{
		Activity: cfg.Activity,
		Indoor:   cfg.Indoor,
	}, app.Stop, logger)
	ui := dashboard.NewDashboard(dashboard.NewDashboardArg{
		App:        app,
		Source:     engine,
		Controller: controller,
		Logs:       logs,
		Refresh:    cfg.UI.Refresh,
		Logger:     logger,
	})
	if err := ui.Run(); err != nil {
		return err
	}

	// wait for the journal before reading it back
	engine.Shutdown()
	if engine.Persisted() {
		report, err := export.LoadReport(store, journal, engine.ID())
		if err != nil {
			return fmt.Errorf("read back session: %w", err)
		}
		report.Write(os.Stdout)
	}
	return nil
}

// connectStrap tries the configured strap, then the remembered one, then
// any strap in range
func connectStrap(ctx context.Context, sampler *sensors.HeartRateSampler, configured, remembered string, logger *log.Logger) {
	if configured != "" {
		if err := sampler.Connect(ctx, configured); err != nil {
			logger.Printf("Main: no heart rate strap at %s: %v", configured, err)
		}
		return
	}
	if remembered != "" {
		err := sampler.Connect(ctx, remembered)
		if err == nil {
			return
		}
		logger.Printf("Main: remembered strap %s not found: %v", remembered, err)
		if errors.Is(err, sensors.ErrSamplerReleased) || ctx.Err() != nil {
			return
		}
	}
	if err := sampler.Connect(ctx, ""); err != nil {
		logger.Printf("Main: no heart rate strap: %v", err)
	}
}

// newBTManager returns the real adapter, or a mock strap when simulating.
// The mock manager is returned separately so the simulation can steer it.
func newBTManager(cfg config.Config, logger *log.Logger) (bt.BTManagerInterface, *bt.MockBTManager) {
	if cfg.Simulate.Enabled {
		mock := bt.NewMockBTManager(logger, simulatedNotifyInterval)
		return mock, mock
	}
	return bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.HeartRate.ScanTimeout), nil
}

// startLocation wires the location sampler to the engine. Without a
// simulated track there is no position source in a terminal, so distance
// stays at zero.
func startLocation(cfg config.Config, engine *session.Engine, mock *bt.MockBTManager, logger *log.Logger) error {
	if cfg.Indoor {
		logger.Printf("Main: indoor session, location disabled")
		return nil
	}
	locSampler := sensors.NewLocationSampler(logger, cfg.Location.MaxAccuracyMeters, engine.SubmitLocation)
	engine.RegisterProducer(locSampler)

	if !cfg.Simulate.Enabled {
		logger.Printf("Main: no position source, run with --simulate for a synthetic track")
		return nil
	}

	speed, err := cfg.SimulatedSpeed()
	if err != nil {
		return err
	}
	trackConfig := sensors.DefaultSimulatedTrackConfig()
	trackConfig.SpeedMps = warmUpSpeed(speed, 0)
	start := time.Now()
	var track *sensors.SimulatedTrack
	track = sensors.NewSimulatedTrack(logger, trackConfig, start, func(fix sensors.Fix) {
		locSampler.Accept(fix)
		elapsed := fix.Timestamp.Sub(start)
		track.SetSpeed(warmUpSpeed(speed, elapsed))
		steerHeartRate(mock, elapsed)
	})
	engine.RegisterProducer(track)
	track.Start()
	return nil
}

// warmUpSpeed eases the simulated runner from 70% of the target speed up to
// the target over the first two minutes
func warmUpSpeed(target float64, elapsed time.Duration) float64 {
	const warmUp = 2 * time.Minute
	if elapsed >= warmUp {
		return target
	}
	return target * (0.7 + 0.3*elapsed.Seconds()/warmUp.Seconds())
}

// steerHeartRate lets the simulated strap warm up from rest to a steady effort
func steerHeartRate(mock *bt.MockBTManager, elapsed time.Duration) {
	if mock == nil {
		return
	}
	bpm := 95 + int(elapsed.Seconds()/4)
	if bpm > 155 {
		bpm = 155
	}
	for _, dev := range mock.GetMockDevices() {
		dev.SetHeartRate(uint16(bpm))
	}
}

func printNutritionPlan(w io.Writer, profile calc.UserProfile) {
	plan := calc.PlanNutrition(profile)
	fmt.Fprintf(w, "BMR:           %.0f kcal (%s)\n", plan.BMR, plan.Formula)
	fmt.Fprintf(w, "TDEE:          %.0f kcal (%s)\n", plan.TDEE, profile.ActivityLevel)
	fmt.Fprintf(w, "Calorie goal:  %.0f kcal (%s)\n", plan.CalorieGoal, profile.Goal)
	fmt.Fprintf(w, "Protein:       %.0f g\n", plan.Macros.ProteinG)
	fmt.Fprintf(w, "Carbs:         %.0f g\n", plan.Macros.CarbsG)
	fmt.Fprintf(w, "Fat:           %.0f g\n", plan.Macros.FatG)
	if bf, ok := calc.NavyBodyFat(profile); ok {
		fmt.Fprintf(w, "Body fat:      %.1f %%\n", bf)
	}
	fmt.Fprintf(w, "Max heart rate %d bpm\n", calc.EstimatedMaxHeartRate(profile.Age))
}

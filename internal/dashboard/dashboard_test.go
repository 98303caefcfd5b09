package dashboard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cardio-tracker/internal/calc"
	"github.com/lowaak/cardio-tracker/internal/sensors"
	"github.com/lowaak/cardio-tracker/internal/session"
)

func runningView() session.View {
	return session.View{
		SessionID: "s1",
		Lifecycle: session.Lifecycle{Phase: session.PhaseRunning},
		Units:     calc.UnitsMetric,
		Activity:  calc.ActivityRunning,
		Snapshot: session.Snapshot{
			ElapsedSeconds: 3725,
			DistanceMeters: 12345,
			SpeedMps:       3.5,
			Pace:           calc.PaceFromSpeed(1000.0 / 300),
			Calories:       812,
			HeartRate:      151,
			HasHeartRate:   true,
			Zone:           calc.Zone4,
			Splits: []session.Split{
				{MarkerMeters: 1000, DurationSeconds: 301, Pace: calc.PaceFromSpeed(1000.0 / 301), HeartRate: 140, HasHeartRate: true},
				{MarkerMeters: 2000, DurationSeconds: 295, Pace: calc.PaceFromSpeed(1000.0 / 295)},
			},
		},
		HeartRate: sensors.HeartRateStatus{State: sensors.HeartRateConnected, DeviceName: "Strap", Battery: 77, HasBattery: true},
		GPS:       sensors.AccuracyGood,
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(-3))
	assert.Equal(t, "05:09", FormatElapsed(309.9))
	assert.Equal(t, "1:02:05", FormatElapsed(3725))
}

func TestFormatDistanceAndSpeed(t *testing.T) {
	assert.Equal(t, "12.35 km", FormatDistance(12345, calc.UnitsMetric))
	assert.Equal(t, "1.00 mi", FormatDistance(calc.MetersPerMile, calc.UnitsImperial))
	assert.Equal(t, "12.0 km/h", FormatSpeed(1000.0/300, calc.UnitsMetric))
	assert.Equal(t, "10.0 mph", FormatSpeed(10*calc.MetersPerMile/3600, calc.UnitsImperial))
}

func TestFormatMetrics(t *testing.T) {
	text := FormatMetrics(runningView())
	assert.Contains(t, text, "Running")
	assert.Contains(t, text, "1:02:05")
	assert.Contains(t, text, "12.35 km")
	assert.Contains(t, text, "5:00[white] /km")
	assert.Contains(t, text, "812")
	assert.Contains(t, text, "151[white] bpm  Z4 Threshold")

	v := runningView()
	v.Snapshot = session.Snapshot{}
	v.Lifecycle = session.Lifecycle{Phase: session.PhaseCountingDown, TicksRemaining: 2}
	text = FormatMetrics(v)
	assert.Contains(t, text, "Starting in 2")
	assert.Contains(t, text, calc.PaceUnavailable)
	assert.Contains(t, text, "Heart Rate:  [gray]--")
}

func TestFormatSensors(t *testing.T) {
	text := FormatSensors(runningView())
	assert.Contains(t, text, "Strap  battery 77%")
	assert.Contains(t, text, "[green]GPS[white]  Good")

	v := runningView()
	v.HeartRate = sensors.HeartRateStatus{State: sensors.HeartRateScanning}
	v.GPS = sensors.AccuracyPoor
	v.Diagnostics = session.Diagnostics{LowAccuracy: 2, Inactive: 1}
	text = FormatSensors(v)
	assert.Contains(t, text, "Scanning")
	assert.Contains(t, text, "[red]GPS[white]  Poor")
	assert.Contains(t, text, "3 sample(s) dropped")

	v.Indoor = true
	assert.Contains(t, FormatSensors(v), "indoor")
}

func TestFormatControls(t *testing.T) {
	text := FormatControls(runningView(), 0, calc.FeelingGood, "Paused")
	assert.Contains(t, text, "Pause/Resume")
	assert.Contains(t, text, "Feeling: Good")
	assert.Contains(t, text, "Paused")

	v := runningView()
	v.Lifecycle = session.Lifecycle{Phase: session.PhaseLocked, Prior: session.PhaseRunning}
	v.VolumePresses = 2
	text = FormatControls(v, 0.5, calc.FeelingUnrated, "")
	assert.Contains(t, text, "LOCKED")
	assert.Contains(t, text, "[==========          ]")
	assert.Contains(t, text, "volume (2)")
}

func TestSplitRows(t *testing.T) {
	rows := SplitRows(runningView())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1 km", "05:01", "5:01", "140"}, rows[0])
	assert.Equal(t, []string{"2 km", "04:55", "4:55", "--"}, rows[1])
}

func TestDashboard_Render(t *testing.T) {
	engine := &fakeCommands{view: runningView()}
	controller, _ := newTestController(engine)
	d := NewDashboard(NewDashboardArg{
		App:        tview.NewApplication(),
		Source:     engine,
		Controller: controller,
		Logger:     newTestLogger(),
	})

	assert.Contains(t, d.metricsPanel.GetText(true), "12.35 km")
	assert.Contains(t, d.sensorsPanel.GetText(true), "Strap")
	assert.Equal(t, "Split", d.splitsTable.GetCell(0, 0).Text)
	assert.Equal(t, "5:01", d.splitsTable.GetCell(1, 2).Text)
	assert.Equal(t, 3, d.splitsTable.GetRowCount())

	v := runningView()
	v.Snapshot.Splits = nil
	d.Render(v)
	assert.Equal(t, 1, d.splitsTable.GetRowCount())
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer()
	ch := make(chan string, 10)
	unregister := b.ListenToLog(ch)
	defer unregister()

	fmt.Fprint(b, "first\nsecond\nthi")
	assert.Equal(t, []string{"first", "second"}, b.Tail(5))
	fmt.Fprint(b, "rd\n")
	assert.Equal(t, []string{"second", "third"}, b.Tail(2))
	assert.Empty(t, b.Tail(0))
	assert.Len(t, ch, 3)

	for i := 0; i < maxLogLines+10; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}
	tail := b.Tail(maxLogLines + 50)
	assert.Len(t, tail, maxLogLines)
	assert.Equal(t, fmt.Sprintf("line %d", maxLogLines+9), tail[len(tail)-1])
}

func TestLogBuffer_ConcurrentWrites(t *testing.T) {
	b := NewLogBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fmt.Fprintf(b, "writer %d line %d\n", i, j)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, b.Tail(1000), 400)
}

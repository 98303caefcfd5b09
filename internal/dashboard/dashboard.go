// Package dashboard is the terminal UI observer of a live session: it renders
// published views with tview and maps keys to session commands.
package dashboard

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/cardio-tracker/internal/go_func_utils"
	"github.com/lowaak/cardio-tracker/internal/session"
)

const defaultRefresh = 250 * time.Millisecond

var splitHeaders = []string{"Split", "Time", "Pace", "HR"}

// ViewSource publishes session views
type ViewSource interface {
	View() session.View
	ListenToView(ch chan<- session.View) func()
}

// Dashboard lays out the metrics, sensor, controls, splits and log panels
type Dashboard struct {
	logger     *log.Logger
	app        *tview.Application
	source     ViewSource
	controller *Controller
	logs       *LogBuffer
	refresh    time.Duration

	mainFlex      *tview.Flex
	metricsPanel  *tview.TextView
	sensorsPanel  *tview.TextView
	controlsPanel *tview.TextView
	splitsTable   *tview.Table
	logView       *tview.TextView

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDashboardArg holds the arguments for creating a Dashboard
type NewDashboardArg struct {
	App        *tview.Application
	Source     ViewSource
	Controller *Controller
	Logs       *LogBuffer
	Refresh    time.Duration
	Logger     *log.Logger
}

func NewDashboard(args NewDashboardArg) *Dashboard {
	if args.Logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if args.App == nil {
		panic("Dashboard: app cannot be nil")
	}
	if args.Source == nil {
		panic("Dashboard: source cannot be nil")
	}
	if args.Controller == nil {
		panic("Dashboard: controller cannot be nil")
	}
	if args.Logs == nil {
		args.Logs = NewLogBuffer()
	}
	if args.Refresh <= 0 {
		args.Refresh = defaultRefresh
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		logger:     args.Logger,
		app:        args.App,
		source:     args.Source,
		controller: args.Controller,
		logs:       args.Logs,
		refresh:    args.Refresh,
		ctx:        ctx,
		cancel:     cancel,
	}
	d.initialize()
	d.setupKeyboardHandlers()
	d.Render(d.source.View())
	return d
}

func (d *Dashboard) initialize() {
	// Don't use SetChangedFunc with app.Draw(), it can hang once the app is stopped
	d.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.metricsPanel.SetBorder(true).SetTitle(" Session ")

	d.sensorsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.sensorsPanel.SetBorder(true).SetTitle(" Sensors ")

	d.controlsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.controlsPanel.SetBorder(true).SetTitle(" Controls ")

	d.splitsTable = tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(false, false)
	d.splitsTable.SetBorder(true).SetTitle(" Splits ")

	d.logView = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(false)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.metricsPanel, 0, 3, false).
		AddItem(d.sensorsPanel, 6, 0, false).
		AddItem(d.controlsPanel, 6, 0, false)

	rightColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.splitsTable, 0, 1, false).
		AddItem(d.logView, 0, 1, false)

	d.mainFlex = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftColumn, 0, 1, true).
		AddItem(rightColumn, 0, 1, false)
}

func (d *Dashboard) setupKeyboardHandlers() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if !d.controller.HandleKey(event) {
			return event
		}
		d.Render(d.source.View())
		return nil
	})
}

// Render writes a view into the panels. Outside of the UI goroutine it must
// run through QueueUpdateDraw.
func (d *Dashboard) Render(v session.View) {
	d.metricsPanel.SetText(FormatMetrics(v))
	d.sensorsPanel.SetText(FormatSensors(v))
	d.controlsPanel.SetText(FormatControls(v, d.controller.DragOffset(), d.controller.Feeling(), d.controller.Status()))

	d.splitsTable.Clear()
	for col, header := range splitHeaders {
		d.splitsTable.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}
	for row, cells := range SplitRows(v) {
		for col, text := range cells {
			d.splitsTable.SetCell(row+1, col, tview.NewTableCell(text).SetExpansion(1))
		}
	}
}

func (d *Dashboard) renderLogs() {
	_, _, _, height := d.logView.GetInnerRect()
	if height <= 0 {
		height = 10
	}
	d.logView.SetText(strings.Join(d.logs.Tail(height), "\n"))
}

// Run starts the UI and blocks until it exits
func (d *Dashboard) Run() error {
	d.wg.Add(1)
	go_func_utils.SafeGo(d.logger, func() { d.listen() })

	d.app.SetRoot(d.mainFlex, true)
	err := d.app.Run()

	d.cancel()
	d.wg.Wait()
	return err
}

// Stop stops the UI framework
func (d *Dashboard) Stop() {
	d.app.Stop()
}

// listen redraws on every published view, every new log line and on a
// refresh tick for the controller state
func (d *Dashboard) listen() {
	defer d.wg.Done()

	viewCh := make(chan session.View, 1)
	unregisterView := d.source.ListenToView(viewCh)
	defer unregisterView()

	logCh := make(chan string, 1)
	unregisterLog := d.logs.ListenToLog(logCh)
	defer unregisterLog()

	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case v := <-viewCh:
			d.app.QueueUpdateDraw(func() { d.Render(v) })
		case <-logCh:
			d.app.QueueUpdateDraw(d.renderLogs)
		case <-ticker.C:
			d.app.QueueUpdateDraw(func() {
				d.Render(d.source.View())
				d.renderLogs()
			})
		}
	}
}

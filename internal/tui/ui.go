package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/runlab/runlab/internal/api"
	"github.com/runlab/runlab/internal/experiment"
)

const (
	tableTitle     = "Runs"
	detailTitle    = "Run Detail"
	filterPageName = "filter"
)

// Option configures UI behaviour.
type Option func(*UI)

// UI coordinates the interactive experiment monitor backed by tview.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	table  *tview.Table
	detail *tview.TextView
	events chan experiment.Event

	runs map[string]*runState

	visible       []string
	selected      string
	detailPretty  bool
	filter        string
	filterExpr    *regexp.Regexp
	detailFocused bool

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type runState struct {
	name      string
	id        string
	firstSeen time.Time
	lastEvent time.Time
	state     api.RunState
	message   string
	report    api.RunReport
}

// New constructs a UI configured with the supplied options.
func New(specs []experiment.RunSpec, opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	detail := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	detail.SetBorder(true).SetTitle(detailTitle)
	detail.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(detail, 0, 2, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:          app,
		pages:        pages,
		table:        table,
		detail:       detail,
		events:       make(chan experiment.Event, 256),
		runs:         make(map[string]*runState),
		detailPretty: true,
		done:         make(chan struct{}),
	}

	for _, spec := range specs {
		ui.runs[spec.Name] = &runState{
			name:  spec.Name,
			state: api.RunStatePending,
			report: api.RunReport{
				Name:  spec.Name,
				State: api.RunStatePending,
			},
		}
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderDetailLocked()
	})

	table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderDetailLocked()
	})

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where pool events should be delivered.
func (u *UI) EventSink() chan<- experiment.Event {
	return u.events
}

// CloseEvents releases the event channel, allowing internal goroutines to
// exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until
// Stop is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.queueRefresh(u.applyEvent(evt))
		case <-tick:
			if !draining {
				u.refreshAge()
			}
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.detailFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.detail)
	}
	u.detailFocused = !u.detailFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.detailPretty = !u.detailPretty
	u.renderDetailLocked()
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	form.SetBorder(true).SetTitle("Filter Runs")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		u.mu.Lock()
		u.filter = ""
		u.filterExpr = nil
		u.mu.Unlock()
		u.queueRefresh(true)
		return
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
		return
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.mu.Unlock()
	u.queueRefresh(true)
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	// Ensure previous filter prompt is removed to avoid stacking pages.
	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

// applyEvent folds an event into the run table state and reports whether
// the detail pane needs a redraw. Drawing is left to the caller.
func (u *UI) applyEvent(evt experiment.Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	u.mu.Lock()

	state := u.runs[evt.Run]
	if state == nil {
		state = &runState{name: evt.Run, state: api.RunStatePending}
		state.report.Name = evt.Run
		u.runs[evt.Run] = state
	}
	state.lastEvent = evt.Timestamp
	if evt.ID != "" {
		state.id = evt.ID
		state.report.ID = evt.ID
	}
	state.report.LastEvent = evt.Timestamp

	switch evt.Type {
	case experiment.EventTypeStarted:
		state.state = api.RunStateRunning
		state.firstSeen = evt.Timestamp
		state.report.State = api.RunStateRunning
		state.report.StartedAt = evt.Timestamp
	case experiment.EventTypeFinished:
		state.state = api.RunStateFinished
		state.report.State = api.RunStateFinished
		if evt.Result != nil {
			status := evt.Result.ExitStatus
			state.report.ExitStatus = &status
			state.report.CPUTimeSeconds = evt.Result.CPUTime.Seconds()
			state.report.WallClockTimeSeconds = evt.Result.WallClockTime.Seconds()
			state.report.PeakMemoryMiB = evt.Result.PeakMemoryMiB
			state.report.CPUTimeExceeded = evt.Result.CPUTimeExceeded
			state.report.WallClockTimeExceeded = evt.Result.WallClockTimeExceeded
			state.report.MemoryExceeded = evt.Result.MemoryExceeded
			state.message = describeResult(evt.Result.ExitStatus, state.report)
		}
	case experiment.EventTypeError:
		state.state = api.RunStateError
		state.report.State = api.RunStateError
		if evt.Err != nil {
			state.message = evt.Err.Error()
			state.report.Message = evt.Err.Error()
		}
	}

	selected := state.name == u.selected
	updateDetail := selected || u.selected == ""
	u.mu.Unlock()

	return updateDetail
}

func describeResult(status int, report api.RunReport) string {
	switch {
	case report.CPUTimeExceeded:
		return "cpu time limit exceeded"
	case report.WallClockTimeExceeded:
		return "wall-clock time limit exceeded"
	case report.MemoryExceeded:
		return "memory limit exceeded"
	case status < 0:
		return fmt.Sprintf("killed by signal %d", -status)
	case status > 0:
		return fmt.Sprintf("exit code %d", status)
	default:
		return "ok"
	}
}

func (u *UI) refreshAge() {
	u.queueRefresh(false)
}

func (u *UI) queueRefresh(updateDetail bool) {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		if updateDetail {
			u.renderDetailLocked()
		}
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"RUN", "STATE", "EXIT", "CPU(S)", "WALL(S)", "MEM(MIB)", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	names := make([]string, 0, len(u.runs))
	for name := range u.runs {
		if u.filterExpr != nil && !u.filterExpr.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	u.visible = names

	if u.filter != "" {
		u.table.SetTitle(fmt.Sprintf("%s /%s/", tableTitle, u.filter))
	} else {
		u.table.SetTitle(tableTitle)
	}

	for row, name := range names {
		state := u.runs[name]
		age := "-"
		if !state.firstSeen.IsZero() {
			age = time.Since(state.firstSeen).Truncate(time.Second).String()
		}
		exit := "-"
		if state.report.ExitStatus != nil {
			exit = fmt.Sprintf("%d", *state.report.ExitStatus)
		}
		cpu := "-"
		wall := "-"
		mem := "-"
		if state.state == api.RunStateFinished {
			cpu = fmt.Sprintf("%.2f", state.report.CPUTimeSeconds)
			wall = fmt.Sprintf("%.2f", state.report.WallClockTimeSeconds)
			mem = fmt.Sprintf("%.1f", state.report.PeakMemoryMiB)
		}
		message := state.message
		if len(message) > 80 {
			message = message[:77] + "..."
		}

		values := []string{
			name,
			formatState(state.state),
			exit,
			cpu,
			wall,
			mem,
			age,
			message,
		}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			if col == 0 {
				cell = cell.SetReference(name)
			}
			u.table.SetCell(row+1, col, cell)
		}
	}

	u.ensureSelectionLocked()
}

func (u *UI) renderDetailLocked() {
	u.detail.Clear()
	var state *runState
	if u.selected != "" {
		state = u.runs[u.selected]
	}
	if state == nil {
		u.detail.SetTitle(detailTitle)
		return
	}

	u.detail.SetTitle(fmt.Sprintf("%s (%s)", detailTitle, state.name))

	var data []byte
	var err error
	if u.detailPretty {
		data, err = json.MarshalIndent(state.report, "", "  ")
	} else {
		data, err = json.Marshal(state.report)
	}
	if err != nil {
		fmt.Fprintf(u.detail, "{\"error\":\"%v\"}\n", err)
		return
	}
	fmt.Fprintf(u.detail, "%s\n", data)
}

func (u *UI) ensureSelectionLocked() {
	if len(u.visible) == 0 {
		u.selected = ""
		u.table.Select(0, 0)
		return
	}

	idx := 0
	if u.selected != "" {
		for i, name := range u.visible {
			if name == u.selected {
				idx = i
				break
			}
		}
	} else {
		u.selected = u.visible[0]
	}

	if idx >= len(u.visible) {
		idx = len(u.visible) - 1
	}
	if u.selected == "" && len(u.visible) > 0 {
		u.selected = u.visible[idx]
	}
	u.table.Select(idx+1, 0)
}

func (u *UI) syncSelection(row int) {
	if row <= 0 || row-1 >= len(u.visible) {
		return
	}
	u.selected = u.visible[row-1]
}

func formatState(s api.RunState) string {
	if s == "" {
		return "-"
	}
	str := string(s)
	if len(str) <= 1 {
		return strings.ToUpper(str)
	}
	return strings.ToUpper(str[:1]) + str[1:]
}

// Package ui is the terminal front end: a mouse-driven canvas of agent
// boxes, a generated-files browser, a prompt line and a status bar. All
// widget mutation happens on the tview event loop; background goroutines
// hand results over with QueueUpdateDraw.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tcell "github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agentboard/internal/backend"
	"agentboard/internal/board"
	"agentboard/internal/bus"
	"agentboard/internal/domain"
	"agentboard/internal/interact"
	"agentboard/internal/render"
	"agentboard/internal/store/sqlite"
	"agentboard/internal/transcript"
	"agentboard/internal/workflow"
)

const (
	pageMain    = "main"
	pageAlert   = "alert"
	pageInput   = "input"
	pageRestore = "restore"

	defaultTruncate = 120

	exampleOriginX = 80.0
	exampleOriginY = 120.0
	exampleGap     = 100.0
)

type Config struct {
	Backend *backend.Client
	Stream  *backend.Stream
	Store   *sqlite.Store
	Bus     *bus.Bus

	Board *board.Board
	Log   *transcript.Log

	Theme            string
	GroupGap         time.Duration
	Truncate         int
	HealthInterval   time.Duration
	Autosave         bool
	AutosaveInterval time.Duration
	ConversationID   string

	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.Board == nil {
		c.Board = board.New()
	}
	if c.Log == nil {
		c.Log = transcript.NewLog()
	}
	if c.GroupGap <= 0 {
		c.GroupGap = transcript.DefaultGroupGap
	}
	if c.Truncate <= 0 {
		c.Truncate = defaultTruncate
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// App owns the widget tree and glues the board, the workflow runner and
// the backend stream together.
type App struct {
	cfg    Config
	logger *log.Logger
	theme  Theme

	app    *tview.Application
	pages  *tview.Pages
	canvas *CanvasView
	files  *FilesPanel
	prompt *tview.InputField
	status *tview.TextView

	alertModal *tview.Modal
	input      *tview.InputField
	inputDone  func(string)
	modal      string
	prevFocus  tview.Primitive

	board   *board.Board
	ctrl    *interact.Controller
	tlog    *transcript.Log
	runner  *workflow.Runner
	monitor *backend.Monitor

	ctx context.Context
	wg  sync.WaitGroup

	// UI goroutine only.
	backendUp bool
	streamUp  bool
	wfState   domain.WorkflowState
	note      string
}

func New(cfg Config) (*App, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend client is required")
	}
	if cfg.Stream == nil {
		return nil, errors.New("backend stream is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	cfg = cfg.withDefaults()

	a := &App{
		cfg:     cfg,
		logger:  cfg.Logger,
		theme:   ThemeByName(cfg.Theme),
		app:     tview.NewApplication(),
		board:   cfg.Board,
		tlog:    cfg.Log,
		ctx:     context.Background(),
		wfState: domain.WorkflowIdle,
	}
	a.ctrl = interact.NewController(a.board)

	a.canvas = NewCanvasView(a.board, a.ctrl, a.theme)
	a.canvas.SetMessageSource(a.tlog.All)
	a.canvas.SetPopupLimits(cfg.GroupGap, cfg.Truncate)
	a.canvas.SetChangedFunc(func() {
		_ = a.cfg.Bus.Publish(bus.Event{Topic: bus.TopicBoardChanged})
	})

	a.files = NewFilesPanel(a.app, cfg.Backend, cfg.Bus, a.logger, a.setStatusNote)

	a.runner = workflow.New(cfg.Backend, a.tlog,
		workflow.Config{ConversationID: cfg.ConversationID},
		a.logger, a.onWorkflowState, a.onWorkflowOutcome)

	a.monitor = backend.NewMonitor(cfg.Backend,
		backend.MonitorConfig{Interval: cfg.HealthInterval},
		a.logger, a.onHealthChange)

	a.composeLayout()
	a.configureInteraction()
	return a, nil
}

func (a *App) composeLayout() {
	a.prompt = tview.NewInputField().SetLabel("Prompt: ")
	a.prompt.SetTitle("Task (Enter run, Tab cycle focus)").SetBorder(true)

	a.status = tview.NewTextView().SetDynamicColors(false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.files.List(), 0, 1, false).
		AddItem(a.files.Code(), 0, 2, false)

	a.canvas.SetTitle("Board (n new, c connect, p pin, e/i json, s png, w save, L example, t theme)").
		SetBorder(true)

	center := tview.NewFlex().
		AddItem(a.canvas, 0, 3, true).
		AddItem(right, 0, 1, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(center, 0, 1, true).
		AddItem(a.prompt, 3, 0, false).
		AddItem(a.status, 1, 0, false)

	a.alertModal = tview.NewModal().AddButtons([]string{"OK"})
	a.input = tview.NewInputField()
	a.input.SetBorder(true)

	a.pages = tview.NewPages().
		AddPage(pageMain, root, true, true).
		AddPage(pageAlert, a.alertModal, true, false).
		AddPage(pageInput, centered(a.input, 60, 3), true, false)
}

func (a *App) configureInteraction() {
	a.prompt.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.submitPrompt()
		}
	})

	a.alertModal.SetDoneFunc(func(int, string) {
		a.closeModal(pageAlert)
	})

	a.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := strings.TrimSpace(a.input.GetText())
			done := a.inputDone
			a.closeModal(pageInput)
			if done != nil && text != "" {
				done(text)
			}
		case tcell.KeyEscape:
			a.closeModal(pageInput)
		}
	})

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyF10 {
			a.app.Stop()
			return nil
		}
		if a.modal != "" {
			return event
		}
		switch event.Key() {
		case tcell.KeyF5:
			a.files.Refresh()
			a.setStatusNote("Refreshing files")
			return nil
		case tcell.KeyTab:
			a.toggleFocus()
			return nil
		}
		if a.app.GetFocus() == a.prompt {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.canvas)
				return nil
			}
			return event
		}
		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'e':
				a.exportJSON()
				return nil
			case 'i':
				a.showInput("Import board from JSON file: ", a.importJSON)
				return nil
			case 's':
				a.exportPNG()
				return nil
			case 'w':
				a.showInput("Save board as: ", a.saveNamed)
				return nil
			case 'L':
				a.loadExample()
				return nil
			case 't':
				a.toggleTheme()
				return nil
			}
		}
		return event
	})

	a.cfg.Stream.Subscribe(backend.EventAgentMessage, func(ev backend.StreamEvent) {
		a.tlog.Append(ev.AgentMessage())
		a.app.QueueUpdateDraw(func() {})
	})
	a.cfg.Stream.Subscribe(backend.EventConnected, func(backend.StreamEvent) {
		a.app.QueueUpdateDraw(func() {
			a.streamUp = true
			a.setStatusNote("Stream connected")
		})
	})
	a.cfg.Stream.Subscribe(backend.EventDisconnected, func(backend.StreamEvent) {
		a.app.QueueUpdateDraw(func() {
			a.streamUp = false
			a.setStatusNote("Stream disconnected")
		})
	})
	a.cfg.Stream.Subscribe(backend.EventWorkflowStatus, func(ev backend.StreamEvent) {
		a.app.QueueUpdateDraw(func() {
			a.setStatusNote("Backend: " + ev.Status)
		})
	})
}

// Run starts the background loops, offers to restore the autosaved board
// and blocks inside the tview event loop until the user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx

	go func() {
		<-ctx.Done()
		a.app.Stop()
	}()

	a.app.SetRoot(a.pages, true).EnableMouse(true).SetFocus(a.canvas)

	a.monitor.Start(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfg.Stream.Run(ctx)
	}()
	a.files.Start(ctx)
	a.startAutosave(ctx)
	a.watchFileSelect(ctx)
	a.offerRestore(ctx)
	a.refreshStatus()

	err := a.app.Run()
	cancel()
	a.monitor.Wait()
	a.runner.Wait()
	a.wg.Wait()
	if a.cfg.Store != nil && a.cfg.Autosave {
		a.writeAutosave(a.board.Snapshot())
	}
	return err
}

func (a *App) submitPrompt() {
	text := strings.TrimSpace(a.prompt.GetText())
	if text == "" {
		a.alert("Enter a task prompt first.")
		return
	}
	boxes := a.board.Boxes()
	if len(boxes) == 0 {
		a.alert("Add at least one agent box before running (press n on the board).")
		return
	}
	a.board.SetPrompt(text)
	err := a.runner.RunManual(a.ctx, text, boxes, a.board.Connections())
	switch {
	case errors.Is(err, workflow.ErrBusy):
		a.setStatusNote("A workflow is already running")
	case err != nil:
		a.setStatusNote(err.Error())
	default:
		a.prompt.SetText("")
	}
}

func (a *App) loadExample() {
	go func() {
		wf, err := a.cfg.Backend.ExampleWorkflow(a.ctx)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.setStatusNote(fmt.Sprintf("load example: %v", err))
				return
			}
			n := placeExample(a.board, wf)
			a.ctrl.SetConnectMode(false)
			a.setStatusNote(fmt.Sprintf("Loaded example workflow with %d agents", n))
		})
	}()
}

func (a *App) exportJSON() {
	data, err := a.board.ExportJSON()
	if err != nil {
		a.setStatusNote(fmt.Sprintf("export: %v", err))
		return
	}
	name := exportFilename("board", time.Now(), "json")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		a.setStatusNote(fmt.Sprintf("export: %v", err))
		return
	}
	a.setStatusNote("Exported " + name)
}

func (a *App) importJSON(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.setStatusNote(fmt.Sprintf("import: %v", err))
		return
	}
	if err := a.board.ImportJSON(data); err != nil {
		a.alert("Import failed: " + err.Error())
		return
	}
	_ = a.cfg.Bus.Publish(bus.Event{Topic: bus.TopicBoardChanged})
	a.setStatusNote("Imported " + filepath.Base(path))
}

func (a *App) exportPNG() {
	name := exportFilename("board", time.Now(), "png")
	err := render.WritePNG(a.board.Snapshot(), name, render.Options{Dark: a.theme.Name == "dark"})
	if errors.Is(err, render.ErrEmptyBoard) {
		a.setStatusNote("Nothing to export")
		return
	}
	if err != nil {
		a.setStatusNote(fmt.Sprintf("export png: %v", err))
		return
	}
	a.setStatusNote("Exported " + name)
}

func (a *App) saveNamed(name string) {
	if a.cfg.Store == nil {
		a.setStatusNote("No workspace database configured")
		return
	}
	snap := a.board.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 3*time.Second)
		defer cancel()
		err := a.cfg.Store.Save(ctx, name, snap)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.setStatusNote(fmt.Sprintf("save board: %v", err))
				return
			}
			a.setStatusNote("Saved board " + name)
		})
	}()
}

// startAutosave persists the board on a ticker whenever a change arrived
// over the bus since the last write. The snapshot is taken on the UI
// goroutine; only the database write runs in the background.
func (a *App) startAutosave(ctx context.Context) {
	if a.cfg.Store == nil || !a.cfg.Autosave {
		return
	}
	changes := a.cfg.Bus.Subscribe(bus.TopicBoardChanged)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.AutosaveInterval)
		defer ticker.Stop()
		dirty := false
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				dirty = true
			case <-ticker.C:
				if !dirty {
					continue
				}
				dirty = false
				a.app.QueueUpdateDraw(func() {
					snap := a.board.Snapshot()
					go a.writeAutosave(snap)
				})
			}
		}
	}()
}

func (a *App) watchFileSelect(ctx context.Context) {
	selects := a.cfg.Bus.Subscribe(bus.TopicFileSelect)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-selects:
				if !ok {
					return
				}
				a.app.QueueUpdateDraw(func() {
					a.setStatusNote("Viewing " + ev.Name)
				})
			}
		}
	}()
}

func (a *App) writeAutosave(snap board.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.cfg.Store.Save(ctx, sqlite.AutosaveSlot, snap); err != nil {
		a.logger.Printf("autosave failed: %v", err)
	}
}

// offerRestore shows a modal when a previous session left an autosaved
// board behind. Runs before the event loop starts.
func (a *App) offerRestore(ctx context.Context) {
	if a.cfg.Store == nil {
		return
	}
	loadCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	snap, err := a.cfg.Store.Load(loadCtx, sqlite.AutosaveSlot)
	if err != nil {
		if !errors.Is(err, sqlite.ErrNotFound) {
			a.logger.Printf("load autosave: %v", err)
		}
		return
	}
	if len(snap.Boxes) == 0 {
		return
	}

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Restore last session? (%d boxes, %d connections)",
			len(snap.Boxes), len(snap.Connections))).
		AddButtons([]string{"Restore", "Discard"})
	modal.SetDoneFunc(func(_ int, label string) {
		a.pages.RemovePage(pageRestore)
		a.modal = ""
		a.app.SetFocus(a.canvas)
		if label != "Restore" {
			return
		}
		if err := a.board.Restore(snap); err != nil {
			a.setStatusNote(fmt.Sprintf("restore: %v", err))
			return
		}
		a.prompt.SetText(a.board.Prompt())
		a.setStatusNote("Session restored")
	})
	a.pages.AddPage(pageRestore, modal, true, true)
	a.app.SetFocus(modal)
	a.modal = pageRestore
}

func (a *App) onWorkflowState(state domain.WorkflowState, detail string) {
	if state == domain.WorkflowRunning {
		a.tlog.Clear()
	}
	a.app.QueueUpdateDraw(func() {
		a.wfState = state
		a.setStatusNote(detail)
	})
}

func (a *App) onWorkflowOutcome(out workflow.Outcome) {
	if out.Flow != nil && len(out.Flow.GeneratedFiles) > 0 {
		for _, name := range out.Flow.GeneratedFiles {
			_ = a.cfg.Bus.Publish(bus.Event{Topic: bus.TopicFileGenerate, Name: name})
		}
	}
	a.app.QueueUpdateDraw(func() {
		if out.Err != nil {
			a.setStatusNote(fmt.Sprintf("Workflow failed after %s: %v",
				out.Duration.Round(time.Millisecond), out.Err))
			return
		}
		a.setStatusNote(fmt.Sprintf("Workflow %s in %s",
			a.wfState, out.Duration.Round(time.Millisecond)))
	})
}

func (a *App) onHealthChange(healthy bool) {
	a.app.QueueUpdateDraw(func() {
		a.backendUp = healthy
		a.refreshStatus()
	})
}

func (a *App) toggleTheme() {
	if a.theme.Name == "dark" {
		a.theme = LightTheme()
	} else {
		a.theme = DarkTheme()
	}
	a.canvas.SetTheme(a.theme)
	a.setStatusNote("Theme: " + a.theme.Name)
}

func (a *App) toggleFocus() {
	switch a.app.GetFocus() {
	case a.prompt:
		a.app.SetFocus(a.canvas)
	case a.canvas:
		a.app.SetFocus(a.files.List())
	default:
		a.app.SetFocus(a.prompt)
	}
}

func (a *App) alert(msg string) {
	a.prevFocus = a.app.GetFocus()
	a.alertModal.SetText(msg)
	a.pages.ShowPage(pageAlert)
	a.app.SetFocus(a.alertModal)
	a.modal = pageAlert
}

func (a *App) showInput(label string, done func(string)) {
	a.prevFocus = a.app.GetFocus()
	a.input.SetLabel(label).SetText("")
	a.inputDone = done
	a.pages.ShowPage(pageInput)
	a.app.SetFocus(a.input)
	a.modal = pageInput
}

func (a *App) closeModal(page string) {
	a.pages.HidePage(page)
	a.inputDone = nil
	a.modal = ""
	if a.prevFocus != nil {
		a.app.SetFocus(a.prevFocus)
		a.prevFocus = nil
		return
	}
	a.app.SetFocus(a.canvas)
}

// setStatusNote updates the transient part of the status bar. UI goroutine
// only; background code goes through QueueUpdateDraw.
func (a *App) setStatusNote(msg string) {
	a.note = time.Now().Format("15:04:05") + " " + msg
	a.refreshStatus()
}

func (a *App) refreshStatus() {
	a.status.SetText(statusLine(a.backendUp, a.streamUp, a.wfState, a.note))
}

// placeExample replaces the board contents with the example agents laid
// out left to right, each one chained to the next. Returns the number of
// boxes placed.
func placeExample(b *board.Board, wf domain.ExampleWorkflow) int {
	b.Clear()
	prev := ""
	for i, agent := range wf.Agents {
		box := b.AddBox(exampleOriginX+float64(i)*(domain.DefaultBoxWidth+exampleGap), exampleOriginY)
		b.UpdateBox(box.ID, func(bx *domain.AgentBox) {
			bx.AgentType = agent.Type
			bx.Role = agent.Role
		})
		if prev != "" {
			b.Connect(prev, domain.SideRight, box.ID, domain.SideLeft)
		}
		prev = box.ID
	}
	return len(wf.Agents)
}

func statusLine(backendUp bool, streamUp bool, state domain.WorkflowState, note string) string {
	b := "down"
	if backendUp {
		b = "up"
	}
	s := "offline"
	if streamUp {
		s = "live"
	}
	line := fmt.Sprintf(" backend %s | stream %s | workflow %s", b, s, state)
	if note != "" {
		line += " | " + note
	}
	return line
}

func exportFilename(prefix string, t time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, t.Format("20060102-150405"), ext)
}

// centered wraps a primitive in spacer flexes so a page shows it as a
// fixed-size box in the middle of the screen.
func centered(p tview.Primitive, width int, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

package ui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/atotto/clipboard"
	tcell "github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agentboard/internal/bus"
)

type fileStore interface {
	ListGenerated(ctx context.Context) ([]string, error)
	ReadGenerated(ctx context.Context, name string) (string, error)
	DeleteGenerated(ctx context.Context, name string) error
}

// FilesPanel shows the backend's generated files next to a read-only code
// view. Selection and generation events travel over the bus so the panel
// stays decoupled from the workflow code.
type FilesPanel struct {
	app    *tview.Application
	store  fileStore
	events *bus.Bus
	logger *log.Logger
	status func(string)

	list *tview.List
	code *tview.TextView

	ctx     context.Context
	version uint64
	current atomic.Value
}

func NewFilesPanel(app *tview.Application, store fileStore, events *bus.Bus, logger *log.Logger, status func(string)) *FilesPanel {
	if logger == nil {
		logger = log.Default()
	}
	if status == nil {
		status = func(string) {}
	}
	p := &FilesPanel{
		app:    app,
		store:  store,
		events: events,
		logger: logger,
		status: status,
		ctx:    context.Background(),
	}
	p.current.Store("")

	p.list = tview.NewList().ShowSecondaryText(false)
	p.list.SetTitle("Generated (Enter view, y copy, d delete)").SetBorder(true)
	p.list.SetSelectedFunc(func(_ int, name string, _ string, _ rune) {
		p.open(name)
	})
	p.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'y':
			p.CopyCurrent()
			return nil
		case 'd':
			p.DeleteCurrent()
			return nil
		}
		return event
	})

	p.code = tview.NewTextView().SetDynamicColors(false).SetWrap(false)
	p.code.SetTitle("Code").SetBorder(true)

	return p
}

func (p *FilesPanel) List() *tview.List     { return p.list }
func (p *FilesPanel) Code() *tview.TextView { return p.code }
func (p *FilesPanel) CurrentFile() string   { return p.current.Load().(string) }

// Start binds the panel to the run context and refreshes whenever a
// workflow reports new generated files.
func (p *FilesPanel) Start(ctx context.Context) {
	p.ctx = ctx
	ch := p.events.Subscribe(bus.TopicFileGenerate)
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.events.Unsubscribe(bus.TopicFileGenerate)
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				p.Refresh()
			}
		}
	}()
	p.Refresh()
}

// Refresh reloads the file list. Stale responses from overlapping
// refreshes are dropped.
func (p *FilesPanel) Refresh() {
	v := atomic.AddUint64(&p.version, 1)
	go func() {
		names, err := p.store.ListGenerated(p.ctx)
		if atomic.LoadUint64(&p.version) != v {
			return
		}
		p.app.QueueUpdateDraw(func() {
			p.list.Clear()
			if err != nil {
				p.logger.Printf("list generated files: %v", err)
				p.list.AddItem(fmt.Sprintf("load error: %v", err), "", 0, nil)
				return
			}
			for _, name := range names {
				p.list.AddItem(name, "", 0, nil)
			}
			if len(names) == 0 {
				p.code.SetText("")
				p.current.Store("")
			}
		})
	}()
}

func (p *FilesPanel) open(name string) {
	go func() {
		body, err := p.store.ReadGenerated(p.ctx, name)
		p.app.QueueUpdateDraw(func() {
			if err != nil {
				p.status(fmt.Sprintf("read %s: %v", name, err))
				return
			}
			p.current.Store(name)
			p.code.SetText(body)
			p.code.ScrollToBeginning()
			p.code.SetTitle("Code: " + name)
		})
		if err == nil {
			_ = p.events.Publish(bus.Event{Topic: bus.TopicFileSelect, Name: name})
		}
	}()
}

// CopyCurrent puts the viewed file's contents on the system clipboard.
func (p *FilesPanel) CopyCurrent() {
	name := p.CurrentFile()
	if name == "" {
		p.status("Nothing to copy")
		return
	}
	if err := clipboard.WriteAll(p.code.GetText(true)); err != nil {
		p.status(fmt.Sprintf("clipboard unavailable: %v", err))
		return
	}
	p.status("Copied " + name)
}

func (p *FilesPanel) DeleteCurrent() {
	name := p.CurrentFile()
	if name == "" {
		p.status("Nothing to delete")
		return
	}
	go func() {
		err := p.store.DeleteGenerated(p.ctx, name)
		p.app.QueueUpdateDraw(func() {
			if err != nil {
				p.status(fmt.Sprintf("delete %s: %v", name, err))
				return
			}
			p.current.Store("")
			p.code.SetText("")
			p.code.SetTitle("Code")
			p.status("Deleted " + name)
		})
		if err == nil {
			p.Refresh()
		}
	}()
}

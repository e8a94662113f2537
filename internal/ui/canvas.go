package ui

import (
	"math"
	"time"

	tcell "github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agentboard/internal/board"
	"agentboard/internal/domain"
	"agentboard/internal/geom"
	"agentboard/internal/interact"
	"agentboard/internal/transcript"
)

// One terminal cell covers this many board-space pixels at zoom 1. The
// 8x16 ratio keeps box proportions close to what a browser canvas shows.
const (
	cellWidth  = 8.0
	cellHeight = 16.0

	gridStep   = 80.0
	curveSteps = 32
)

// CanvasView is the drawing surface: a tview primitive that renders the
// board and feeds mouse gestures into the interaction controller.
type CanvasView struct {
	*tview.Box

	board *board.Board
	ctrl  *interact.Controller
	theme Theme

	groupGap time.Duration
	truncate int

	messages func() []domain.AgentMessage
	onChange func()
}

func NewCanvasView(b *board.Board, ctrl *interact.Controller, theme Theme) *CanvasView {
	v := &CanvasView{
		Box:      tview.NewBox(),
		board:    b,
		ctrl:     ctrl,
		theme:    theme,
		groupGap: transcript.DefaultGroupGap,
		truncate: 120,
	}
	v.SetBackgroundColor(theme.Background)
	return v
}

func (v *CanvasView) SetTheme(theme Theme) {
	v.theme = theme
	v.SetBackgroundColor(theme.Background)
}

// SetMessageSource wires the transcript the popup reads from.
func (v *CanvasView) SetMessageSource(fn func() []domain.AgentMessage) {
	v.messages = fn
}

// SetChangedFunc registers a callback fired after a gesture or key commits
// a board mutation.
func (v *CanvasView) SetChangedFunc(fn func()) {
	v.onChange = fn
}

func (v *CanvasView) SetPopupLimits(gap time.Duration, truncate int) {
	if gap > 0 {
		v.groupGap = gap
	}
	if truncate > 0 {
		v.truncate = truncate
	}
}

func (v *CanvasView) notify() {
	if v.onChange != nil {
		v.onChange()
	}
}

// cellFrame is the clipped drawing window for one Draw pass.
type cellFrame struct {
	screen tcell.Screen
	x, y   int
	w, h   int
}

func (f cellFrame) contains(cx, cy int) bool {
	return cx >= f.x && cx < f.x+f.w && cy >= f.y && cy < f.y+f.h
}

func (f cellFrame) set(cx, cy int, r rune, style tcell.Style) {
	if f.contains(cx, cy) {
		f.screen.SetContent(cx, cy, r, nil, style)
	}
}

func (f cellFrame) text(cx, cy int, s string, style tcell.Style, maxWidth int) {
	for i, r := range []rune(s) {
		if i >= maxWidth {
			return
		}
		f.set(cx+i, cy, r, style)
	}
}

func (f cellFrame) line(x0, y0, x1, y1 int, r rune, style tcell.Style) {
	dx := x1 - x0
	dy := y1 - y0
	steps := intAbs(dx)
	if intAbs(dy) > steps {
		steps = intAbs(dy)
	}
	if steps == 0 {
		f.set(x0, y0, r, style)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		f.set(x0+int(math.Round(t*float64(dx))), y0+int(math.Round(t*float64(dy))), r, style)
	}
}

func (v *CanvasView) project(f cellFrame, p geom.Point) (int, int) {
	s := v.board.ToScreen(p)
	return f.x + int(math.Floor(s.X/cellWidth)), f.y + int(math.Floor(s.Y/cellHeight))
}

func (v *CanvasView) Draw(screen tcell.Screen) {
	v.Box.DrawForSubclass(screen, v)
	x, y, w, h := v.GetInnerRect()
	if w <= 0 || h <= 0 {
		return
	}
	f := cellFrame{screen: screen, x: x, y: y, w: w, h: h}

	v.drawGrid(f)

	selectedConn := v.ctrl.SelectedConnection()
	for _, conn := range v.board.Connections() {
		path, ok := v.board.ConnectionPath(conn.ID)
		if !ok {
			continue
		}
		v.drawCurve(f, path, conn.ID == selectedConn, true)
	}
	if band, ok := v.ctrl.RubberBand(); ok {
		v.drawRubberBand(f, band)
	}

	selectedBox := v.ctrl.SelectedBox()
	for _, b := range v.board.Boxes() {
		v.drawAgentBox(f, b, b.ID == selectedBox)
	}
	if v.ctrl.ConnectMode() {
		v.drawHandles(f)
	}

	v.drawPopup(f)
}

func (v *CanvasView) drawGrid(f cellFrame) {
	style := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.Grid)
	topLeft := v.board.ToBoard(geom.Point{X: 0, Y: 0})
	bottomRight := v.board.ToBoard(geom.Point{X: float64(f.w) * cellWidth, Y: float64(f.h) * cellHeight})

	startX := math.Floor(topLeft.X/gridStep) * gridStep
	startY := math.Floor(topLeft.Y/gridStep) * gridStep
	for gx := startX; gx <= bottomRight.X; gx += gridStep {
		for gy := startY; gy <= bottomRight.Y; gy += gridStep {
			cx, cy := v.project(f, geom.Point{X: gx, Y: gy})
			f.set(cx, cy, '·', style)
		}
	}
}

func curveRune(dx, dy int) rune {
	ax, ay := intAbs(dx), intAbs(dy)
	switch {
	case ax >= 2*ay:
		return '─'
	case ay >= 2*ax:
		return '│'
	case (dx > 0) == (dy > 0):
		return '╲'
	default:
		return '╱'
	}
}

func (v *CanvasView) drawCurve(f cellFrame, path geom.Path, selected bool, marker bool) {
	color := v.theme.Connection
	if selected {
		color = v.theme.Selection
	}
	style := tcell.StyleDefault.Background(v.theme.Background).Foreground(color)

	pts := path.Flatten(curveSteps)
	px, py := v.project(f, pts[0])
	for _, p := range pts[1:] {
		cx, cy := v.project(f, p)
		if cx != px || cy != py {
			f.line(px, py, cx, cy, curveRune(cx-px, cy-py), style)
		}
		px, py = cx, cy
	}

	v.drawArrowhead(f, path, style)
	if marker {
		mx, my := v.project(f, path.Midpoint())
		f.set(mx, my, '◆', style)
	}
}

func (v *CanvasView) drawArrowhead(f cellFrame, path geom.Path, style tcell.Style) {
	tail := v.board.ToScreen(path.C2)
	tip := v.board.ToScreen(path.End)
	dx := tip.X - tail.X
	dy := tip.Y - tail.Y

	r := '▶'
	if math.Abs(dx) >= math.Abs(dy) {
		if dx < 0 {
			r = '◀'
		}
	} else {
		if dy >= 0 {
			r = '▼'
		} else {
			r = '▲'
		}
	}
	cx, cy := v.project(f, path.End)
	f.set(cx, cy, r, style)
}

func (v *CanvasView) drawRubberBand(f cellFrame, path geom.Path) {
	style := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.RubberBand)
	pts := path.Flatten(curveSteps)
	px, py := v.project(f, pts[0])
	for _, p := range pts[1:] {
		cx, cy := v.project(f, p)
		if cx != px || cy != py {
			f.line(px, py, cx, cy, '·', style)
		}
		px, py = cx, cy
	}
}

func (v *CanvasView) drawAgentBox(f cellFrame, b domain.AgentBox, selected bool) {
	x0, y0 := v.project(f, geom.Point{X: b.X, Y: b.Y})
	x1, y1 := v.project(f, geom.Point{X: b.X + b.Width, Y: b.Y + b.Height})
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}

	accent := v.theme.agentColor(b.AgentType)
	borderColor := accent
	if selected {
		borderColor = v.theme.Selection
	}
	border := tcell.StyleDefault.Background(v.theme.Background).Foreground(borderColor)
	fill := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.Text)

	for cy := y0 + 1; cy < y1; cy++ {
		for cx := x0 + 1; cx < x1; cx++ {
			f.set(cx, cy, ' ', fill)
		}
	}

	tl, tr, bl, br := tview.Borders.TopLeft, tview.Borders.TopRight, tview.Borders.BottomLeft, tview.Borders.BottomRight
	hor, ver := tview.Borders.Horizontal, tview.Borders.Vertical
	if selected {
		tl, tr = tview.Borders.TopLeftFocus, tview.Borders.TopRightFocus
		bl, br = tview.Borders.BottomLeftFocus, tview.Borders.BottomRightFocus
		hor, ver = tview.Borders.HorizontalFocus, tview.Borders.VerticalFocus
	}
	for cx := x0 + 1; cx < x1; cx++ {
		f.set(cx, y0, hor, border)
		f.set(cx, y1, hor, border)
	}
	for cy := y0 + 1; cy < y1; cy++ {
		f.set(x0, cy, ver, border)
		f.set(x1, cy, ver, border)
	}
	f.set(x0, y0, tl, border)
	f.set(x1, y0, tr, border)
	f.set(x0, y1, bl, border)
	f.set(x1, y1, br, border)

	inner := x1 - x0 - 2
	if inner < 1 {
		return
	}
	title := tcell.StyleDefault.Background(v.theme.Background).Foreground(accent).Bold(true)
	f.text(x0+1, y0+1, string(b.AgentType), title, inner)
	if b.Role != "" && y0+2 < y1 {
		f.text(x0+1, y0+2, b.Role, fill, inner)
	}
	if b.Model != "" && y0+3 < y1 {
		muted := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.Muted)
		f.text(x0+1, y0+3, b.Model, muted, inner)
	}
	if b.Pinned {
		pin := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.PinGlyph)
		f.set(x1-1, y0, '◉', pin)
	}
}

func (v *CanvasView) drawHandles(f cellFrame) {
	style := tcell.StyleDefault.Background(v.theme.Background).Foreground(v.theme.Handle)
	sides := []domain.Side{domain.SideTop, domain.SideRight, domain.SideBottom, domain.SideLeft}
	for _, b := range v.board.Boxes() {
		for _, side := range sides {
			cx, cy := v.project(f, geom.Anchor(b, side))
			f.set(cx, cy, '○', style)
		}
	}
}

func (v *CanvasView) drawPopup(f cellFrame) {
	id, ok := v.ctrl.ActivePopup()
	if !ok {
		return
	}
	rect, ok := v.ctrl.PopupRect(id)
	if !ok {
		return
	}

	var view transcript.PopupView
	if box, found := v.board.Box(id); found {
		view = transcript.BoxView(box, v.currentMessages(), v.groupGap, v.truncate)
	} else if conn, found := v.board.Connection(id); found {
		from, okFrom := v.board.Box(conn.FromID)
		to, okTo := v.board.Box(conn.ToID)
		if !okFrom || !okTo {
			return
		}
		view = transcript.ConnectionView(from, to, v.currentMessages(), v.groupGap, v.truncate)
	} else {
		return
	}

	x0, y0 := v.project(f, geom.Point{X: rect.X, Y: rect.Y})
	x1, y1 := v.project(f, geom.Point{X: rect.X + rect.Width, Y: rect.Y + rect.Height})
	if x1 <= x0+3 {
		x1 = x0 + 4
	}
	if y1 <= y0+2 {
		y1 = y0 + 3
	}

	bg := tcell.StyleDefault.Background(v.theme.PopupBackground).Foreground(v.theme.Text)
	border := tcell.StyleDefault.Background(v.theme.PopupBackground).Foreground(v.theme.PopupBorder)
	muted := tcell.StyleDefault.Background(v.theme.PopupBackground).Foreground(v.theme.Muted)

	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			f.set(cx, cy, ' ', bg)
		}
	}
	for cx := x0 + 1; cx < x1; cx++ {
		f.set(cx, y0, tview.Borders.Horizontal, border)
		f.set(cx, y1, tview.Borders.Horizontal, border)
	}
	for cy := y0 + 1; cy < y1; cy++ {
		f.set(x0, cy, tview.Borders.Vertical, border)
		f.set(x1, cy, tview.Borders.Vertical, border)
	}
	f.set(x0, y0, tview.Borders.TopLeft, border)
	f.set(x1, y0, tview.Borders.TopRight, border)
	f.set(x0, y1, tview.Borders.BottomLeft, border)
	f.set(x1, y1, tview.Borders.BottomRight, border)
	f.set(x1, y1, '◢', border)

	inner := x1 - x0 - 3
	if inner < 1 {
		return
	}
	titleStyle := tcell.StyleDefault.Background(v.theme.PopupBackground).Foreground(v.theme.PopupBorder).Bold(true)
	f.text(x0+2, y0, " "+view.Title+" ", titleStyle, inner)

	row := y0 + 1
	if view.Empty() {
		f.text(x0+2, row, transcript.EmptyState, muted, inner)
		return
	}
	for gi, group := range view.Groups {
		if gi > 0 {
			if row >= y1 {
				return
			}
			f.text(x0+2, row, "┄┄┄", muted, inner)
			row++
		}
		for _, entry := range group {
			if row >= y1 {
				return
			}
			glyph := "· "
			switch entry.Class {
			case transcript.ClassCommand:
				glyph = "» "
			case transcript.ClassResponse:
				glyph = "« "
			}
			line := glyph + entry.From + "→" + entry.To + ": " + entry.Body
			f.text(x0+2, row, line, bg, inner)
			row++
		}
	}
}

func (v *CanvasView) currentMessages() []domain.AgentMessage {
	if v.messages == nil {
		return nil
	}
	return v.messages()
}

// MouseHandler maps cell positions to board-space pixels and forwards the
// gesture to the controller. While a gesture is active the view holds the
// mouse capture, so moves and the release are honored even when the
// pointer has left the view.
func (v *CanvasView) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
	return v.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
		mx, my := event.Position()
		inside := v.InRect(mx, my)
		busy := v.ctrl.State() != interact.StateIdle

		x, y, _, _ := v.GetInnerRect()
		px := (float64(mx-x) + 0.5) * cellWidth
		py := (float64(my-y) + 0.5) * cellHeight

		switch action {
		case tview.MouseLeftDown:
			if !inside {
				return false, nil
			}
			setFocus(v)
			v.ctrl.MouseDown(px, py)
			return true, v
		case tview.MouseMove:
			if !inside && !busy {
				return false, nil
			}
			v.ctrl.MouseMove(px, py)
			return true, nil
		case tview.MouseLeftUp:
			if !inside && !busy {
				return false, nil
			}
			if v.ctrl.MouseUp(px, py) {
				v.notify()
			}
			return true, nil
		case tview.MouseScrollUp:
			if !inside {
				return false, nil
			}
			v.ctrl.Wheel(true, px, py)
			return true, nil
		case tview.MouseScrollDown:
			if !inside {
				return false, nil
			}
			v.ctrl.Wheel(false, px, py)
			return true, nil
		}
		return false, nil
	})
}

// InputHandler covers the canvas-scoped keys. Application keys (export,
// refresh, quit) live in the app-level capture.
func (v *CanvasView) InputHandler() func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
	return v.WrapInputHandler(func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
		switch event.Key() {
		case tcell.KeyEscape:
			v.ctrl.Escape()
		case tcell.KeyDelete, tcell.KeyBackspace2:
			if v.ctrl.Delete() {
				v.notify()
			}
		case tcell.KeyRune:
			switch event.Rune() {
			case 'c':
				v.ctrl.SetConnectMode(!v.ctrl.ConnectMode())
			case 'p':
				if v.ctrl.TogglePinSelected() {
					v.notify()
				}
			case 'n':
				width, height := v.visibleBoardSize()
				v.addBoxAtCenter(width, height)
			}
		}
	})
}

func (v *CanvasView) visibleBoardSize() (float64, float64) {
	_, _, w, h := v.GetInnerRect()
	return float64(w) * cellWidth, float64(h) * cellHeight
}

// addBoxAtCenter drops a new box in the middle of the visible area.
func (v *CanvasView) addBoxAtCenter(width, height float64) {
	center := v.board.ToBoard(geom.Point{X: width / 2, Y: height / 2})
	v.board.AddBox(center.X-domain.DefaultBoxWidth/2, center.Y-domain.DefaultBoxHeight/2)
	v.notify()
}

func intAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

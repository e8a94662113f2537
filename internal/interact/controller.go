package interact

import (
	"agentboard/internal/board"
	"agentboard/internal/domain"
	"agentboard/internal/geom"
)

type State string

const (
	StateIdle          State = "idle"
	StateDraggingBox   State = "dragging_box"
	StateResizingBox   State = "resizing_box"
	StateConnecting    State = "connecting"
	StateDraggingPopup State = "dragging_popup"
	StateResizingPopup State = "resizing_popup"
	StatePanning       State = "panning"
)

const (
	handleRadius   = 10.0
	pickRadius     = 8.0
	resizeCorner   = 14.0
	pathSamples    = 24
	popupWidth     = 260.0
	popupHeight    = 160.0
	popupMinWidth  = 120.0
	popupMinHeight = 60.0
	popupTitleRow  = 24.0
	popupGap       = 12.0
	zoomStep       = 1.15
)

// Controller is the mouse/keyboard state machine over a Board. All
// coordinates passed in are screen-space; the controller maps them through
// the board viewport. Exactly one gesture can be active at a time.
type Controller struct {
	b *board.Board

	state       State
	connectMode bool

	selectedBox  string
	selectedConn string
	popupFor     string

	dragBoxID  string
	dragOffset geom.Point

	resizeBoxID string
	startSize   geom.Point
	startMouse  geom.Point

	connectFrom string
	connectSide domain.Side
	rubberTo    geom.Point

	popupID          string
	popupOffset      geom.Point
	popupStart       domain.PopupState
	popupHadOverride bool

	panLast geom.Point
}

func NewController(b *board.Board) *Controller {
	return &Controller{b: b, state: StateIdle}
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) ConnectMode() bool {
	return c.connectMode
}

func (c *Controller) SetConnectMode(on bool) {
	c.connectMode = on
	if !on && c.state == StateConnecting {
		c.state = StateIdle
	}
}

func (c *Controller) SelectedBox() string {
	return c.selectedBox
}

func (c *Controller) SelectedConnection() string {
	return c.selectedConn
}

// ActivePopup returns the id of the open transcript popup. A popup whose
// target vanished (deleted box or connection) is dropped here rather than
// erroring.
func (c *Controller) ActivePopup() (string, bool) {
	if c.popupFor == "" {
		return "", false
	}
	if _, ok := c.b.Box(c.popupFor); ok {
		return c.popupFor, true
	}
	if _, ok := c.b.Connection(c.popupFor); ok {
		return c.popupFor, true
	}
	c.popupFor = ""
	return "", false
}

// RubberBand returns the in-progress connection preview path.
func (c *Controller) RubberBand() (geom.Path, bool) {
	if c.state != StateConnecting {
		return geom.Path{}, false
	}
	box, ok := c.b.Box(c.connectFrom)
	if !ok {
		return geom.Path{}, false
	}
	return geom.CurvePath(geom.Anchor(box, c.connectSide), c.rubberTo), true
}

func (c *Controller) MouseDown(x float64, y float64) bool {
	if c.state != StateIdle {
		return false
	}
	screen := geom.Point{X: x, Y: y}
	p := c.b.ToBoard(screen)

	if id, ok := c.popupResizeAt(p); ok {
		c.state = StateResizingPopup
		c.popupID = id
		c.beginPopupGesture(id)
		c.startMouse = p
		return true
	}
	if id, title, ok := c.popupBodyAt(p); ok {
		if !title {
			return false
		}
		c.state = StateDraggingPopup
		c.popupID = id
		c.beginPopupGesture(id)
		c.popupOffset = geom.Point{X: p.X - c.popupStart.X, Y: p.Y - c.popupStart.Y}
		return true
	}

	if c.connectMode {
		if box, side, ok := c.handleAt(p); ok {
			c.state = StateConnecting
			c.connectFrom = box.ID
			c.connectSide = side
			c.rubberTo = p
			return true
		}
	}

	if box, ok := c.resizeCornerAt(p); ok {
		c.state = StateResizingBox
		c.resizeBoxID = box.ID
		c.startSize = geom.Point{X: box.Width, Y: box.Height}
		c.startMouse = p
		c.selectBox(box.ID)
		return true
	}

	if box, ok := c.boxAt(p); ok {
		c.selectBox(box.ID)
		if box.Pinned {
			return true
		}
		c.state = StateDraggingBox
		c.dragBoxID = box.ID
		c.dragOffset = geom.Point{X: p.X - box.X, Y: p.Y - box.Y}
		return true
	}

	if conn, ok := c.connectionAt(p); ok {
		c.selectConnection(conn.ID)
		return true
	}

	// Empty canvas: deselect and start panning.
	c.clearSelection()
	c.state = StatePanning
	c.panLast = screen
	return true
}

func (c *Controller) MouseMove(x float64, y float64) bool {
	screen := geom.Point{X: x, Y: y}
	p := c.b.ToBoard(screen)

	switch c.state {
	case StateDraggingBox:
		return c.b.MoveBox(c.dragBoxID, p.X-c.dragOffset.X, p.Y-c.dragOffset.Y)
	case StateResizingBox:
		if _, ok := c.b.Box(c.resizeBoxID); !ok {
			return false
		}
		w := c.startSize.X + (p.X - c.startMouse.X)
		h := c.startSize.Y + (p.Y - c.startMouse.Y)
		return c.b.ResizeBox(c.resizeBoxID, w, h)
	case StateConnecting:
		if _, ok := c.b.Box(c.connectFrom); !ok {
			return false
		}
		c.rubberTo = p
		return true
	case StateDraggingPopup:
		if !c.popupTargetAlive() {
			return false
		}
		st := c.currentPopupState()
		st.X = p.X - c.popupOffset.X
		st.Y = p.Y - c.popupOffset.Y
		c.b.SetPopup(c.popupID, st)
		return true
	case StateResizingPopup:
		if !c.popupTargetAlive() {
			return false
		}
		st := c.popupStart
		st.Width = clampMin(c.popupStart.Width+(p.X-c.startMouse.X), popupMinWidth)
		st.Height = clampMin(c.popupStart.Height+(p.Y-c.startMouse.Y), popupMinHeight)
		c.b.SetPopup(c.popupID, st)
		return true
	case StatePanning:
		c.b.Pan(screen.X-c.panLast.X, screen.Y-c.panLast.Y)
		c.panLast = screen
		return true
	}
	return false
}

func (c *Controller) MouseUp(x float64, y float64) bool {
	p := c.b.ToBoard(geom.Point{X: x, Y: y})

	prev := c.state
	c.state = StateIdle
	switch prev {
	case StateConnecting:
		target, side, ok := c.handleAt(p)
		if !ok || target.ID == c.connectFrom {
			return true
		}
		_, _ = c.b.Connect(c.connectFrom, c.connectSide, target.ID, side)
		return true
	case StateIdle:
		return false
	default:
		return true
	}
}

// Wheel zooms the viewport about the cursor. Ignored mid-gesture so active
// drag bookkeeping stays valid.
func (c *Controller) Wheel(up bool, x float64, y float64) bool {
	if c.state != StateIdle {
		return false
	}
	factor := zoomStep
	if !up {
		factor = 1 / zoomStep
	}
	before := c.b.Viewport()
	c.b.ZoomAt(factor, x, y)
	return c.b.Viewport() != before
}

func (c *Controller) Escape() bool {
	if c.state != StateIdle {
		if c.state == StateDraggingPopup || c.state == StateResizingPopup {
			if c.popupHadOverride {
				c.b.SetPopup(c.popupID, c.popupStart)
			} else {
				c.b.ClearPopup(c.popupID)
			}
		}
		c.state = StateIdle
		return true
	}
	if c.selectedBox != "" || c.selectedConn != "" || c.popupFor != "" {
		c.clearSelection()
		return true
	}
	return false
}

// Delete removes the current selection. Box deletion cascades connections.
func (c *Controller) Delete() bool {
	if c.state != StateIdle {
		return false
	}
	if c.selectedBox != "" {
		id := c.selectedBox
		c.clearSelection()
		return c.b.DeleteBox(id)
	}
	if c.selectedConn != "" {
		id := c.selectedConn
		c.clearSelection()
		return c.b.DeleteConnection(id)
	}
	return false
}

func (c *Controller) TogglePinSelected() bool {
	if c.selectedBox != "" {
		box, ok := c.b.Box(c.selectedBox)
		if !ok {
			return false
		}
		return c.b.SetBoxPinned(box.ID, !box.Pinned)
	}
	if c.selectedConn != "" {
		conn, ok := c.b.Connection(c.selectedConn)
		if !ok {
			return false
		}
		return c.b.SetConnectionPinned(conn.ID, !conn.Pinned)
	}
	return false
}

// PopupRect resolves the popup rectangle for a box or connection id, using
// the stored override when present and the derived default otherwise.
func (c *Controller) PopupRect(id string) (geom.Rect, bool) {
	if st, ok := c.b.Popup(id); ok && st.Set() {
		return geom.Rect{X: st.X, Y: st.Y, Width: st.Width, Height: st.Height}, true
	}
	if path, ok := c.b.ConnectionPath(id); ok {
		mid := path.Midpoint()
		return geom.Rect{
			X:      mid.X - popupWidth/2,
			Y:      mid.Y + popupGap,
			Width:  popupWidth,
			Height: popupHeight,
		}, true
	}
	if box, ok := c.b.Box(id); ok {
		return geom.Rect{
			X:      box.X + box.Width + popupGap,
			Y:      box.Y,
			Width:  popupWidth,
			Height: popupHeight,
		}, true
	}
	return geom.Rect{}, false
}

func (c *Controller) selectBox(id string) {
	c.selectedBox = id
	c.selectedConn = ""
	c.popupFor = id
}

func (c *Controller) selectConnection(id string) {
	c.selectedConn = id
	c.selectedBox = ""
	c.popupFor = id
}

func (c *Controller) clearSelection() {
	c.selectedBox = ""
	c.selectedConn = ""
	c.popupFor = ""
}

func (c *Controller) beginPopupGesture(id string) {
	st, ok := c.b.Popup(id)
	c.popupHadOverride = ok && st.Set()
	if c.popupHadOverride {
		c.popupStart = st
		return
	}
	rect, _ := c.PopupRect(id)
	c.popupStart = domain.PopupState{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
}

func (c *Controller) currentPopupState() domain.PopupState {
	if st, ok := c.b.Popup(c.popupID); ok && st.Set() {
		return st
	}
	return c.popupStart
}

func (c *Controller) popupTargetAlive() bool {
	if _, ok := c.b.Box(c.popupID); ok {
		return true
	}
	_, ok := c.b.Connection(c.popupID)
	return ok
}

func (c *Controller) popupResizeAt(p geom.Point) (string, bool) {
	id, ok := c.ActivePopup()
	if !ok {
		return "", false
	}
	rect, ok := c.PopupRect(id)
	if !ok {
		return "", false
	}
	corner := geom.Rect{
		X:      rect.X + rect.Width - resizeCorner,
		Y:      rect.Y + rect.Height - resizeCorner,
		Width:  resizeCorner,
		Height: resizeCorner,
	}
	if corner.Contains(p) {
		return id, true
	}
	return "", false
}

func (c *Controller) popupBodyAt(p geom.Point) (id string, title bool, ok bool) {
	id, active := c.ActivePopup()
	if !active {
		return "", false, false
	}
	rect, found := c.PopupRect(id)
	if !found || !rect.Contains(p) {
		return "", false, false
	}
	titleRect := geom.Rect{X: rect.X, Y: rect.Y, Width: rect.Width, Height: popupTitleRow}
	return id, titleRect.Contains(p), true
}

func (c *Controller) boxAt(p geom.Point) (domain.AgentBox, bool) {
	boxes := c.b.Boxes()
	for i := len(boxes) - 1; i >= 0; i-- {
		if geom.BoxRect(boxes[i]).Contains(p) {
			return boxes[i], true
		}
	}
	return domain.AgentBox{}, false
}

func (c *Controller) handleAt(p geom.Point) (domain.AgentBox, domain.Side, bool) {
	sides := []domain.Side{domain.SideLeft, domain.SideRight, domain.SideTop, domain.SideBottom}
	boxes := c.b.Boxes()
	for i := len(boxes) - 1; i >= 0; i-- {
		for _, side := range sides {
			a := geom.Anchor(boxes[i], side)
			dx := a.X - p.X
			dy := a.Y - p.Y
			if dx*dx+dy*dy <= handleRadius*handleRadius {
				return boxes[i], side, true
			}
		}
	}
	return domain.AgentBox{}, "", false
}

func (c *Controller) resizeCornerAt(p geom.Point) (domain.AgentBox, bool) {
	boxes := c.b.Boxes()
	for i := len(boxes) - 1; i >= 0; i-- {
		b := boxes[i]
		corner := geom.Rect{
			X:      b.X + b.Width - resizeCorner,
			Y:      b.Y + b.Height - resizeCorner,
			Width:  resizeCorner,
			Height: resizeCorner,
		}
		if corner.Contains(p) {
			return b, true
		}
	}
	return domain.AgentBox{}, false
}

func (c *Controller) connectionAt(p geom.Point) (domain.Connection, bool) {
	for _, conn := range c.b.Connections() {
		path, ok := c.b.ConnectionPath(conn.ID)
		if !ok {
			continue
		}
		if path.DistanceTo(p, pathSamples) <= pickRadius {
			return conn, true
		}
	}
	return domain.Connection{}, false
}

func clampMin(v float64, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

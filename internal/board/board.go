package board

import (
	"github.com/google/uuid"

	"agentboard/internal/domain"
	"agentboard/internal/geom"
)

const (
	MinScale = 0.4
	MaxScale = 2.5
)

// Board holds the canvas state: agent boxes, directed connections between
// box sides, popup placement overrides, the viewport and the prompt text.
// It is not safe for concurrent use; all mutation happens on the UI event
// loop.
type Board struct {
	boxes       []domain.AgentBox
	connections []domain.Connection
	popups      map[string]domain.PopupState
	viewport    domain.Viewport
	prompt      string
}

func New() *Board {
	return &Board{
		popups:   make(map[string]domain.PopupState),
		viewport: domain.Viewport{Scale: 1},
	}
}

func (b *Board) AddBox(x float64, y float64) domain.AgentBox {
	box := domain.AgentBox{
		ID:        uuid.NewString(),
		X:         x,
		Y:         y,
		Width:     domain.DefaultBoxWidth,
		Height:    domain.DefaultBoxHeight,
		AgentType: domain.AgentTypeCustom,
	}
	b.boxes = append(b.boxes, box)
	return box
}

func (b *Board) Box(id string) (domain.AgentBox, bool) {
	if i := b.boxIndex(id); i >= 0 {
		return b.boxes[i], true
	}
	return domain.AgentBox{}, false
}

func (b *Board) Boxes() []domain.AgentBox {
	out := make([]domain.AgentBox, len(b.boxes))
	copy(out, b.boxes)
	return out
}

// UpdateBox applies mutate to the box with the given id. Unknown ids are a
// no-op. The box identity and minimum size survive whatever mutate does.
func (b *Board) UpdateBox(id string, mutate func(*domain.AgentBox)) bool {
	i := b.boxIndex(id)
	if i < 0 {
		return false
	}
	box := b.boxes[i]
	mutate(&box)
	box.ID = id
	clampBoxSize(&box)
	b.boxes[i] = box
	return true
}

func (b *Board) MoveBox(id string, x float64, y float64) bool {
	return b.UpdateBox(id, func(box *domain.AgentBox) {
		box.X = x
		box.Y = y
	})
}

func (b *Board) ResizeBox(id string, width float64, height float64) bool {
	return b.UpdateBox(id, func(box *domain.AgentBox) {
		box.Width = width
		box.Height = height
	})
}

func (b *Board) SetBoxPinned(id string, pinned bool) bool {
	return b.UpdateBox(id, func(box *domain.AgentBox) {
		box.Pinned = pinned
	})
}

func (b *Board) DeleteBox(id string) bool {
	i := b.boxIndex(id)
	if i < 0 {
		return false
	}
	b.boxes = append(b.boxes[:i], b.boxes[i+1:]...)
	delete(b.popups, id)

	kept := b.connections[:0]
	for _, conn := range b.connections {
		if conn.FromID == id || conn.ToID == id {
			delete(b.popups, conn.ID)
			continue
		}
		kept = append(kept, conn)
	}
	b.connections = kept
	return true
}

// Connect appends a directed edge between two box sides. Self-loops, unknown
// endpoints and invalid sides fail silently. Duplicate edges over the same
// endpoints are permitted and kept as distinct connections.
func (b *Board) Connect(fromID string, fromSide domain.Side, toID string, toSide domain.Side) (domain.Connection, bool) {
	if fromID == toID {
		return domain.Connection{}, false
	}
	if !fromSide.Valid() || !toSide.Valid() {
		return domain.Connection{}, false
	}
	if b.boxIndex(fromID) < 0 || b.boxIndex(toID) < 0 {
		return domain.Connection{}, false
	}
	conn := domain.Connection{
		ID:       uuid.NewString(),
		FromID:   fromID,
		FromSide: fromSide,
		ToID:     toID,
		ToSide:   toSide,
	}
	b.connections = append(b.connections, conn)
	return conn, true
}

func (b *Board) Connection(id string) (domain.Connection, bool) {
	if i := b.connIndex(id); i >= 0 {
		return b.connections[i], true
	}
	return domain.Connection{}, false
}

func (b *Board) Connections() []domain.Connection {
	out := make([]domain.Connection, len(b.connections))
	copy(out, b.connections)
	return out
}

func (b *Board) ConnectionsFor(boxID string) []domain.Connection {
	var out []domain.Connection
	for _, conn := range b.connections {
		if conn.FromID == boxID || conn.ToID == boxID {
			out = append(out, conn)
		}
	}
	return out
}

func (b *Board) DeleteConnection(id string) bool {
	i := b.connIndex(id)
	if i < 0 {
		return false
	}
	b.connections = append(b.connections[:i], b.connections[i+1:]...)
	delete(b.popups, id)
	return true
}

func (b *Board) SetConnectionPinned(id string, pinned bool) bool {
	i := b.connIndex(id)
	if i < 0 {
		return false
	}
	b.connections[i].Pinned = pinned
	return true
}

// ConnectionPath returns the current curve for a connection, recomputed from
// the endpoint boxes. False when either endpoint no longer resolves.
func (b *Board) ConnectionPath(id string) (geom.Path, bool) {
	conn, ok := b.Connection(id)
	if !ok {
		return geom.Path{}, false
	}
	from, ok := b.Box(conn.FromID)
	if !ok {
		return geom.Path{}, false
	}
	to, ok := b.Box(conn.ToID)
	if !ok {
		return geom.Path{}, false
	}
	return geom.CurvePath(geom.Anchor(from, conn.FromSide), geom.Anchor(to, conn.ToSide)), true
}

func (b *Board) Popup(id string) (domain.PopupState, bool) {
	st, ok := b.popups[id]
	return st, ok
}

func (b *Board) SetPopup(id string, st domain.PopupState) {
	b.popups[id] = st
}

func (b *Board) ClearPopup(id string) {
	delete(b.popups, id)
}

func (b *Board) Viewport() domain.Viewport {
	return b.viewport
}

func (b *Board) SetViewport(v domain.Viewport) {
	v.Scale = clampScale(v.Scale)
	b.viewport = v
}

func (b *Board) Pan(dx float64, dy float64) {
	b.viewport.OffsetX += dx
	b.viewport.OffsetY += dy
}

// ZoomAt rescales the viewport keeping the screen point (cx, cy) fixed.
func (b *Board) ZoomAt(factor float64, cx float64, cy float64) {
	old := b.viewport.Scale
	next := clampScale(old * factor)
	if next == old {
		return
	}
	ratio := next / old
	b.viewport.OffsetX = cx - (cx-b.viewport.OffsetX)*ratio
	b.viewport.OffsetY = cy - (cy-b.viewport.OffsetY)*ratio
	b.viewport.Scale = next
}

// ToScreen maps a board point into screen space under the current viewport.
func (b *Board) ToScreen(p geom.Point) geom.Point {
	return geom.Point{
		X: p.X*b.viewport.Scale + b.viewport.OffsetX,
		Y: p.Y*b.viewport.Scale + b.viewport.OffsetY,
	}
}

// ToBoard maps a screen point back into board space.
func (b *Board) ToBoard(p geom.Point) geom.Point {
	return geom.Point{
		X: (p.X - b.viewport.OffsetX) / b.viewport.Scale,
		Y: (p.Y - b.viewport.OffsetY) / b.viewport.Scale,
	}
}

func (b *Board) Prompt() string {
	return b.prompt
}

func (b *Board) SetPrompt(p string) {
	b.prompt = p
}

func (b *Board) Clear() {
	b.boxes = nil
	b.connections = nil
	b.popups = make(map[string]domain.PopupState)
	b.viewport = domain.Viewport{Scale: 1}
	b.prompt = ""
}

func (b *Board) boxIndex(id string) int {
	for i := range b.boxes {
		if b.boxes[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) connIndex(id string) int {
	for i := range b.connections {
		if b.connections[i].ID == id {
			return i
		}
	}
	return -1
}

func clampBoxSize(box *domain.AgentBox) {
	if box.Width < domain.MinBoxWidth {
		box.Width = domain.MinBoxWidth
	}
	if box.Height < domain.MinBoxHeight {
		box.Height = domain.MinBoxHeight
	}
}

func clampScale(s float64) float64 {
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}

package interact

import (
	"testing"

	"agentboard/internal/board"
	"agentboard/internal/domain"
)

// Default boxes are 160x100, so a box added at (0,0) has its right handle
// at (160,50) and its resize corner around (155,95).

func TestDragMovesBoxByCursorDelta(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	c := NewController(b)

	if !c.MouseDown(80, 50) {
		t.Fatalf("mouse down on box body ignored")
	}
	if c.State() != StateDraggingBox {
		t.Fatalf("state=%s want %s", c.State(), StateDraggingBox)
	}
	c.MouseMove(110, 75)
	got, _ := b.Box(box.ID)
	if got.X != 30 || got.Y != 25 {
		t.Fatalf("box at (%g,%g) want (30,25)", got.X, got.Y)
	}
	c.MouseUp(110, 75)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle after mouse up", c.State())
	}
}

func TestPinnedBoxSelectsButRefusesDrag(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	b.SetBoxPinned(box.ID, true)
	c := NewController(b)

	c.MouseDown(80, 50)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle for pinned box", c.State())
	}
	if c.SelectedBox() != box.ID {
		t.Fatalf("pinned box should still select")
	}
	c.MouseMove(200, 200)
	got, _ := b.Box(box.ID)
	if got.X != 0 || got.Y != 0 {
		t.Fatalf("pinned box moved to (%g,%g)", got.X, got.Y)
	}
}

func TestResizeGrowsAndClampsBox(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	c := NewController(b)

	c.MouseDown(155, 95)
	if c.State() != StateResizingBox {
		t.Fatalf("state=%s want %s", c.State(), StateResizingBox)
	}
	c.MouseMove(255, 145)
	got, _ := b.Box(box.ID)
	if got.Width != 260 || got.Height != 150 {
		t.Fatalf("size=%gx%g want 260x150", got.Width, got.Height)
	}

	c.MouseMove(-400, -400)
	got, _ = b.Box(box.ID)
	if got.Width != domain.MinBoxWidth || got.Height != domain.MinBoxHeight {
		t.Fatalf("size=%gx%g want clamp to minimum", got.Width, got.Height)
	}
	c.MouseUp(-400, -400)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestConnectGestureCommitsOnOtherBoxHandle(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	target := b.AddBox(400, 0)
	c := NewController(b)
	c.SetConnectMode(true)

	c.MouseDown(160, 50)
	if c.State() != StateConnecting {
		t.Fatalf("state=%s want %s", c.State(), StateConnecting)
	}
	c.MouseMove(300, 40)
	if _, ok := c.RubberBand(); !ok {
		t.Fatalf("expected rubber band preview while connecting")
	}
	c.MouseUp(400, 50)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}

	conns := b.Connections()
	if len(conns) != 1 {
		t.Fatalf("connections=%d want 1", len(conns))
	}
	conn := conns[0]
	if conn.FromID != a.ID || conn.FromSide != domain.SideRight {
		t.Fatalf("from=%s/%s want %s/right", conn.FromID, conn.FromSide, a.ID)
	}
	if conn.ToID != target.ID || conn.ToSide != domain.SideLeft {
		t.Fatalf("to=%s/%s want %s/left", conn.ToID, conn.ToSide, target.ID)
	}
}

func TestConnectDropOnOwnHandleDiscards(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	c := NewController(b)
	c.SetConnectMode(true)

	c.MouseDown(160, 50)
	c.MouseUp(80, 0)
	if len(b.Connections()) != 0 {
		t.Fatalf("self-drop created a connection")
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestConnectMouseUpOnEmptyDiscards(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	b.AddBox(400, 0)
	c := NewController(b)
	c.SetConnectMode(true)

	c.MouseDown(160, 50)
	c.MouseUp(290, 200)
	if len(b.Connections()) != 0 {
		t.Fatalf("drop on empty canvas created a connection")
	}
}

func TestConnectEscapeCancels(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	b.AddBox(400, 0)
	c := NewController(b)
	c.SetConnectMode(true)

	c.MouseDown(160, 50)
	if !c.Escape() {
		t.Fatalf("escape during connect should report a change")
	}
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
	if _, ok := c.RubberBand(); ok {
		t.Fatalf("rubber band survived escape")
	}
	if len(b.Connections()) != 0 {
		t.Fatalf("escape committed a connection")
	}
}

func TestSelectConnectionOpensSinglePopup(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	conn, _ := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft)
	c := NewController(b)

	// The path runs flat along y=50 between the facing handles.
	c.MouseDown(280, 52)
	c.MouseUp(280, 52)
	if c.SelectedConnection() != conn.ID {
		t.Fatalf("selected=%q want %q", c.SelectedConnection(), conn.ID)
	}
	id, open := c.ActivePopup()
	if !open || id != conn.ID {
		t.Fatalf("popup=%q open=%t want %q", id, open, conn.ID)
	}

	// Clicking empty canvas deselects and closes the popup.
	c.MouseDown(600, 400)
	c.MouseUp(600, 400)
	if _, open := c.ActivePopup(); open {
		t.Fatalf("popup still open after empty-canvas click")
	}
	if c.SelectedConnection() != "" {
		t.Fatalf("connection still selected after empty-canvas click")
	}
}

func TestBoxClickOpensBoxPopup(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	c := NewController(b)

	c.MouseDown(80, 50)
	c.MouseUp(80, 50)
	id, open := c.ActivePopup()
	if !open || id != box.ID {
		t.Fatalf("popup=%q open=%t want box popup", id, open)
	}
}

func TestMutualExclusionDuringGesture(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	b.AddBox(400, 0)
	c := NewController(b)

	c.MouseDown(80, 50)
	if c.State() != StateDraggingBox {
		t.Fatalf("state=%s want dragging", c.State())
	}
	if c.MouseDown(480, 50) {
		t.Fatalf("second mouse down accepted mid-gesture")
	}
	if c.State() != StateDraggingBox {
		t.Fatalf("state=%s want dragging to continue", c.State())
	}
}

func TestVanishedBoxMidDragBecomesNoop(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	other := b.AddBox(400, 0)
	c := NewController(b)

	c.MouseDown(80, 50)
	b.DeleteBox(box.ID)

	if c.MouseMove(200, 200) {
		t.Fatalf("mouse move on vanished box should be a no-op")
	}
	got, _ := b.Box(other.ID)
	if got.X != 400 {
		t.Fatalf("unrelated box moved")
	}
	c.MouseUp(200, 200)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle after mouse up", c.State())
	}
}

func TestDeleteSelectedBoxCascades(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	if _, ok := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft); !ok {
		t.Fatalf("connect failed")
	}
	c := NewController(b)

	c.MouseDown(80, 50)
	c.MouseUp(80, 50)
	if !c.Delete() {
		t.Fatalf("delete of selected box failed")
	}
	if _, ok := b.Box(a.ID); ok {
		t.Fatalf("box survived delete")
	}
	if len(b.Connections()) != 0 {
		t.Fatalf("cascade left %d connections", len(b.Connections()))
	}
	if _, open := c.ActivePopup(); open {
		t.Fatalf("popup survived delete of its target")
	}
}

func TestDeleteSelectedConnection(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	conn, _ := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft)
	c := NewController(b)

	c.MouseDown(280, 52)
	c.MouseUp(280, 52)
	if !c.Delete() {
		t.Fatalf("delete of selected connection failed")
	}
	if _, ok := b.Connection(conn.ID); ok {
		t.Fatalf("connection survived delete")
	}
	if _, ok := b.Box(a.ID); !ok {
		t.Fatalf("endpoint box was deleted with the connection")
	}
}

func TestPanningOnEmptyCanvas(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	c := NewController(b)

	c.MouseDown(600, 400)
	if c.State() != StatePanning {
		t.Fatalf("state=%s want %s", c.State(), StatePanning)
	}
	c.MouseMove(630, 390)
	vp := b.Viewport()
	if vp.OffsetX != 30 || vp.OffsetY != -10 {
		t.Fatalf("offset=(%g,%g) want (30,-10)", vp.OffsetX, vp.OffsetY)
	}
	c.MouseUp(630, 390)
	if c.State() != StateIdle {
		t.Fatalf("state=%s want idle", c.State())
	}
}

func TestWheelZoomOnlyWhenIdle(t *testing.T) {
	b := board.New()
	b.AddBox(0, 0)
	c := NewController(b)

	if !c.Wheel(true, 100, 100) {
		t.Fatalf("idle wheel zoom ignored")
	}
	if b.Viewport().Scale <= 1 {
		t.Fatalf("scale=%g want > 1", b.Viewport().Scale)
	}

	c.MouseDown(40, 25)
	scale := b.Viewport().Scale
	if c.Wheel(true, 100, 100) {
		t.Fatalf("wheel accepted mid-gesture")
	}
	if b.Viewport().Scale != scale {
		t.Fatalf("scale changed mid-gesture")
	}
}

func TestPopupDragAndResize(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	conn, _ := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft)
	c := NewController(b)

	c.MouseDown(280, 52)
	c.MouseUp(280, 52)
	rect, ok := c.PopupRect(conn.ID)
	if !ok {
		t.Fatalf("popup rect missing")
	}
	// Midpoint of the flat path is (280,50); derived rect hangs below it.
	if rect.X != 150 || rect.Y != 62 {
		t.Fatalf("derived rect at (%g,%g) want (150,62)", rect.X, rect.Y)
	}

	// Drag by the title row.
	c.MouseDown(200, 70)
	if c.State() != StateDraggingPopup {
		t.Fatalf("state=%s want %s", c.State(), StateDraggingPopup)
	}
	c.MouseMove(230, 100)
	c.MouseUp(230, 100)
	rect, _ = c.PopupRect(conn.ID)
	if rect.X != 180 || rect.Y != 92 {
		t.Fatalf("dragged rect at (%g,%g) want (180,92)", rect.X, rect.Y)
	}

	// Resize by the corner, then shrink past the minimum.
	c.MouseDown(430, 240)
	if c.State() != StateResizingPopup {
		t.Fatalf("state=%s want %s", c.State(), StateResizingPopup)
	}
	c.MouseMove(300, 180)
	rect, _ = c.PopupRect(conn.ID)
	if rect.Width != 130 || rect.Height != 100 {
		t.Fatalf("resized to %gx%g want 130x100", rect.Width, rect.Height)
	}
	c.MouseMove(10, 10)
	rect, _ = c.PopupRect(conn.ID)
	if rect.Width != 120 || rect.Height != 60 {
		t.Fatalf("clamped to %gx%g want 120x60", rect.Width, rect.Height)
	}
	c.MouseUp(10, 10)
}

func TestPopupEscapeRestoresDerivedPlacement(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	conn, _ := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft)
	c := NewController(b)

	c.MouseDown(280, 52)
	c.MouseUp(280, 52)
	derived, _ := c.PopupRect(conn.ID)

	c.MouseDown(200, 70)
	c.MouseMove(260, 140)
	c.Escape()
	rect, _ := c.PopupRect(conn.ID)
	if rect != derived {
		t.Fatalf("escape left popup at %+v want %+v", rect, derived)
	}
	if _, ok := b.Popup(conn.ID); ok {
		t.Fatalf("escape left an override behind")
	}
}

func TestVanishedPopupTargetCloses(t *testing.T) {
	b := board.New()
	a := b.AddBox(0, 0)
	d := b.AddBox(400, 0)
	conn, _ := b.Connect(a.ID, domain.SideRight, d.ID, domain.SideLeft)
	c := NewController(b)

	c.MouseDown(280, 52)
	c.MouseUp(280, 52)
	b.DeleteConnection(conn.ID)
	if _, open := c.ActivePopup(); open {
		t.Fatalf("popup reported open for deleted connection")
	}
}

func TestTogglePinSelected(t *testing.T) {
	b := board.New()
	box := b.AddBox(0, 0)
	c := NewController(b)

	c.MouseDown(80, 50)
	c.MouseUp(80, 50)
	if !c.TogglePinSelected() {
		t.Fatalf("pin toggle failed")
	}
	got, _ := b.Box(box.ID)
	if !got.Pinned {
		t.Fatalf("box not pinned after toggle")
	}
	if !c.TogglePinSelected() {
		t.Fatalf("unpin toggle failed")
	}
	got, _ = b.Box(box.ID)
	if got.Pinned {
		t.Fatalf("box still pinned after second toggle")
	}
}

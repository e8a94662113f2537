package board

import (
	"testing"

	"agentboard/internal/domain"
	"agentboard/internal/geom"
)

func TestAddBoxDefaults(t *testing.T) {
	b := New()

	box := b.AddBox(40, 25)
	if box.ID == "" {
		t.Fatalf("expected generated box id")
	}
	if box.Width != domain.DefaultBoxWidth || box.Height != domain.DefaultBoxHeight {
		t.Fatalf("unexpected default size %gx%g", box.Width, box.Height)
	}
	if box.Role != "" || box.AgentType != domain.AgentTypeCustom {
		t.Fatalf("expected empty role and custom type, got %q %q", box.Role, box.AgentType)
	}

	got, ok := b.Box(box.ID)
	if !ok {
		t.Fatalf("added box not found")
	}
	if got.X != 40 || got.Y != 25 {
		t.Fatalf("box position = (%g,%g) want (40,25)", got.X, got.Y)
	}
}

func TestUpdateBoxUnknownIDIsNoop(t *testing.T) {
	b := New()
	b.AddBox(0, 0)

	if b.UpdateBox("missing", func(box *domain.AgentBox) { box.X = 999 }) {
		t.Fatalf("expected update of unknown id to report false")
	}
	if b.MoveBox("missing", 1, 2) {
		t.Fatalf("expected move of unknown id to report false")
	}
	for _, box := range b.Boxes() {
		if box.X == 999 {
			t.Fatalf("unknown-id update leaked into existing box")
		}
	}
}

func TestUpdateBoxKeepsIdentity(t *testing.T) {
	b := New()
	box := b.AddBox(0, 0)

	b.UpdateBox(box.ID, func(bx *domain.AgentBox) {
		bx.ID = "hijacked"
		bx.Role = "Python Developer"
	})

	got, ok := b.Box(box.ID)
	if !ok {
		t.Fatalf("box lost its id after update")
	}
	if got.Role != "Python Developer" {
		t.Fatalf("role=%q want %q", got.Role, "Python Developer")
	}
}

func TestResizeClampsToMinimum(t *testing.T) {
	b := New()
	box := b.AddBox(0, 0)

	if !b.ResizeBox(box.ID, 10, 5) {
		t.Fatalf("resize failed")
	}
	got, _ := b.Box(box.ID)
	if got.Width != domain.MinBoxWidth || got.Height != domain.MinBoxHeight {
		t.Fatalf("size=%gx%g want clamp to %gx%g", got.Width, got.Height, domain.MinBoxWidth, domain.MinBoxHeight)
	}
}

func TestConnectRejectsSelfLoop(t *testing.T) {
	b := New()
	box := b.AddBox(0, 0)

	if _, ok := b.Connect(box.ID, domain.SideRight, box.ID, domain.SideLeft); ok {
		t.Fatalf("expected self-loop to be rejected")
	}
	if len(b.Connections()) != 0 {
		t.Fatalf("self-loop mutated the connection set")
	}
}

func TestConnectRejectsMissingEndpointsAndBadSides(t *testing.T) {
	b := New()
	a := b.AddBox(0, 0)
	c := b.AddBox(300, 0)

	if _, ok := b.Connect(a.ID, domain.SideRight, "missing", domain.SideLeft); ok {
		t.Fatalf("expected missing endpoint to be rejected")
	}
	if _, ok := b.Connect(a.ID, domain.Side("diagonal"), c.ID, domain.SideLeft); ok {
		t.Fatalf("expected invalid side to be rejected")
	}
	if len(b.Connections()) != 0 {
		t.Fatalf("rejected connects mutated the connection set")
	}
}

func TestConnectPermitsDuplicates(t *testing.T) {
	b := New()
	a := b.AddBox(0, 0)
	c := b.AddBox(300, 0)

	first, ok := b.Connect(a.ID, domain.SideRight, c.ID, domain.SideLeft)
	if !ok {
		t.Fatalf("first connect failed")
	}
	second, ok := b.Connect(a.ID, domain.SideRight, c.ID, domain.SideLeft)
	if !ok {
		t.Fatalf("duplicate connect failed")
	}
	if first.ID == second.ID {
		t.Fatalf("duplicate connection reused id")
	}
	if len(b.Connections()) != 2 {
		t.Fatalf("connections=%d want 2", len(b.Connections()))
	}
}

func TestDeleteBoxCascadesConnections(t *testing.T) {
	b := New()
	a := b.AddBox(0, 0)
	c := b.AddBox(300, 0)
	d := b.AddBox(600, 0)

	if _, ok := b.Connect(a.ID, domain.SideRight, c.ID, domain.SideLeft); !ok {
		t.Fatalf("connect a->c failed")
	}
	conn2, ok := b.Connect(c.ID, domain.SideRight, d.ID, domain.SideLeft)
	if !ok {
		t.Fatalf("connect c->d failed")
	}
	if _, ok := b.Connect(d.ID, domain.SideTop, a.ID, domain.SideBottom); !ok {
		t.Fatalf("connect d->a failed")
	}
	b.SetPopup(conn2.ID, domain.PopupState{X: 1, Y: 2, Width: 30, Height: 10})

	if !b.DeleteBox(c.ID) {
		t.Fatalf("delete box failed")
	}
	for _, conn := range b.Connections() {
		if conn.FromID == c.ID || conn.ToID == c.ID {
			t.Fatalf("dangling connection %s survived cascade", conn.ID)
		}
	}
	if len(b.Connections()) != 1 {
		t.Fatalf("connections=%d want 1", len(b.Connections()))
	}
	if _, ok := b.Popup(conn2.ID); ok {
		t.Fatalf("popup state for cascaded connection survived")
	}
}

func TestDeleteConnectionUnknownIDIsNoop(t *testing.T) {
	b := New()
	a := b.AddBox(0, 0)
	c := b.AddBox(300, 0)
	if _, ok := b.Connect(a.ID, domain.SideRight, c.ID, domain.SideLeft); !ok {
		t.Fatalf("connect failed")
	}

	if b.DeleteConnection("missing") {
		t.Fatalf("expected delete of unknown connection to report false")
	}
	if len(b.Connections()) != 1 {
		t.Fatalf("unknown-id delete mutated the connection set")
	}
}

func TestConnectionPathFollowsBoxes(t *testing.T) {
	b := New()
	a := b.AddBox(0, 0)
	c := b.AddBox(400, 0)
	conn, ok := b.Connect(a.ID, domain.SideRight, c.ID, domain.SideLeft)
	if !ok {
		t.Fatalf("connect failed")
	}

	before, ok := b.ConnectionPath(conn.ID)
	if !ok {
		t.Fatalf("path missing for live connection")
	}
	b.MoveBox(c.ID, 400, 200)
	after, ok := b.ConnectionPath(conn.ID)
	if !ok {
		t.Fatalf("path missing after move")
	}
	if before == after {
		t.Fatalf("path did not follow moved endpoint")
	}
	wantStart := geom.Anchor(mustBox(t, b, a.ID), domain.SideRight)
	if after.Start != wantStart {
		t.Fatalf("path start=%+v want %+v", after.Start, wantStart)
	}
}

func TestZoomAtKeepsCursorFixed(t *testing.T) {
	b := New()

	cursor := geom.Point{X: 80, Y: 30}
	boardBefore := b.ToBoard(cursor)
	b.ZoomAt(1.5, cursor.X, cursor.Y)
	boardAfter := b.ToBoard(cursor)

	if !near(boardBefore.X, boardAfter.X) || !near(boardBefore.Y, boardAfter.Y) {
		t.Fatalf("zoom moved the point under the cursor: %+v vs %+v", boardBefore, boardAfter)
	}
	if b.Viewport().Scale != 1.5 {
		t.Fatalf("scale=%g want 1.5", b.Viewport().Scale)
	}
}

func TestZoomClampsScale(t *testing.T) {
	b := New()

	for i := 0; i < 20; i++ {
		b.ZoomAt(2, 0, 0)
	}
	if b.Viewport().Scale != MaxScale {
		t.Fatalf("scale=%g want max %g", b.Viewport().Scale, MaxScale)
	}
	for i := 0; i < 40; i++ {
		b.ZoomAt(0.5, 0, 0)
	}
	if b.Viewport().Scale != MinScale {
		t.Fatalf("scale=%g want min %g", b.Viewport().Scale, MinScale)
	}
}

func TestScreenBoardRoundTrip(t *testing.T) {
	b := New()
	b.Pan(37, -12)
	b.ZoomAt(1.3, 10, 10)

	p := geom.Point{X: 123.5, Y: -44.25}
	back := b.ToBoard(b.ToScreen(p))
	if !near(p.X, back.X) || !near(p.Y, back.Y) {
		t.Fatalf("round trip %+v -> %+v", p, back)
	}
}

func mustBox(t *testing.T, b *Board, id string) domain.AgentBox {
	t.Helper()
	box, ok := b.Box(id)
	if !ok {
		t.Fatalf("box %s not found", id)
	}
	return box
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

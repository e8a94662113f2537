package geom

import (
	"math"

	"agentboard/internal/domain"
)

type Point struct {
	X float64
	Y float64
}

type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func BoxRect(b domain.AgentBox) Rect {
	return Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Anchor returns the midpoint of the requested side of the box.
func Anchor(b domain.AgentBox, side domain.Side) Point {
	fx, fy := side.Offset()
	return Point{X: b.X + b.Width*fx, Y: b.Y + b.Height*fy}
}

// Path is a single cubic Bezier segment.
type Path struct {
	Start Point
	C1    Point
	C2    Point
	End   Point
}

// CurvePath builds the connection curve between two anchor points. Control
// points sit at the midpoint of the dominant displacement axis so roughly
// aligned boxes get a flat S curve instead of a self-crossing loop.
func CurvePath(p1 Point, p2 Point) Path {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	if math.Abs(dx) >= math.Abs(dy) {
		mx := p1.X + dx/2
		return Path{
			Start: p1,
			C1:    Point{X: mx, Y: p1.Y},
			C2:    Point{X: mx, Y: p2.Y},
			End:   p2,
		}
	}
	my := p1.Y + dy/2
	return Path{
		Start: p1,
		C1:    Point{X: p1.X, Y: my},
		C2:    Point{X: p2.X, Y: my},
		End:   p2,
	}
}

// At evaluates the curve at t in [0,1].
func (p Path) At(t float64) Point {
	u := 1 - t
	b0 := u * u * u
	b1 := 3 * u * u * t
	b2 := 3 * u * t * t
	b3 := t * t * t
	return Point{
		X: b0*p.Start.X + b1*p.C1.X + b2*p.C2.X + b3*p.End.X,
		Y: b0*p.Start.Y + b1*p.C1.Y + b2*p.C2.Y + b3*p.End.Y,
	}
}

func (p Path) Midpoint() Point {
	return p.At(0.5)
}

// Flatten samples n segments along the curve and returns the n+1 points,
// endpoints included.
func (p Path) Flatten(n int) []Point {
	if n < 1 {
		n = 1
	}
	pts := make([]Point, 0, n+1)
	for i := 0; i <= n; i++ {
		pts = append(pts, p.At(float64(i)/float64(n)))
	}
	return pts
}

// DistanceTo returns the distance from pt to the nearest of the sampled
// curve points. Good enough for click picking; not a true projection.
func (p Path) DistanceTo(pt Point, samples int) float64 {
	best := math.Inf(1)
	for _, q := range p.Flatten(samples) {
		d := math.Hypot(q.X-pt.X, q.Y-pt.Y)
		if d < best {
			best = d
		}
	}
	return best
}

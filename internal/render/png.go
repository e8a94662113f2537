// Package render rasterizes a board snapshot to PNG. Coordinates are
// board units; viewport pan and zoom never affect the output.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"agentboard/internal/board"
	"agentboard/internal/domain"
	"agentboard/internal/geom"
)

var ErrEmptyBoard = errors.New("nothing to render")

const (
	baseFontSize  = 13.0
	titleInset    = 22.0
	lineSpacing   = 16.0
	cornerRadius  = 8.0
	arrowSize     = 9.0
	arrowAngle    = 0.5
	anchorDotSize = 3.5
)

type Options struct {
	Scale   float64
	Padding float64
	Dark    bool
}

func (o Options) withDefaults() Options {
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Padding <= 0 {
		o.Padding = 48
	}
	return o
}

func agentFill(t domain.AgentType, dark bool) color.Color {
	if dark {
		switch t {
		case domain.AgentTypeCoordinator:
			return color.RGBA{R: 0x5b, G: 0x3a, B: 0x8c, A: 0xff}
		case domain.AgentTypeCoder:
			return color.RGBA{R: 0x1f, G: 0x4e, B: 0x79, A: 0xff}
		case domain.AgentTypeTester:
			return color.RGBA{R: 0x1e, G: 0x5e, B: 0x3a, A: 0xff}
		case domain.AgentTypeRunner:
			return color.RGBA{R: 0x8c, G: 0x5a, B: 0x1f, A: 0xff}
		}
		return color.RGBA{R: 0x3a, G: 0x3a, B: 0x3a, A: 0xff}
	}
	switch t {
	case domain.AgentTypeCoordinator:
		return color.RGBA{R: 0xd9, G: 0xc8, B: 0xf5, A: 0xff}
	case domain.AgentTypeCoder:
		return color.RGBA{R: 0xc3, G: 0xdd, B: 0xf5, A: 0xff}
	case domain.AgentTypeTester:
		return color.RGBA{R: 0xc8, G: 0xeb, B: 0xd4, A: 0xff}
	case domain.AgentTypeRunner:
		return color.RGBA{R: 0xf5, G: 0xdf, B: 0xc0, A: 0xff}
	}
	return color.RGBA{R: 0xe2, G: 0xe2, B: 0xe2, A: 0xff}
}

// Image renders the snapshot into memory. The caller owns the result.
func Image(snap board.Snapshot, opts Options) (image.Image, error) {
	opts = opts.withDefaults()
	if len(snap.Boxes) == 0 {
		return nil, ErrEmptyBoard
	}

	minX, minY := snap.Boxes[0].X, snap.Boxes[0].Y
	maxX, maxY := minX, minY
	for _, b := range snap.Boxes {
		minX = math.Min(minX, b.X)
		minY = math.Min(minY, b.Y)
		maxX = math.Max(maxX, b.X+b.Width)
		maxY = math.Max(maxY, b.Y+b.Height)
	}
	minX -= opts.Padding
	minY -= opts.Padding
	maxX += opts.Padding
	maxY += opts.Padding

	width := int(math.Ceil((maxX - minX) * opts.Scale))
	height := int(math.Ceil((maxY - minY) * opts.Scale))
	if width < 1 || height < 1 {
		return nil, ErrEmptyBoard
	}

	dc := gg.NewContext(width, height)

	var background, ink color.Color = color.White, color.Black
	if opts.Dark {
		background = color.RGBA{R: 0x16, G: 0x16, B: 0x20, A: 0xff}
		ink = color.RGBA{R: 0xe8, G: 0xe8, B: 0xe8, A: 0xff}
	}
	dc.SetColor(background)
	dc.Clear()

	ttfFont, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face := truetype.NewFace(ttfFont, &truetype.Options{
		Size:    baseFontSize * opts.Scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	dc.SetFontFace(face)

	project := func(p geom.Point) (float64, float64) {
		return (p.X - minX) * opts.Scale, (p.Y - minY) * opts.Scale
	}

	boxByID := make(map[string]domain.AgentBox, len(snap.Boxes))
	for _, b := range snap.Boxes {
		boxByID[b.ID] = b
	}

	// Connections go down first so boxes cover the curve ends.
	for _, conn := range snap.Connections {
		from, okFrom := boxByID[conn.FromID]
		to, okTo := boxByID[conn.ToID]
		if !okFrom || !okTo {
			continue
		}
		path := geom.CurvePath(geom.Anchor(from, conn.FromSide), geom.Anchor(to, conn.ToSide))
		drawConnection(dc, path, project, ink, opts.Scale)
	}

	for _, b := range snap.Boxes {
		drawBox(dc, b, project, ink, opts)
	}

	return dc.Image(), nil
}

// WritePNG renders the snapshot and writes it to path.
func WritePNG(snap board.Snapshot, path string, opts Options) error {
	img, err := Image(snap, opts)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func drawConnection(dc *gg.Context, path geom.Path, project func(geom.Point) (float64, float64), ink color.Color, scale float64) {
	sx, sy := project(path.Start)
	c1x, c1y := project(path.C1)
	c2x, c2y := project(path.C2)
	ex, ey := project(path.End)

	dc.SetColor(ink)
	dc.SetLineWidth(1.5 * scale)
	dc.MoveTo(sx, sy)
	dc.CubicTo(c1x, c1y, c2x, c2y, ex, ey)
	dc.Stroke()

	// The tangent at the end of a cubic runs from the last control point
	// to the endpoint.
	drawArrow(dc, c2x, c2y, ex, ey, scale)

	dc.DrawCircle(sx, sy, anchorDotSize*scale)
	dc.Fill()
}

func drawArrow(dc *gg.Context, fromX, fromY, toX, toY, scale float64) {
	dx := toX - fromX
	dy := toY - fromY
	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length

	size := arrowSize * scale
	baseX1 := toX - size*dx + size*dy*arrowAngle
	baseY1 := toY - size*dy - size*dx*arrowAngle
	baseX2 := toX - size*dx - size*dy*arrowAngle
	baseY2 := toY - size*dy + size*dx*arrowAngle

	dc.MoveTo(toX, toY)
	dc.LineTo(baseX1, baseY1)
	dc.LineTo(baseX2, baseY2)
	dc.ClosePath()
	dc.Fill()
}

func drawBox(dc *gg.Context, b domain.AgentBox, project func(geom.Point) (float64, float64), ink color.Color, opts Options) {
	x, y := project(geom.Point{X: b.X, Y: b.Y})
	w := b.Width * opts.Scale
	h := b.Height * opts.Scale

	dc.SetColor(agentFill(b.AgentType, opts.Dark))
	dc.DrawRoundedRectangle(x, y, w, h, cornerRadius*opts.Scale)
	dc.Fill()

	dc.SetColor(ink)
	dc.SetLineWidth(1.5 * opts.Scale)
	dc.DrawRoundedRectangle(x, y, w, h, cornerRadius*opts.Scale)
	dc.Stroke()

	if b.Pinned {
		dc.DrawCircle(x+w-8*opts.Scale, y+8*opts.Scale, 3*opts.Scale)
		dc.Fill()
	}

	title := string(b.AgentType)
	dc.DrawString(title, x+8*opts.Scale, y+titleInset*opts.Scale)
	lineY := y + (titleInset+lineSpacing)*opts.Scale
	if b.Role != "" {
		dc.DrawString(b.Role, x+8*opts.Scale, lineY)
		lineY += lineSpacing * opts.Scale
	}
	if b.Model != "" {
		dc.DrawString(b.Model, x+8*opts.Scale, lineY)
	}
}

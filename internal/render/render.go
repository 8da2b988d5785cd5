// Package render draws world snapshots to PNG.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"robot-sim/internal/engine"
	"robot-sim/internal/sim"
)

// DefaultCellSize is the edge length of one cell in pixels.
const DefaultCellSize = 24

// Options controls what is drawn.
type Options struct {
	CellSize int // pixels per cell, DefaultCellSize if <= 0
	Labels   bool

	// View, if set, overlays one agent's visibility and remembered walls.
	View *engine.AgentView
}

// Agent colors cycle through this palette by id.
var palette = []string{
	"#ff3e3e", "#3e8eff", "#53ff45", "#ff9500",
	"#c23eff", "#00d5c8", "#ffd500", "#ff5fa8",
}

var (
	background   = color.RGBA{250, 250, 255, 255}
	gridLine     = color.RGBA{30, 30, 45, 40}
	wallColor    = color.RGBA{40, 40, 52, 255}
	visibleColor = color.RGBA{255, 230, 120, 90}
	memoryColor  = color.RGBA{200, 60, 60, 110}
	labelColor   = color.RGBA{20, 25, 35, 255}
)

// Render draws snap into a new image.
func Render(snap *engine.Snapshot, opts Options) image.Image {
	return draw(snap, opts).Image()
}

// RenderPNG draws snap and encodes it as PNG to w.
func RenderPNG(w io.Writer, snap *engine.Snapshot, opts Options) error {
	if err := draw(snap, opts).EncodePNG(w); err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	return nil
}

func draw(snap *engine.Snapshot, opts Options) *gg.Context {
	cell := float64(opts.CellSize)
	if opts.CellSize <= 0 {
		cell = DefaultCellSize
	}

	dc := gg.NewContext(int(cell)*snap.Width, int(cell)*snap.Height)
	dc.SetColor(background)
	dc.Clear()

	if opts.View != nil {
		drawView(dc, opts.View, cell)
	}
	drawWalls(dc, snap, cell)
	drawGrid(dc, snap.Width, snap.Height, cell)
	drawGoals(dc, snap.Agents, cell)
	drawAgents(dc, snap.Agents, cell, opts.Labels)

	return dc
}

func drawGrid(dc *gg.Context, cols, rows int, cell float64) {
	dc.SetColor(gridLine)
	dc.SetLineWidth(1)

	w, h := float64(cols)*cell, float64(rows)*cell
	for x := 0; x <= cols; x++ {
		dc.DrawLine(float64(x)*cell, 0, float64(x)*cell, h)
		dc.Stroke()
	}
	for y := 0; y <= rows; y++ {
		dc.DrawLine(0, float64(y)*cell, w, float64(y)*cell)
		dc.Stroke()
	}
}

func drawWalls(dc *gg.Context, snap *engine.Snapshot, cell float64) {
	dc.SetColor(wallColor)
	for y := 0; y < snap.Height; y++ {
		for x := 0; x < snap.Width; x++ {
			if snap.CellAt(x, y) == sim.CellWall {
				dc.DrawRectangle(float64(x)*cell, float64(y)*cell, cell, cell)
			}
		}
	}
	dc.Fill()
}

func drawView(dc *gg.Context, v *engine.AgentView, cell float64) {
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			switch {
			case v.CanSee(x, y):
				dc.SetColor(visibleColor)
			case v.Remembered(x, y) == sim.CellWall:
				// Remembered but currently unseen.
				dc.SetColor(memoryColor)
			default:
				continue
			}
			dc.DrawRectangle(float64(x)*cell, float64(y)*cell, cell, cell)
			dc.Fill()
		}
	}
}

func drawGoals(dc *gg.Context, agents []engine.AgentSnapshot, cell float64) {
	dc.SetLineWidth(2)
	for _, a := range agents {
		if !a.HasGoal {
			continue
		}
		c := agentColor(a.ID)
		gx := (float64(a.GoalX) + 0.5) * cell
		gy := (float64(a.GoalY) + 0.5) * cell
		px, py := a.Position()

		dc.SetColor(color.RGBA{c.R, c.G, c.B, 110})
		dc.DrawLine(px*cell, py*cell, gx, gy)
		dc.Stroke()

		// Cross on the goal cell.
		r := cell * 0.3
		dc.SetColor(c)
		dc.DrawLine(gx-r, gy-r, gx+r, gy+r)
		dc.DrawLine(gx-r, gy+r, gx+r, gy-r)
		dc.Stroke()
	}
}

func drawAgents(dc *gg.Context, agents []engine.AgentSnapshot, cell float64, labels bool) {
	radius := cell * 0.35
	if labels {
		dc.SetFontFace(basicfont.Face7x13)
	}

	for _, a := range agents {
		px, py := a.Position()
		x, y := px*cell, py*cell

		dc.SetColor(agentColor(a.ID))
		dc.DrawCircle(x, y, radius)
		dc.Fill()

		dc.SetColor(color.White)
		dc.SetLineWidth(2)
		dc.DrawCircle(x, y, radius)
		dc.Stroke()

		if labels {
			dc.SetColor(labelColor)
			dc.DrawStringAnchored(fmt.Sprintf("%d", a.ID), x, y-radius-6, 0.5, 0.5)
		}
	}
}

func agentColor(id uint32) color.RGBA {
	return parseHexColor(palette[int(id)%len(palette)])
}

func parseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b)
	return color.RGBA{r, g, b, 255}
}

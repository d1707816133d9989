// Package preview renders a top-down PNG of an arena snapshot, with the
// spatial grid occupancy as a heat overlay.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"space-arena/internal/arena"

	"github.com/fogleman/gg"
)

// Scene is everything one preview frame shows.
type Scene struct {
	WorldWidth  float64
	WorldHeight float64
	Statics     []arena.BodySnapshot
	Dynamics    []arena.BodySnapshot

	// Grid occupancy; zero CellsX disables the overlay.
	CellsX, CellsY int
	CellSize       float64
	Occupancy      []int
}

// Source is what CaptureScene reads from.
type Source interface {
	WorldSize() (width, height float64)
	StaticSnapshot() []arena.BodySnapshot
	DynamicSnapshot() []arena.BodySnapshot
	GridOccupancy() (cellsX, cellsY int, cellSize float64, counts []int)
}

// CaptureScene takes the current snapshots of src.
func CaptureScene(src Source) Scene {
	w, h := src.WorldSize()
	cx, cy, size, occ := src.GridOccupancy()
	return Scene{
		WorldWidth:  w,
		WorldHeight: h,
		Statics:     src.StaticSnapshot(),
		Dynamics:    src.DynamicSnapshot(),
		CellsX:      cx,
		CellsY:      cy,
		CellSize:    size,
		Occupancy:   occ,
	}
}

var kindColors = map[arena.Kind]color.RGBA{
	arena.KindStatic:     {255, 196, 64, 255},
	arena.KindDynamic:    {150, 150, 160, 255},
	arena.KindPlayer:     {83, 255, 69, 255},
	arena.KindProjectile: {255, 62, 62, 255},
	arena.KindDecorator:  {90, 90, 140, 120},
}

// Renderer draws scenes at a fixed image width.
type Renderer struct {
	width int
}

// NewRenderer returns a renderer producing images width pixels wide; the
// height follows the world aspect ratio.
func NewRenderer(width int) (*Renderer, error) {
	if width <= 0 || width > 4096 {
		return nil, fmt.Errorf("preview: width %d out of range", width)
	}
	return &Renderer{width: width}, nil
}

// Render draws scene.
func (r *Renderer) Render(scene Scene) (image.Image, error) {
	dc, err := r.draw(scene)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// EncodePNG renders scene and writes it to w.
func (r *Renderer) EncodePNG(w io.Writer, scene Scene) error {
	dc, err := r.draw(scene)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

func (r *Renderer) draw(scene Scene) (*gg.Context, error) {
	if scene.WorldWidth <= 0 || scene.WorldHeight <= 0 {
		return nil, fmt.Errorf("preview: invalid world %vx%v", scene.WorldWidth, scene.WorldHeight)
	}
	scale := float64(r.width) / scene.WorldWidth
	height := int(math.Ceil(scene.WorldHeight * scale))

	dc := gg.NewContext(r.width, height)
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.Clear()

	r.drawOccupancy(dc, scene, scale)

	for _, b := range scene.Statics {
		drawBody(dc, b, scale)
	}
	for _, b := range scene.Dynamics {
		drawBody(dc, b, scale)
	}
	return dc, nil
}

func (r *Renderer) drawOccupancy(dc *gg.Context, scene Scene, scale float64) {
	if scene.CellsX == 0 || len(scene.Occupancy) != scene.CellsX*scene.CellsY {
		return
	}

	peak := 0
	for _, n := range scene.Occupancy {
		peak = max(peak, n)
	}

	cell := scene.CellSize * scale
	dc.SetLineWidth(1)
	for i, n := range scene.Occupancy {
		x := float64(i%scene.CellsX) * cell
		y := float64(i/scene.CellsX) * cell
		if n > 0 {
			alpha := uint8(40 + 160*n/max(peak, 1))
			dc.SetColor(color.RGBA{40, 120, 255, alpha})
			dc.DrawRectangle(x, y, cell, cell)
			dc.Fill()
		}
		dc.SetColor(color.RGBA{30, 30, 45, 255})
		dc.DrawRectangle(x, y, cell, cell)
		dc.Stroke()
	}
}

func drawBody(dc *gg.Context, b arena.BodySnapshot, scale float64) {
	x, y := b.State.PosX*scale, b.State.PosY*scale
	radius := math.Max(b.State.Size*0.5*scale, 1)

	dc.SetColor(kindColors[b.Kind])
	dc.DrawCircle(x, y, radius)
	dc.Fill()

	if b.Kind == arena.KindPlayer {
		hx, hy := b.State.Heading()
		dc.SetColor(color.White)
		dc.SetLineWidth(2)
		dc.DrawLine(x, y, x+hx*radius*1.6, y+hy*radius*1.6)
		dc.Stroke()
	}
}

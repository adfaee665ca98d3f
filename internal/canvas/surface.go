package canvas

import (
	"image"
	"image/draw"
	"math"

	"nines/internal/raster"
	"nines/pkg/colorutil"
	"nines/pkg/geometry"

	"golang.org/x/image/vector"
)

// capSegments is the number of polygon vertices used for round stroke caps.
const capSegments = 16

// Stroke is one pen-down to pen-up path in world coordinates.
type Stroke []geometry.Point2D

// Surface accumulates strokes drawn on the UI side. It is not safe for
// concurrent use; recognition works on Snapshot results instead.
type Surface struct {
	View    View
	strokes []Stroke
	current Stroke
}

// NewSurface creates an empty surface with the default view.
func NewSurface() *Surface {
	return &Surface{View: DefaultView()}
}

// Begin starts a new stroke at a screen position.
func (s *Surface) Begin(screen geometry.Point2D) {
	s.current = Stroke{s.View.ScreenToWorld(screen)}
}

// Extend adds a screen position to the stroke in progress.
func (s *Surface) Extend(screen geometry.Point2D) {
	if s.current == nil {
		return
	}
	s.current = append(s.current, s.View.ScreenToWorld(screen))
}

// End finishes the stroke in progress.
func (s *Surface) End() {
	if s.current != nil {
		s.strokes = append(s.strokes, s.current)
	}
	s.current = nil
}

// Add appends a complete world-space stroke.
func (s *Surface) Add(stroke Stroke) {
	cp := make(Stroke, len(stroke))
	copy(cp, stroke)
	s.strokes = append(s.strokes, cp)
}

// Strokes returns the number of finished strokes.
func (s *Surface) Strokes() int {
	return len(s.strokes)
}

// Clear drops every stroke.
func (s *Surface) Clear() {
	s.strokes = nil
	s.current = nil
}

// Snapshot renders the surface into an immutable buffer of the given
// screen size: white paper, black ink, strokes scaled with the view.
func (s *Surface) Snapshot(width, height int) (*raster.Buffer, error) {
	return Render(width, height, s.View, s.strokes)
}

// Render rasterizes strokes through a view onto a fresh white canvas.
// Strokes with fewer than two points are skipped.
func Render(width, height int, view View, strokes []Stroke) (*raster.Buffer, error) {
	if width <= 0 || height <= 0 {
		return raster.NewBuffer(width, height, nil)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(colorutil.Paper), image.Point{}, draw.Src)

	view = view.Normalized()
	xf := view.Transform()
	radius := LineWidth * view.Zoom / 2

	r := vector.NewRasterizer(width, height)
	r.DrawOp = draw.Over
	drawn := false
	for _, stroke := range strokes {
		if len(stroke) < 2 {
			continue
		}
		pts := make([]geometry.Point2D, len(stroke))
		for i, p := range stroke {
			pts[i] = xf.Apply(p)
		}
		for i := 1; i < len(pts); i++ {
			addSegment(r, pts[i-1], pts[i], radius)
		}
		for _, p := range pts {
			addDisc(r, p, radius)
		}
		drawn = true
	}
	if drawn {
		r.Draw(dst, dst.Bounds(), image.NewUniform(colorutil.Ink), image.Point{})
	}

	return raster.FromImage(dst)
}

// addSegment adds a counter-clockwise quad of half-width radius around a->b.
// Every sub-path shares the same winding so overlaps saturate instead of
// cancelling.
func addSegment(r *vector.Rasterizer, a, b geometry.Point2D, radius float64) {
	n := b.Sub(a).Normal().Scale(radius)
	if n == (geometry.Point2D{}) {
		return
	}
	p0 := a.Sub(n)
	p1 := b.Sub(n)
	p2 := b.Add(n)
	p3 := a.Add(n)
	if cross(p1.Sub(p0), p2.Sub(p0)) < 0 {
		p0, p1, p2, p3 = p3, p2, p1, p0
	}
	r.MoveTo(float32(p0.X), float32(p0.Y))
	r.LineTo(float32(p1.X), float32(p1.Y))
	r.LineTo(float32(p2.X), float32(p2.Y))
	r.LineTo(float32(p3.X), float32(p3.Y))
	r.ClosePath()
}

// addDisc adds a counter-clockwise polygonal disc used for round caps and joins.
func addDisc(r *vector.Rasterizer, c geometry.Point2D, radius float64) {
	for i := 0; i <= capSegments; i++ {
		angle := float64(i) * 2 * math.Pi / capSegments
		x := float32(c.X + radius*math.Cos(angle))
		y := float32(c.Y + radius*math.Sin(angle))
		if i == 0 {
			r.MoveTo(x, y)
		} else {
			r.LineTo(x, y)
		}
	}
	r.ClosePath()
}

func cross(a, b geometry.Point2D) float64 {
	return a.X*b.Y - a.Y*b.X
}

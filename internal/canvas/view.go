// Package canvas is the drawing-surface boundary: it keeps freehand strokes
// in world coordinates, maps them through a pan/zoom view and renders an
// immutable raster snapshot for recognition.
package canvas

import (
	"math"

	"nines/pkg/geometry"
)

// Zoom limits and wheel step of the drawing surface.
const (
	MinZoom   = 0.5
	MaxZoom   = 2.0
	ZoomStep  = 0.05
	LineWidth = 4.0
)

// View maps world coordinates to screen pixels: screen = world*Zoom + Pan.
type View struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`
}

// DefaultView returns an unzoomed, unpanned view.
func DefaultView() View {
	return View{Zoom: 1}
}

// Normalized returns the view with Zoom clamped to [MinZoom, MaxZoom].
// A zero Zoom is treated as 1.
func (v View) Normalized() View {
	if v.Zoom == 0 {
		v.Zoom = 1
	}
	v.Zoom = math.Min(math.Max(v.Zoom, MinZoom), MaxZoom)
	return v
}

// Transform returns the world-to-screen transform.
func (v View) Transform() geometry.AffineTransform {
	v = v.Normalized()
	return geometry.Translation(v.PanX, v.PanY).Compose(geometry.Scale(v.Zoom, v.Zoom))
}

// ScreenToWorld converts a screen position to world coordinates.
func (v View) ScreenToWorld(p geometry.Point2D) geometry.Point2D {
	inv, ok := v.Transform().Inverse()
	if !ok {
		return p
	}
	return inv.Apply(p)
}

// Pan returns the view shifted by (dx, dy) screen pixels.
func (v View) Pan(dx, dy float64) View {
	v.PanX += dx
	v.PanY += dy
	return v
}

// ZoomAt applies one wheel notch at a screen position. A positive wheel
// delta zooms out. The world point under the cursor stays fixed.
func (v View) ZoomAt(screen geometry.Point2D, wheelDelta float64) View {
	v = v.Normalized()
	world := v.ScreenToWorld(screen)

	step := ZoomStep
	if wheelDelta > 0 {
		step = -ZoomStep
	}
	zoom := math.Min(math.Max(v.Zoom+step, MinZoom), MaxZoom)

	return View{
		Zoom: zoom,
		PanX: screen.X - world.X*zoom,
		PanY: screen.Y - world.Y*zoom,
	}
}

// Package segment splits a binary drawing mask into per-symbol regions
// using connected-component labeling.
package segment

import (
	"fmt"

	"nines/internal/raster"
	"nines/pkg/geometry"

	"gocv.io/x/gocv"
)

// Column layout of the OpenCV connected-component stats matrix.
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
)

// Region is the bounding box of one connected ink component. Bounds are
// inclusive. Area is the component's pixel count, not the box area.
type Region struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
	Area int `json:"area"`
}

// Width returns the inclusive box width.
func (r Region) Width() int { return r.MaxX - r.MinX + 1 }

// Height returns the inclusive box height.
func (r Region) Height() int { return r.MaxY - r.MinY + 1 }

// Rect returns the region as a pixel rectangle.
func (r Region) Rect() geometry.RectInt {
	return geometry.RectInt{X: r.MinX, Y: r.MinY, Width: r.Width(), Height: r.Height()}
}

// Params controls component labeling and noise filtering.
type Params struct {
	MinArea      int // components with fewer pixels are dropped
	Connectivity int // 4 or 8
}

// DefaultParams returns the drawing-surface defaults.
func DefaultParams() Params {
	return Params{
		MinArea:      10,
		Connectivity: 8,
	}
}

// WithMinArea returns a copy of params with a different noise floor.
func (p Params) WithMinArea(minArea int) Params {
	p.MinArea = minArea
	return p
}

// WithConnectivity returns a copy of params with 4- or 8-connectivity.
func (p Params) WithConnectivity(conn int) Params {
	p.Connectivity = conn
	return p
}

// Segment labels the mask's foreground and returns every component with
// at least MinArea pixels, in label discovery (raster scan) order.
// Touching glyphs come back as a single region.
func Segment(mask raster.Mask, params Params) ([]Region, error) {
	if mask.Width == 0 || mask.Height == 0 || mask.Count() == 0 {
		return nil, nil
	}
	conn := params.Connectivity
	if conn != 4 {
		conn = 8
	}

	src, err := gocv.NewMatFromBytes(mask.Height, mask.Width, gocv.MatTypeCV8U, mask.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to build mask matrix: %w", err)
	}
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStatsWithParams(src, &labels, &stats, &centroids,
		conn, gocv.MatTypeCV32S, gocv.CCL_WU)

	var regions []Region
	// Label 0 is the background.
	for label := 1; label < n; label++ {
		area := int(stats.GetIntAt(label, statArea))
		if area < params.MinArea {
			continue
		}
		left := int(stats.GetIntAt(label, statLeft))
		top := int(stats.GetIntAt(label, statTop))
		regions = append(regions, Region{
			MinX: left,
			MinY: top,
			MaxX: left + int(stats.GetIntAt(label, statWidth)) - 1,
			MaxY: top + int(stats.GetIntAt(label, statHeight)) - 1,
			Area: area,
		})
	}

	return regions, nil
}

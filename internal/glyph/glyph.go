// Package glyph crops segmented regions out of the drawing mask and turns
// them into fixed-size classifier input tensors.
package glyph

import (
	"errors"
	"fmt"
	"image"

	"nines/internal/raster"
	"nines/internal/segment"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
)

// ErrEmptyRegion is returned for regions that do not overlap the mask.
var ErrEmptyRegion = errors.New("region has no pixels inside the mask")

// Interpolation selects how the cropped patch is resampled. It must match
// what the loaded classifier was trained on.
type Interpolation string

const (
	Nearest Interpolation = "nearest"
	Linear  Interpolation = "linear"
)

func (i Interpolation) flag() gocv.InterpolationFlags {
	if i == Linear {
		return gocv.InterpolationLinear
	}
	return gocv.InterpolationNearestNeighbor
}

// Params holds glyph normalization settings.
type Params struct {
	Size          int           // square tensor side, e.g. 28
	Interpolation Interpolation // resampling policy
	Invert        bool          // false: ink=1.0, paper=0.0
}

// DefaultParams returns the 28x28 nearest-neighbor input contract.
func DefaultParams() Params {
	return Params{
		Size:          28,
		Interpolation: Nearest,
	}
}

// WithSize returns a copy of params with a different tensor side.
func (p Params) WithSize(size int) Params {
	p.Size = size
	return p
}

// WithInterpolation returns a copy of params with a different resampling policy.
func (p Params) WithInterpolation(i Interpolation) Params {
	p.Interpolation = i
	return p
}

// WithInvert returns a copy of params with the given polarity.
func (p Params) WithInvert(invert bool) Params {
	p.Invert = invert
	return p
}

// Glyph is one normalized symbol candidate.
type Glyph struct {
	Region segment.Region
	Size   int
	Tensor []float32 // Size*Size values in [0,1], row-major, single channel
}

// At returns the tensor value at (x, y).
func (g Glyph) At(x, y int) float32 {
	return g.Tensor[y*g.Size+x]
}

// Image renders the tensor as a grayscale image upscaled by scale, for
// inspection and debug dumps.
func (g Glyph) Image(scale int) image.Image {
	img := image.NewGray(image.Rect(0, 0, g.Size, g.Size))
	for i, v := range g.Tensor {
		img.Pix[i] = uint8(v*255 + 0.5)
	}
	if scale <= 1 {
		return img
	}
	return resize.Resize(uint(g.Size*scale), uint(g.Size*scale), img, resize.NearestNeighbor)
}

// Normalizer crops regions out of one mask. Close releases the native mask copy.
type Normalizer struct {
	mask   gocv.Mat
	width  int
	height int
	params Params
}

// NewNormalizer prepares a mask for repeated cropping.
func NewNormalizer(mask raster.Mask, params Params) (*Normalizer, error) {
	if params.Size <= 0 {
		return nil, fmt.Errorf("invalid glyph size %d", params.Size)
	}
	if mask.Width == 0 || mask.Height == 0 {
		return nil, fmt.Errorf("empty mask")
	}
	m, err := gocv.NewMatFromBytes(mask.Height, mask.Width, gocv.MatTypeCV8U, mask.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to build mask matrix: %w", err)
	}
	return &Normalizer{mask: m, width: mask.Width, height: mask.Height, params: params}, nil
}

// Close releases native resources.
func (n *Normalizer) Close() error {
	return n.mask.Close()
}

// Normalize crops the region's inclusive bounding box, resizes it to
// Size x Size and scales it to [0,1].
func (n *Normalizer) Normalize(r segment.Region) (Glyph, error) {
	x0, y0 := max(r.MinX, 0), max(r.MinY, 0)
	x1, y1 := min(r.MaxX+1, n.width), min(r.MaxY+1, n.height)
	if x1 <= x0 || y1 <= y0 {
		return Glyph{}, fmt.Errorf("%w: %+v", ErrEmptyRegion, r)
	}

	crop := n.mask.Region(image.Rect(x0, y0, x1, y1))
	defer crop.Close()

	size := n.params.Size
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(crop, &scaled, image.Pt(size, size), 0, 0, n.params.Interpolation.flag())

	tensor := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := float32(scaled.GetUCharAt(y, x)) / 255
			if n.params.Invert {
				v = 1 - v
			}
			tensor[y*size+x] = v
		}
	}

	return Glyph{Region: r, Size: size, Tensor: tensor}, nil
}

// Normalize is a one-shot convenience around Normalizer.
func Normalize(mask raster.Mask, r segment.Region, params Params) (Glyph, error) {
	n, err := NewNormalizer(mask, params)
	if err != nil {
		return Glyph{}, err
	}
	defer n.Close()
	return n.Normalize(r)
}

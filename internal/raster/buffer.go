// Package raster provides the immutable pixel buffers handed over by the
// drawing surface and the binary masks derived from them.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/tiff"
)

// ErrInvalidBuffer is returned when a buffer's dimensions and sample count disagree.
var ErrInvalidBuffer = errors.New("invalid raster buffer")

// Buffer is an immutable RGBA snapshot of the drawing surface.
// Pix holds 4 non-premultiplied 8-bit samples per pixel, row-major.
type Buffer struct {
	width  int
	height int
	pix    []uint8
}

// NewBuffer validates and copies pix into a new Buffer.
func NewBuffer(width, height int, pix []uint8) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInvalidBuffer, len(pix), width*height*4)
	}
	cp := make([]uint8, len(pix))
	copy(cp, pix)
	return &Buffer{width: width, height: height, pix: cp}, nil
}

// FromImage snapshots any image into a Buffer.
func FromImage(img image.Image) (*Buffer, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidBuffer)
	}
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	return &Buffer{width: b.Dx(), height: b.Dy(), pix: nrgba.Pix}, nil
}

// Load decodes a PNG, JPEG or TIFF file into a Buffer.
func Load(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads a PNG, JPEG or TIFF stream into a Buffer.
func Decode(r io.Reader) (*Buffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img)
}

// ErrTooLarge marks an image whose declared size exceeds the caller's limit.
var ErrTooLarge = errors.New("image too large")

// DecodeLimited reads the image header first and refuses images wider or
// taller than maxSide before any pixel data is decoded.
func DecodeLimited(r io.ReadSeeker, maxSide int) (*Buffer, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width > maxSide || cfg.Height > maxSide {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, cfg.Width, cfg.Height, maxSide)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}
	return Decode(r)
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// At returns the sample at (x, y).
func (b *Buffer) At(x, y int) color.NRGBA {
	i := (y*b.width + x) * 4
	return color.NRGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: b.pix[i+3]}
}

// Image returns a copy of the buffer as an image.
func (b *Buffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	copy(img.Pix, b.pix)
	return img
}

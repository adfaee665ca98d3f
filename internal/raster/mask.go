package raster

import (
	"image"

	"nines/pkg/colorutil"
)

// DefaultThreshold is the luminance below which a pixel counts as ink.
const DefaultThreshold = 200

// Mask is a binary foreground/background map with the dimensions of its
// source buffer. Bits are 1 for ink, 0 for paper.
type Mask struct {
	Width  int
	Height int
	Bits   []uint8
}

// NewMask builds a mask from row-major rows of 0/1 values. Any non-zero
// value counts as foreground. Rows must all have the same length.
func NewMask(rows [][]uint8) Mask {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Mask{}
	}
	m := Mask{Width: len(rows[0]), Height: len(rows)}
	m.Bits = make([]uint8, m.Width*m.Height)
	for y, row := range rows {
		for x := 0; x < m.Width && x < len(row); x++ {
			if row[x] != 0 {
				m.Bits[y*m.Width+x] = 1
			}
		}
	}
	return m
}

// At returns the bit at (x, y); out-of-bounds reads return 0.
func (m Mask) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Bits[y*m.Width+x]
}

// Count returns the number of foreground pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		n += int(b)
	}
	return n
}

// Bytes returns the mask scaled to 0/255, one byte per pixel, suitable for
// an 8-bit single channel image.
func (m Mask) Bytes() []byte {
	out := make([]byte, len(m.Bits))
	for i, b := range m.Bits {
		if b != 0 {
			out[i] = 255
		}
	}
	return out
}

// Gray renders the mask as white ink on black.
func (m Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Bytes())
	return img
}

// Binarize converts a buffer to a mask. A pixel is foreground when the
// mean of its R, G and B samples is strictly below threshold.
func Binarize(b *Buffer, threshold float64) Mask {
	m := Mask{Width: b.width, Height: b.height, Bits: make([]uint8, b.width*b.height)}
	for i := range m.Bits {
		p := b.pix[i*4:]
		if colorutil.MeanGray(p[0], p[1], p[2]) < threshold {
			m.Bits[i] = 1
		}
	}
	return m
}

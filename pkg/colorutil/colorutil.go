// Package colorutil provides shared color utilities for the recognizer.
package colorutil

import (
	"image/color"
)

// Drawing surface palette.
var (
	Ink   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	Paper = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// MeanGray returns the unweighted mean of the R, G and B channels (0-255).
// Alpha is ignored.
func MeanGray(r, g, b uint8) float64 {
	return (float64(r) + float64(g) + float64(b)) / 3
}

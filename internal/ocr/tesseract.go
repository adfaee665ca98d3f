// Package ocr provides a Tesseract-backed symbol recognizer, used when no
// trained model artifact is available.
package ocr

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"nines/internal/classify"
	"nines/internal/glyph"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// MinHeight is the glyph height Tesseract is fed after upscaling.
const MinHeight = 96

// Engine recognizes one glyph at a time with Tesseract restricted to the
// label alphabet. Tesseract clients are not safe for concurrent use, so
// calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	labels classify.Labels
}

// NewEngine creates a recognizer for labels.
func NewEngine(labels classify.Labels) (*Engine, error) {
	if err := labels.Validate(len(labels)); err != nil {
		return nil, err
	}
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// No dictionary: the input is a single symbol, not a word.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := client.SetWhitelist(labels.Alphabet()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	return &Engine{client: client, labels: labels}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Classify recognizes g. When Tesseract finds nothing in the alphabet the
// first label is returned with zero confidence.
func (e *Engine) Classify(g glyph.Glyph) (classify.Symbol, error) {
	mat, err := glyphMat(g)
	if err != nil {
		return classify.Symbol{}, err
	}
	defer mat.Close()

	processed := preprocessForOCR(mat)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return classify.Symbol{}, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return classify.Symbol{}, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return classify.Symbol{}, fmt.Errorf("OCR failed: %w", err)
	}

	sym, ok := pickSymbol(boxes, e.labels)
	if !ok {
		log.Warn().Int("x", g.Region.MinX).Int("boxes", len(boxes)).Msg("OCR: no symbol recognized")
	}
	sym.AnchorX = g.Region.MinX
	return sym, nil
}

// pickSymbol returns the most confident box whose text is a label.
func pickSymbol(boxes []gosseract.BoundingBox, labels classify.Labels) (classify.Symbol, bool) {
	best := classify.Symbol{Symbol: labels[0], Index: 0}
	found := false
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		idx := labels.Index(text)
		if idx < 0 {
			continue
		}
		conf := min(max(box.Confidence/100, 0), 1)
		if !found || conf > best.Confidence {
			best = classify.Symbol{Symbol: text, Index: idx, Confidence: conf}
			found = true
		}
	}
	return best, found
}

// glyphMat converts the tensor to an 8-bit single channel Mat.
func glyphMat(g glyph.Glyph) (gocv.Mat, error) {
	if g.Size <= 0 || len(g.Tensor) != g.Size*g.Size {
		return gocv.Mat{}, fmt.Errorf("invalid glyph tensor")
	}
	data := make([]byte, len(g.Tensor))
	for i, v := range g.Tensor {
		data[i] = uint8(min(max(v, 0), 1)*255 + 0.5)
	}
	mat, err := gocv.NewMatFromBytes(g.Size, g.Size, gocv.MatTypeCV8U, data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create glyph image: %w", err)
	}
	return mat, nil
}

// preprocessForOCR upscales the glyph, binarizes it with Otsu and makes
// the background white with a margin, the layout Tesseract expects.
func preprocessForOCR(gray gocv.Mat) gocv.Mat {
	scaled := gocv.NewMat()
	if h := gray.Rows(); h < MinHeight {
		scale := float64(MinHeight) / float64(h)
		gocv.Resize(gray, &scaled, image.Point{}, scale, scale, gocv.InterpolationNearestNeighbor)
	} else {
		gray.CopyTo(&scaled)
	}

	binary := gocv.NewMat()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	scaled.Close()

	// Background is the majority; make it white.
	white := gocv.CountNonZero(binary)
	if float64(white) < 0.5*float64(binary.Rows()*binary.Cols()) {
		gocv.BitwiseNot(binary, &binary)
	}

	pad := binary.Rows() / 4
	padded := gocv.NewMat()
	gocv.CopyMakeBorder(binary, &padded, pad, pad, pad, pad, gocv.BorderConstant, color.RGBA{255, 255, 255, 255})
	binary.Close()

	return padded
}

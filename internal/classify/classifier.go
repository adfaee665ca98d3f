package classify

import (
	"fmt"
	"math"
	"slices"

	"nines/internal/glyph"
	"nines/internal/model"

	"gonum.org/v1/gonum/floats"
)

// Symbol is one classified glyph.
type Symbol struct {
	Symbol     string
	AnchorX    int     // left edge of the glyph's region
	Confidence float64 // probability of Symbol, in [0,1]
	Index      int     // label index
}

// Recognizer classifies a single glyph.
type Recognizer interface {
	Classify(g glyph.Glyph) (Symbol, error)
}

// Classifier runs a model and maps its argmax to a label. Every glyph
// gets the best label however low its probability.
type Classifier struct {
	model  model.Model
	labels Labels
}

// NewClassifier binds labels to a loaded model. It fails with
// model.ErrLabelMismatch when the table does not fit the model's output
// layer or contradicts the order the artifact declares.
func NewClassifier(m model.Model, labels Labels) (*Classifier, error) {
	if err := labels.Validate(m.OutputSize()); err != nil {
		return nil, err
	}
	if lm, ok := m.(model.Labeled); ok {
		if declared := lm.Labels(); len(declared) > 0 && !slices.Equal(labels, declared) {
			return nil, fmt.Errorf("%w: configured %v, model declares %v", model.ErrLabelMismatch, []string(labels), declared)
		}
	}
	return &Classifier{model: m, labels: labels}, nil
}

// Labels returns the label table.
func (c *Classifier) Labels() Labels {
	return c.labels
}

// Classify runs inference on g and returns the most probable symbol.
func (c *Classifier) Classify(g glyph.Glyph) (Symbol, error) {
	h, w := c.model.InputShape()
	if g.Size != h || g.Size != w {
		return Symbol{}, fmt.Errorf("glyph is %dx%d, model expects %dx%d", g.Size, g.Size, h, w)
	}

	scores, err := c.model.Predict(g.Tensor)
	if err != nil {
		return Symbol{}, fmt.Errorf("failed to classify glyph: %w", err)
	}
	if len(scores) != len(c.labels) {
		return Symbol{}, fmt.Errorf("%w: got %d scores", model.ErrLabelMismatch, len(scores))
	}

	probs := probabilities(scores)
	idx := Argmax(probs)
	return Symbol{
		Symbol:     c.labels[idx],
		AnchorX:    g.Region.MinX,
		Confidence: probs[idx],
		Index:      idx,
	}, nil
}

// Argmax returns the index of the largest value. Ties go to the lowest
// index; NaN never wins.
func Argmax(v []float64) int {
	if len(v) == 0 {
		return 0
	}
	return floats.MaxIdx(v)
}

// probabilities returns scores as a distribution. Outputs that already
// sum to one are kept; raw logits are passed through softmax.
func probabilities(scores []float32) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	isDist := true
	for i, s := range scores {
		out[i] = float64(s)
		if out[i] < 0 || out[i] > 1 {
			isDist = false
		}
		sum += out[i]
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return out
	}

	soft := model.Softmax(out)
	for i, p := range soft {
		out[i] = float64(p)
	}
	return out
}

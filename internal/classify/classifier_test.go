package classify

import (
	"errors"
	"math"
	"testing"

	"nines/internal/glyph"
	"nines/internal/model"
	"nines/internal/segment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const side = 28

// template draws a reference glyph for label into a side x side tensor.
func template(label string) []float32 {
	t := make([]float32, side*side)
	set := func(x, y int) { t[y*side+x] = 1 }
	for i := 4; i < side-4; i++ {
		switch label {
		case "9":
			if i < 16 {
				set(i, 4)
				set(i, 15)
				set(4, i)
			}
			set(side-5, i)
		case "+":
			set(i, side/2)
			set(side/2, i)
		case "-":
			set(i, side/2)
		case "*":
			set(i, i)
			set(side-1-i, i)
		case "/":
			set(side-1-i, i)
		case "(":
			set(6, i)
		case ")":
			set(side-7, i)
		}
	}
	return t
}

// templateModel is a dense model whose rows are the unit-normalized
// templates, so each template scores highest on its own row.
func templateModel(t *testing.T, labels Labels) *model.Dense {
	t.Helper()
	weights := make([][]float64, len(labels))
	for i, l := range labels {
		tmpl := template(l)
		norm := 0.0
		for _, v := range tmpl {
			norm += float64(v * v)
		}
		norm = math.Sqrt(norm)
		row := make([]float64, len(tmpl))
		for j, v := range tmpl {
			row[j] = 20 * float64(v) / norm
		}
		weights[i] = row
	}
	d, err := model.NewDense(side, side, weights, nil)
	require.NoError(t, err)
	return d
}

func TestClassifierTemplates(t *testing.T) {
	labels := DefaultLabels()
	c, err := NewClassifier(templateModel(t, labels), labels)
	require.NoError(t, err)

	for i, l := range labels {
		t.Run(l, func(t *testing.T) {
			g := glyph.Glyph{
				Region: segment.Region{MinX: 17},
				Size:   side,
				Tensor: template(l),
			}
			sym, err := c.Classify(g)
			require.NoError(t, err)
			assert.Equal(t, l, sym.Symbol)
			assert.Equal(t, i, sym.Index)
			assert.Equal(t, 17, sym.AnchorX)
			assert.Greater(t, sym.Confidence, 0.0)
			assert.LessOrEqual(t, sym.Confidence, 1.0)
		})
	}
}

func TestClassifierPlusBeatsRunnerUp(t *testing.T) {
	labels := DefaultLabels()
	m := templateModel(t, labels)
	c, err := NewClassifier(m, labels)
	require.NoError(t, err)

	plus := template("+")
	sym, err := c.Classify(glyph.Glyph{Size: side, Tensor: plus})
	require.NoError(t, err)
	require.Equal(t, "+", sym.Symbol)

	probs, err := m.Predict(plus)
	require.NoError(t, err)
	for i, p := range probs {
		if i != sym.Index {
			assert.GreaterOrEqual(t, sym.Confidence, float64(p))
		}
	}
}

func TestNewClassifierLabelMismatch(t *testing.T) {
	m := templateModel(t, DefaultLabels())

	_, err := NewClassifier(m, Labels{"9", "+"})
	require.ErrorIs(t, err, model.ErrLabelMismatch)

	_, err = NewClassifier(m, Labels{"9", "+", "-", "*", "/", "(", "9"})
	require.ErrorIs(t, err, model.ErrLabelMismatch)

	m.WithLabels([]string{"+", "9", "-", "*", "/", "(", ")"})
	_, err = NewClassifier(m, DefaultLabels())
	require.ErrorIs(t, err, model.ErrLabelMismatch)
}

func TestClassifierSizeMismatch(t *testing.T) {
	c, err := NewClassifier(templateModel(t, DefaultLabels()), DefaultLabels())
	require.NoError(t, err)

	_, err = c.Classify(glyph.Glyph{Size: 4, Tensor: make([]float32, 16)})
	require.Error(t, err)
}

type scoreModel struct {
	scores []float32
	err    error
}

func (s scoreModel) Predict([]float32) ([]float32, error) { return s.scores, s.err }
func (s scoreModel) InputShape() (int, int)               { return 1, 1 }
func (s scoreModel) OutputSize() int                      { return len(s.scores) }
func (s scoreModel) Close() error                         { return nil }

func TestClassifierTiesAndLogits(t *testing.T) {
	labels := Labels{"a", "b", "c"}
	g := glyph.Glyph{Size: 1, Tensor: []float32{1}}

	c, err := NewClassifier(scoreModel{scores: []float32{0.4, 0.4, 0.2}}, labels)
	require.NoError(t, err)
	sym, err := c.Classify(g)
	require.NoError(t, err)
	assert.Equal(t, "a", sym.Symbol)
	assert.InDelta(t, 0.4, sym.Confidence, 1e-6)

	c, err = NewClassifier(scoreModel{scores: []float32{-3, 5, 2}}, labels)
	require.NoError(t, err)
	sym, err = c.Classify(g)
	require.NoError(t, err)
	assert.Equal(t, "b", sym.Symbol)
	assert.Greater(t, sym.Confidence, 0.9)
	assert.LessOrEqual(t, sym.Confidence, 1.0)
}

func TestClassifierInferenceError(t *testing.T) {
	boom := errors.New("boom")
	c, err := NewClassifier(scoreModel{scores: []float32{1}, err: boom}, Labels{"9"})
	require.NoError(t, err)

	_, err = c.Classify(glyph.Glyph{Size: 1, Tensor: []float32{0}})
	require.ErrorIs(t, err, boom)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 0, Argmax([]float64{1, 1, 1}))
	assert.Equal(t, 2, Argmax([]float64{0, 0.2, 0.8}))
	assert.Equal(t, 1, Argmax([]float64{math.NaN(), 0.1}))
	assert.Equal(t, 1, Argmax([]float64{0.3, 0.7, math.NaN(), 0.7}))
	assert.Equal(t, 0, Argmax(nil))
}

func TestLabels(t *testing.T) {
	l := DefaultLabels()
	assert.Equal(t, "9+-*/()", l.Alphabet())
	assert.Equal(t, 3, l.Index("*"))
	assert.Equal(t, -1, l.Index("x"))
	assert.NoError(t, l.Validate(7))
}

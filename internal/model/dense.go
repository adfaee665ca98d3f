package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense is a single fully connected layer followed by softmax.
type Dense struct {
	weights *mat.Dense    // classes x (height*width)
	bias    *mat.VecDense // classes
	height  int
	width   int
	labels  []string
}

// DenseFile is the JSON artifact layout of a Dense model.
type DenseFile struct {
	InputHeight int         `json:"input_height"`
	InputWidth  int         `json:"input_width"`
	Labels      []string    `json:"labels,omitempty"`
	Weights     [][]float64 `json:"weights"`
	Bias        []float64   `json:"bias"`
}

// NewDense builds a model from per-class weight rows. Each row must hold
// height*width values; bias may be nil.
func NewDense(height, width int, weights [][]float64, bias []float64) (*Dense, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid input shape %dx%d", height, width)
	}
	classes := len(weights)
	if classes == 0 {
		return nil, fmt.Errorf("dense model has no classes")
	}
	n := height * width
	data := make([]float64, 0, classes*n)
	for i, row := range weights {
		if len(row) != n {
			return nil, fmt.Errorf("weight row %d has %d values, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	if bias == nil {
		bias = make([]float64, classes)
	}
	if len(bias) != classes {
		return nil, fmt.Errorf("bias has %d values, want %d", len(bias), classes)
	}

	return &Dense{
		weights: mat.NewDense(classes, n, data),
		bias:    mat.NewVecDense(classes, append([]float64(nil), bias...)),
		height:  height,
		width:   width,
	}, nil
}

// LoadDense reads a DenseFile artifact.
func LoadDense(path string) (*Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var f DenseFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	d, err := NewDense(f.InputHeight, f.InputWidth, f.Weights, f.Bias)
	if err != nil {
		return nil, err
	}
	d.labels = f.Labels
	return d, nil
}

// WithLabels attaches a declared label order to the model.
func (d *Dense) WithLabels(labels []string) *Dense {
	d.labels = append([]string(nil), labels...)
	return d
}

// Predict returns softmax(W·x + b).
func (d *Dense) Predict(input []float32) ([]float32, error) {
	n := d.height * d.width
	if len(input) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), n)
	}
	x := make([]float64, n)
	for i, v := range input {
		x[i] = float64(v)
	}

	var z mat.VecDense
	z.MulVec(d.weights, mat.NewVecDense(n, x))
	z.AddVec(&z, d.bias)

	return Softmax(z.RawVector().Data), nil
}

// InputShape returns the tensor height and width.
func (d *Dense) InputShape() (int, int) { return d.height, d.width }

// OutputSize returns the number of classes.
func (d *Dense) OutputSize() int {
	r, _ := d.weights.Dims()
	return r
}

// Labels returns the label order declared by the artifact, if any.
func (d *Dense) Labels() []string { return d.labels }

// Close is a no-op; the weights are garbage collected.
func (d *Dense) Close() error { return nil }

// Softmax converts scores into probabilities.
func Softmax(z []float64) []float32 {
	out := make([]float32, len(z))
	if len(z) == 0 {
		return out
	}
	lse := floats.LogSumExp(z)
	for i, v := range z {
		out[i] = float32(math.Exp(v - lse))
	}
	return out
}

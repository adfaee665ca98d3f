// Package model loads and shares the pretrained symbol classifier.
//
// A Model maps one fixed-size single channel image tensor to a probability
// vector over the symbol alphabet. Backends:
//
//   - ONNX: a converted network run through ONNX Runtime.
//   - Dense: a single softmax layer (softmax(W·x + b)) stored as JSON,
//     evaluated with gonum. Useful for tests and as a light fallback.
//
// Loading is expensive and happens once per process through a Cache, which
// hands out reference-counted Handles.
package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelLoad marks a failed artifact load. It is fatal for the
	// recognizer until the cache is explicitly invalidated.
	ErrModelLoad = errors.New("model load failed")

	// ErrInputSize is returned when Predict gets a tensor of the wrong length.
	ErrInputSize = errors.New("input tensor size mismatch")

	// ErrLabelMismatch is returned when a label table does not fit the
	// model's output layer.
	ErrLabelMismatch = errors.New("label table does not match model output")
)

// Model is a loaded classifier. Predict must be safe for concurrent use.
type Model interface {
	// Predict runs inference on a row-major Height*Width tensor in [0,1]
	// and returns one score per output class.
	Predict(input []float32) ([]float32, error)
	// InputShape returns the expected tensor height and width.
	InputShape() (height, width int)
	// OutputSize returns the number of output classes.
	OutputSize() int
	// Close releases the model's resources.
	Close() error
}

// Labeled is implemented by models whose artifact declares its own
// output label order.
type Labeled interface {
	Labels() []string
}

// Backend names accepted by Open.
const (
	BackendONNX  = "onnx"
	BackendDense = "dense"
)

// Options selects and locates a model artifact.
type Options struct {
	Backend        string // "onnx" or "dense"
	Path           string // artifact path
	RuntimeLibrary string // ONNX Runtime shared library, empty for the default
}

// Open loads the artifact described by opts.
func Open(opts Options) (Model, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendONNX, "":
		return LoadONNX(opts.Path, opts.RuntimeLibrary)
	case BackendDense:
		return LoadDense(opts.Path)
	default:
		return nil, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
}

// Loader returns a Cache loader for opts.
func Loader(opts Options) func() (Model, error) {
	return func() (Model, error) {
		return Open(opts)
	}
}

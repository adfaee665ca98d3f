package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitRuntime initializes the ONNX Runtime environment once per process.
// libPath overrides the shared library location when non-empty; only the
// first call's libPath has any effect.
func InitRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

// ONNX runs a converted classifier through ONNX Runtime. It accepts
// single channel inputs declared as NHWC [N,H,W,1], NCHW [N,1,H,W] or
// [N,H,W]; a dynamic batch dimension is fixed to 1.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	options    *ort.SessionOptions
	shape      ort.Shape
	height     int
	width      int
	outputSize int
}

// LoadONNX opens a model file and prepares an inference session.
func LoadONNX(path, libPath string) (*ONNX, error) {
	if err := InitRuntime(libPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model must have one input and one output, has %d and %d", len(inputs), len(outputs))
	}

	shape, h, w, err := inputGeometry(inputs[0].Dimensions)
	if err != nil {
		return nil, err
	}
	outDims := outputs[0].Dimensions
	if len(outDims) == 0 || outDims[len(outDims)-1] <= 0 {
		return nil, fmt.Errorf("model output has no class dimension: %v", outDims)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	_ = options.SetIntraOpNumThreads(1)
	_ = options.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNX{
		session:    session,
		options:    options,
		shape:      shape,
		height:     h,
		width:      w,
		outputSize: int(outDims[len(outDims)-1]),
	}, nil
}

// inputGeometry resolves the concrete input shape and the image height/width.
func inputGeometry(dims ort.Shape) (ort.Shape, int, int, error) {
	shape := make(ort.Shape, len(dims))
	copy(shape, dims)
	if len(shape) > 0 && shape[0] <= 0 {
		shape[0] = 1
	}

	var h, w int64
	switch {
	case len(shape) == 4 && shape[3] == 1:
		h, w = shape[1], shape[2]
	case len(shape) == 4 && shape[1] == 1:
		h, w = shape[2], shape[3]
	case len(shape) == 3:
		h, w = shape[1], shape[2]
	default:
		return nil, 0, 0, fmt.Errorf("unsupported model input shape %v", dims)
	}
	if h <= 0 || w <= 0 {
		return nil, 0, 0, fmt.Errorf("model input has dynamic spatial size %v", dims)
	}
	return shape, int(h), int(w), nil
}

// Predict runs one forward pass.
func (o *ONNX) Predict(input []float32) ([]float32, error) {
	if len(input) != o.height*o.width {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), o.height*o.width)
	}
	data := make([]float32, len(input))
	copy(data, input)

	tensor, err := ort.NewTensor(o.shape, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer tensor.Destroy()

	outputs := []ort.Value{nil}
	if err := o.session.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("inference produced no output")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unsupported output type %T", outputs[0])
	}
	scores := out.GetData()
	if len(scores) < o.outputSize {
		return nil, fmt.Errorf("output has %d scores, want %d", len(scores), o.outputSize)
	}
	return append([]float32(nil), scores[:o.outputSize]...), nil
}

// InputShape returns the tensor height and width.
func (o *ONNX) InputShape() (int, int) { return o.height, o.width }

// OutputSize returns the number of classes.
func (o *ONNX) OutputSize() int { return o.outputSize }

// Close destroys the session.
func (o *ONNX) Close() error {
	var err error
	if o.session != nil {
		err = o.session.Destroy()
		o.session = nil
	}
	if o.options != nil {
		if derr := o.options.Destroy(); err == nil {
			err = derr
		}
		o.options = nil
	}
	return err
}

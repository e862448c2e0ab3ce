// Package tensorprocessor runs classification through the TensorFlow Lite C
// runtime. Images are decoded and resized in Go, then copied straight into the
// interpreter's input tensor.
package tensorprocessor

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tphakala/go-tflite"

	"imagetagger/classifier"
	"imagetagger/logging"
	"imagetagger/signalhandler"
)

// TFLiteHint points at the shared library the interpreter needs at runtime
const TFLiteHint = "install libtensorflowlite_c from https://github.com/tphakala/tflite_c/releases " +
	"and make sure it is on the library search path"

// TFLiteClassifier classifies images with a float32 NHWC TFLite model
type TFLiteClassifier struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	labels      []string
	opts        classifier.Options

	width, height int

	// the interpreter owns a single set of tensors
	mu sync.Mutex
}

// NewTFLiteClassifier loads the model at opts.ModelPath and allocates its tensors
func NewTFLiteClassifier(opts classifier.Options) (*TFLiteClassifier, error) {
	opts = opts.WithDefaults()

	if err := classifier.CheckModelFile(opts.ModelPath); err != nil {
		return nil, err
	}

	labels, err := classifier.LoadLabels(opts.LabelsPath)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModelFromFile(opts.ModelPath)
	if model == nil {
		return nil, errors.WithHint(
			errors.Wrapf(classifier.ErrModelUnavailable, "cannot load TensorFlow Lite model %s", opts.ModelPath),
			TFLiteHint)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = signalhandler.GetOptimalProcs()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		logging.LogError("TFLite error: %s", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create TensorFlow Lite interpreter")
	}

	c := &TFLiteClassifier{
		model:       model,
		options:     options,
		interpreter: interpreter,
		labels:      labels,
		opts:        opts,
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		c.release()
		return nil, errors.Newf("tensor allocation failed (status %v)", status)
	}

	if err := c.inspectInput(); err != nil {
		c.release()
		return nil, err
	}

	logging.LogInfo("TFLite model loaded: %s (%d labels, input %dx%d, %d threads)",
		opts.ModelPath, len(labels), c.width, c.height, threads)

	return c, nil
}

// inspectInput reads the input resolution from the model, which takes
// precedence over the configured input size
func (c *TFLiteClassifier) inspectInput() error {
	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return errors.New("model has no input tensor")
	}
	if input.Type() != tflite.Float32 {
		return errors.WithHint(
			errors.Newf("unsupported input tensor type %v, expected float32", input.Type()),
			"quantized models are not supported; export the float32 variant")
	}
	if input.NumDims() != 4 || input.Dim(3) != 3 {
		return errors.Newf("unexpected input tensor shape, want [1, H, W, 3] with %d dims", input.NumDims())
	}

	c.height = input.Dim(1)
	c.width = input.Dim(2)
	if c.width != c.opts.InputSize || c.height != c.opts.InputSize {
		logging.LogWarning("Model input is %dx%d, ignoring configured input size %d",
			c.width, c.height, c.opts.InputSize)
	}
	return nil
}

// Classify implements classifier.Classifier
func (c *TFLiteClassifier) Classify(path string) (classifier.Prediction, error) {
	tensor, err := classifier.LoadTensor(path, c.width, c.height)
	if err != nil {
		return classifier.Prediction{}, classifier.NewClassificationError(path, err)
	}

	scores, err := c.predict(tensor)
	if err != nil {
		return classifier.Prediction{}, classifier.NewClassificationError(path, err)
	}
	if c.opts.Softmax {
		scores = classifier.Softmax(scores)
	}

	pred, err := classifier.SelectTopK(scores, c.labels, c.opts.TopK, c.opts.Threshold)
	if err != nil {
		return classifier.Prediction{}, classifier.NewClassificationError(path, err)
	}
	return pred, nil
}

func (c *TFLiteClassifier) predict(sample []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.interpreter.GetInputTensor(0)
	if n := len(input.Float32s()); n != len(sample) {
		return nil, errors.Wrapf(classifier.ErrInference, "input tensor holds %d values, got %d", n, len(sample))
	}
	copy(input.Float32s(), sample)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Wrapf(classifier.ErrInference, "tensor invoke failed (status %v)", status)
	}

	output := c.interpreter.GetOutputTensor(0)
	size := output.Dim(output.NumDims() - 1)
	scores := make([]float32, size)
	copy(scores, output.Float32s())
	return scores, nil
}

func (c *TFLiteClassifier) release() {
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
}

// Close releases the interpreter and model
func (c *TFLiteClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return nil
}

// Package classifier defines the image classification contract shared by the
// inference backends, along with the backend-independent parts of the pipeline:
// label loading, tensor preparation and top-k selection.
package classifier

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"imagetagger/types"
)

const (
	// DefaultTopK is the number of guesses kept per image
	DefaultTopK = 3
	// DefaultThreshold is the minimum confidence (exclusive) for a guess to become a tag
	DefaultThreshold = 0.1
	// DefaultInputSize is the square input resolution of MobileNetV2
	DefaultInputSize = 224

	// ModelHint explains how to obtain a compatible model
	ModelHint = "export keras MobileNetV2(weights='imagenet') to ONNX (opencv backend) or " +
		"TFLite (tflite backend) and point model.path / --model at the file"
)

var (
	// ErrModelUnavailable is returned by backend constructors when the model or its labels cannot be found
	ErrModelUnavailable = errors.New("classification model unavailable")
	// ErrDecode marks images that could not be read or decoded
	ErrDecode = errors.New("cannot decode image")
	// ErrInference marks failures inside the model forward pass
	ErrInference = errors.New("inference failed")
)

// Classifier turns an image file into ranked label guesses
type Classifier interface {
	// Classify returns the prediction for the image at path. Any failure is
	// reported as a *ClassificationError.
	Classify(path string) (Prediction, error)

	// Close releases model resources
	Close() error
}

// Prediction is the outcome of a successful classification
type Prediction struct {
	// Top is the best guess, reported even when it falls under the threshold
	Top types.Guess
	// Guesses holds at most k guesses above the threshold, most confident first
	Guesses []types.Guess
}

// Tags returns the labels of the retained guesses in confidence order
func (p Prediction) Tags() []string {
	tags := make([]string, 0, len(p.Guesses))
	for _, g := range p.Guesses {
		tags = append(tags, g.Label)
	}
	return tags
}

// ClassificationError reports a per-file classification failure
type ClassificationError struct {
	Path string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// NewClassificationError wraps err for path, leaving existing ClassificationErrors untouched
func NewClassificationError(path string, err error) *ClassificationError {
	var ce *ClassificationError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassificationError{Path: path, Err: err}
}

// Options holds the settings common to every backend
type Options struct {
	ModelPath  string
	ConfigPath string // auxiliary network description, used by some OpenCV formats
	LabelsPath string
	InputSize  int
	TopK       int
	Threshold  float64
	Softmax    bool
	Threads    int
}

// WithDefaults fills zero values with the MobileNetV2 defaults
func (o Options) WithDefaults() Options {
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// CheckModelFile reports ErrModelUnavailable, with a download hint, when the
// model file is missing
func CheckModelFile(path string) error {
	if path == "" {
		return errors.WithHint(errors.Wrap(ErrModelUnavailable, "no model path configured"), ModelHint)
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.WithHint(errors.Wrapf(ErrModelUnavailable, "model file not found: %s", path), ModelHint)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot access model file %s", path)
	}
	if info.IsDir() {
		return errors.WithHint(errors.Wrapf(ErrModelUnavailable, "model path is a directory: %s", path), ModelHint)
	}
	return nil
}

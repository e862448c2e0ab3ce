package imageprocessor

import (
	"image"

	"github.com/cockroachdb/errors"
	"gocv.io/x/gocv"

	"imagetagger/classifier"
	"imagetagger/logging"
)

// MobileNetV2 expects RGB in [-1, 1]: (x - 127.5) / 127.5
const (
	pixelMean  = 127.5
	pixelScale = 1.0 / 127.5
)

// DNNOptions adds OpenCV-specific settings to the common classifier options
type DNNOptions struct {
	classifier.Options
	Backend string // OpenCV DNN backend name, e.g. "default", "openvino", "cuda"
	Target  string // OpenCV DNN target name, e.g. "cpu", "fp16"
}

// DNNClassifier runs a network loaded by OpenCV's DNN module
type DNNClassifier struct {
	net      gocv.Net
	labels   []string
	registry *ImageLoaderRegistry
	opts     classifier.Options
}

// NewDNNClassifier loads the network and labels described by opts
func NewDNNClassifier(opts DNNOptions) (*DNNClassifier, error) {
	common := opts.Options.WithDefaults()

	if err := classifier.CheckModelFile(common.ModelPath); err != nil {
		return nil, err
	}

	labels, err := classifier.LoadLabels(common.LabelsPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(common.ModelPath, common.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, errors.WithHint(
			errors.Newf("opencv could not read network %s", common.ModelPath),
			classifier.ModelHint)
	}

	backend := gocv.NetBackendDefault
	if opts.Backend != "" {
		backend = gocv.ParseNetBackend(opts.Backend)
	}
	target := gocv.NetTargetCPU
	if opts.Target != "" {
		target = gocv.ParseNetTarget(opts.Target)
	}
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "cannot select dnn backend %q", opts.Backend)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "cannot select dnn target %q", opts.Target)
	}

	logging.LogInfo("OpenCV network loaded: %s (%d labels, input %dx%d)",
		common.ModelPath, len(labels), common.InputSize, common.InputSize)

	return &DNNClassifier{
		net:      net,
		labels:   labels,
		registry: NewImageLoaderRegistry(),
		opts:     common,
	}, nil
}

// Classify implements classifier.Classifier
func (c *DNNClassifier) Classify(path string) (classifier.Prediction, error) {
	img, err := c.registry.LoadImage(path)
	if err != nil {
		img.Close()
		return classifier.Prediction{}, classifier.NewClassificationError(path, err)
	}
	defer img.Close()

	size := image.Pt(c.opts.InputSize, c.opts.InputSize)

	// Nearest-neighbour resize first so the blob step only scales and swaps channels
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationNearestNeighbor)
	if resized.Empty() {
		return classifier.Prediction{}, classifier.NewClassificationError(path,
			errors.Wrap(classifier.ErrDecode, "resize produced an empty image"))
	}

	blob := gocv.BlobFromImage(resized, pixelScale, size,
		gocv.NewScalar(pixelMean, pixelMean, pixelMean, 0), true, false)
	defer blob.Close()

	scores, err := c.forward(blob)
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

func (c *DNNClassifier) forward(blob gocv.Mat) ([]float32, error) {
	c.net.SetInput(blob, "")
	prob := c.net.Forward("")
	defer prob.Close()

	if prob.Empty() {
		return nil, errors.Wrap(classifier.ErrInference, "network produced no output")
	}

	data, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unexpected output tensor"), classifier.ErrInference)
	}

	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// Close releases the network
func (c *DNNClassifier) Close() error {
	return c.net.Close()
}

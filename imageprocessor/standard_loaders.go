package imageprocessor

import (
	"gocv.io/x/gocv"

	"imagetagger/classifier"
	"imagetagger/logging"
)

// StandardImageLoader handles JPEG and PNG files
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
			},
		},
	}
}

// LoadImage loads the image with OpenCV, falling back to Go's decoders for
// files OpenCV rejects (some palette and 16-bit PNG variants)
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img, err := l.DefaultLoadImage(path)
	if err == nil {
		return img, nil
	}
	img.Close()

	logging.DebugLog("OpenCV could not read %s, trying Go decoders", path)
	goImg, decodeErr := classifier.DecodeImage(path)
	if decodeErr != nil {
		return gocv.NewMat(), decodeErr
	}
	return gocvMatFromGoImage(goImg), nil
}

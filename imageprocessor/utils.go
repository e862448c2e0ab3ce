package imageprocessor

import (
	"image"

	"gocv.io/x/gocv"

	"imagetagger/classifier"
)

// gocvMatFromGoImage converts a Go image to a 3-channel BGR Mat. Alpha is
// dropped and the stored RGB kept, as IMRead does for files on disk.
func gocvMatFromGoImage(img image.Image) gocv.Mat {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b := classifier.StoredRGB(img.At(x+bounds.Min.X, y+bounds.Min.Y))
			mat.SetUCharAt3(y, x, 0, b)
			mat.SetUCharAt3(y, x, 1, g)
			mat.SetUCharAt3(y, x, 2, r)
		}
	}

	return mat
}

package classifier

import (
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for the walked formats
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"
)

// DecodeImage reads and decodes a JPEG or PNG file
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "cannot decode %s", path), ErrDecode)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.Wrapf(ErrDecode, "image %s has no pixels", path)
	}
	return img, nil
}

// LoadTensor decodes the image at path, resizes it to width x height with
// nearest-neighbour sampling and returns RGB values laid out as NHWC with a
// batch of one, scaled to [-1, 1].
func LoadTensor(path string, width, height int) ([]float32, error) {
	img, err := DecodeImage(path)
	if err != nil {
		return nil, err
	}
	return ImageToTensor(img, width, height), nil
}

// ImageToTensor resizes img and converts it to a normalized NHWC float32 slice.
// Alpha is dropped: transparent pixels keep their stored RGB values.
func ImageToTensor(img image.Image, width, height int) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), dropAlpha(img), img.Bounds(), draw.Src, nil)

	out := make([]float32, width*height*3)
	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < width; x++ {
			base := (y*width + x) * 3
			px := row[x*4:]
			out[base+0] = normalizePixel(px[0])
			out[base+1] = normalizePixel(px[1])
			out[base+2] = normalizePixel(px[2])
		}
	}
	return out
}

// dropAlpha returns img unchanged when it is opaque, otherwise an opaque copy
// holding the stored RGB of every pixel. The scaler works on premultiplied
// colour, which would turn transparent pixels black.
func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			out.Pix[i+0], out.Pix[i+1], out.Pix[i+2] = StoredRGB(img.At(x, y))
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

// StoredRGB returns the non-premultiplied 8-bit RGB of c, ignoring alpha
func StoredRGB(c color.Color) (r, g, b uint8) {
	switch c := c.(type) {
	case color.NRGBA:
		return c.R, c.G, c.B
	case color.NRGBA64:
		return uint8(c.R >> 8), uint8(c.G >> 8), uint8(c.B >> 8)
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B
}

func normalizePixel(v uint8) float32 {
	return float32(v)/127.5 - 1
}

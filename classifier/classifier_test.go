package classifier

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetagger/types"
)

func TestSelectTopK(t *testing.T) {
	t.Parallel()

	labels := []string{"tabby", "tiger_cat", "Egyptian_cat", "lynx", "remote_control"}

	tests := []struct {
		name     string
		scores   []float32
		k        int
		wantTop  types.Guess
		wantTags []string
	}{
		{
			name:     "keeps three above threshold",
			scores:   []float32{0.5, 0.2, 0.15, 0.1, 0.05},
			k:        3,
			wantTop:  types.Guess{Label: "tabby", Confidence: 0.5},
			wantTags: []string{"tabby", "tiger_cat", "Egyptian_cat"},
		},
		{
			name:     "float32 tenth is above the float64 threshold",
			scores:   []float32{0.1, 0.6, 0.1, 0.05, 0.15},
			k:        3,
			wantTop:  types.Guess{Label: "tiger_cat", Confidence: 0.6},
			wantTags: []string{"tiger_cat", "remote_control", "tabby"},
		},
		{
			name:     "nothing above threshold still reports top",
			scores:   []float32{0.08, 0.09, 0.07, 0.06, 0.05},
			k:        3,
			wantTop:  types.Guess{Label: "tiger_cat", Confidence: 0.09},
			wantTags: []string{},
		},
		{
			name:     "k larger than label count",
			scores:   []float32{0.3, 0.25, 0.2, 0.15, 0.1},
			k:        10,
			wantTop:  types.Guess{Label: "tabby", Confidence: 0.3},
			wantTags: []string{"tabby", "tiger_cat", "Egyptian_cat", "lynx"},
		},
		{
			name:     "ties keep label order",
			scores:   []float32{0.2, 0.4, 0.4, 0.0, 0.0},
			k:        2,
			wantTop:  types.Guess{Label: "tiger_cat", Confidence: 0.4},
			wantTags: []string{"tiger_cat", "Egyptian_cat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pred, err := SelectTopK(tt.scores, labels, tt.k, DefaultThreshold)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTop, pred.Top)
			assert.Equal(t, tt.wantTags, pred.Tags())
			assert.LessOrEqual(t, len(pred.Guesses), tt.k)
			for i := 1; i < len(pred.Guesses); i++ {
				assert.GreaterOrEqual(t, pred.Guesses[i-1].Confidence, pred.Guesses[i].Confidence)
			}
			for _, g := range pred.Guesses {
				assert.Greater(t, float64(g.Confidence), DefaultThreshold)
			}
		})
	}
}

func TestSelectTopKThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	labels := []string{"seashore", "sandbar", "lakeside"}
	pred, err := SelectTopK([]float32{0.25, 0.5, 0.125}, labels, 3, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []string{"sandbar"}, pred.Tags())

	pred, err = SelectTopK([]float32{0.25, 0.5, 0.125}, labels, 3, 0.125)
	require.NoError(t, err)
	assert.Equal(t, []string{"sandbar", "seashore"}, pred.Tags())
}

func TestSelectTopKErrors(t *testing.T) {
	t.Parallel()

	_, err := SelectTopK([]float32{0.9, 0.1}, []string{"a"}, 3, DefaultThreshold)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInference))
	assert.Contains(t, err.Error(), "mismatched labels and predictions lengths: 1 vs 2")

	_, err = SelectTopK(nil, nil, 3, DefaultThreshold)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInference))
}

func TestSoftmax(t *testing.T) {
	t.Parallel()

	probs := Softmax([]float32{1, 2, 3})
	require.Len(t, probs, 3)

	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, probs[2], probs[1])
	assert.Greater(t, probs[1], probs[0])
	assert.InDelta(t, 0.6652, probs[2], 1e-3)

	assert.Empty(t, Softmax(nil))
}

func TestLoadLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name:    "keras class index",
			file:    "imagenet_class_index.json",
			content: `{"1": ["n01443537", "goldfish"], "0": ["n01440764", "tench"], "2": ["n02123159", "tiger cat"]}`,
			want:    []string{"tench", "goldfish", "tiger_cat"},
		},
		{
			name:    "caffe synset words",
			file:    "synset_words.txt",
			content: "n01440764 tench, Tinca tinca\nn01443537 goldfish, Carassius auratus\n",
			want:    []string{"tench", "goldfish"},
		},
		{
			name:    "plain list",
			file:    "labels.txt",
			content: "background\n\ntabby\ntiger cat\n",
			want:    []string{"background", "tabby", "tiger_cat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			labels, err := LoadLabels(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, labels)
		})
	}
}

func TestLoadLabelsErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadLabels(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.NotEmpty(t, errors.GetAllHints(err))

	gap := filepath.Join(dir, "gap.json")
	require.NoError(t, os.WriteFile(gap, []byte(`{"0": ["a", "x"], "2": ["b", "y"]}`), 0o644))
	_, err = LoadLabels(gap)
	assert.ErrorContains(t, err, "not contiguous")

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	_, err = LoadLabels(empty)
	assert.ErrorContains(t, err, "empty")
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadTensor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "red.png")
	writePNG(t, path, 50, 30, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	tensor, err := LoadTensor(path, 8, 4)
	require.NoError(t, err)
	require.Len(t, tensor, 8*4*3)

	for i := 0; i < len(tensor); i += 3 {
		assert.InDelta(t, 1.0, tensor[i], 1e-6)
		assert.InDelta(t, -1.0, tensor[i+1], 1e-6)
		assert.InDelta(t, -1.0, tensor[i+2], 1e-6)
	}
}

func TestLoadTensorGrayscale(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gray.png")
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	tensor, err := LoadTensor(path, 2, 2)
	require.NoError(t, err)
	for _, v := range tensor {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestLoadTensorKeepsStoredRGBOfTransparentPixels(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cutout.png")
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
		}
	}
	img.SetNRGBA(3, 3, color.NRGBA{R: 255, G: 0, B: 51, A: 128})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	tensor, err := LoadTensor(path, 2, 2)
	require.NoError(t, err)
	require.Len(t, tensor, 2*2*3)

	assert.InDeltaSlice(t, []float32{1, 1, 1}, tensor[0:3], 1e-6)
	assert.InDeltaSlice(t, []float32{1, -1, -0.6}, tensor[9:12], 1e-6)
}

func TestStoredRGB(t *testing.T) {
	t.Parallel()

	r, g, b := StoredRGB(color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})

	r, g, b = StoredRGB(color.NRGBA64{R: 0xffff, G: 0x8000, B: 0, A: 0})
	assert.Equal(t, [3]uint8{255, 128, 0}, [3]uint8{r, g, b})

	r, g, b = StoredRGB(color.RGBA{R: 100, G: 50, B: 0, A: 200})
	assert.Equal(t, [3]uint8{127, 63, 0}, [3]uint8{r, g, b})
}

func TestLoadTensorCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not a jpeg"), 0o644))

	_, err := LoadTensor(corrupt, 4, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = LoadTensor(filepath.Join(dir, "missing.png"), 4, 4)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDecode))
}

func TestClassificationError(t *testing.T) {
	t.Parallel()

	cause := errors.Wrap(ErrDecode, "bad header")
	ce := NewClassificationError("/imgs/a.png", cause)
	assert.Equal(t, "/imgs/a.png", ce.Path)
	assert.True(t, errors.Is(ce, ErrDecode))
	assert.Contains(t, ce.Error(), "/imgs/a.png")

	// already typed errors pass through untouched
	assert.Same(t, ce, NewClassificationError("/other.png", ce))
}

func TestOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	opts := Options{}.WithDefaults()
	assert.Equal(t, DefaultInputSize, opts.InputSize)
	assert.Equal(t, DefaultTopK, opts.TopK)

	opts = Options{InputSize: 299, TopK: 5}.WithDefaults()
	assert.Equal(t, 299, opts.InputSize)
	assert.Equal(t, 5, opts.TopK)
}

func TestCheckModelFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, path := range []string{"", filepath.Join(dir, "mobilenet_v2.onnx"), dir} {
		err := CheckModelFile(path)
		require.Error(t, err, path)
		assert.True(t, errors.Is(err, ErrModelUnavailable), path)
		assert.Contains(t, errors.FlattenHints(err), "MobileNetV2")
	}

	model := filepath.Join(dir, "model.tflite")
	require.NoError(t, os.WriteFile(model, []byte("TFL3"), 0o644))
	assert.NoError(t, CheckModelFile(model))
}

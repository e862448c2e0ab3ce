package tensorprocessor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetagger/classifier"
)

func TestNewTFLiteClassifierMissingModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewTFLiteClassifier(classifier.Options{
		ModelPath:  filepath.Join(dir, "mobilenet_v2.tflite"),
		LabelsPath: filepath.Join(dir, "labels.txt"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, classifier.ErrModelUnavailable))
	assert.Contains(t, errors.FlattenHints(err), "TFLite")
}

func TestNewTFLiteClassifierMissingLabels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	model := filepath.Join(dir, "mobilenet_v2.tflite")
	require.NoError(t, os.WriteFile(model, []byte("TFL3"), 0o644))

	_, err := NewTFLiteClassifier(classifier.Options{
		ModelPath:  model,
		LabelsPath: filepath.Join(dir, "labels.txt"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, classifier.ErrModelUnavailable))
}

func TestNewTFLiteClassifierInvalidModel(t *testing.T) {
	if os.Getenv("IMAGETAGGER_TFLITE_TESTS") == "" {
		t.Skip("set IMAGETAGGER_TFLITE_TESTS to run tests that need libtensorflowlite_c")
	}

	dir := t.TempDir()
	model := filepath.Join(dir, "broken.tflite")
	labels := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(model, []byte("not a flatbuffer"), 0o644))
	require.NoError(t, os.WriteFile(labels, []byte("cat\ndog\n"), 0o644))

	_, err := NewTFLiteClassifier(classifier.Options{ModelPath: model, LabelsPath: labels})
	require.Error(t, err)
	assert.True(t, errors.Is(err, classifier.ErrModelUnavailable))
}

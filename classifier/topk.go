package classifier

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"imagetagger/types"
)

// SelectTopK pairs labels with scores, keeps the k most confident and drops
// those at or below threshold. Scores are widened to float64 before the
// comparison. Prediction.Top is always the best guess.
func SelectTopK(scores []float32, labels []string, k int, threshold float64) (Prediction, error) {
	if len(scores) != len(labels) {
		return Prediction{}, errors.Wrapf(ErrInference,
			"mismatched labels and predictions lengths: %d vs %d", len(labels), len(scores))
	}
	if len(scores) == 0 {
		return Prediction{}, errors.Wrap(ErrInference, "model returned no scores")
	}

	guesses := make([]types.Guess, len(scores))
	for i, s := range scores {
		guesses[i] = types.Guess{Label: labels[i], Confidence: s}
	}

	// Stable so that equal scores keep label index order
	sort.SliceStable(guesses, func(i, j int) bool {
		return guesses[i].Confidence > guesses[j].Confidence
	})

	if k > len(guesses) {
		k = len(guesses)
	}

	pred := Prediction{
		Top:     guesses[0],
		Guesses: make([]types.Guess, 0, k),
	}
	for _, g := range guesses[:k] {
		if float64(g.Confidence) > threshold {
			pred.Guesses = append(pred.Guesses, g)
		}
	}
	return pred, nil
}

// Softmax converts logits into probabilities
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

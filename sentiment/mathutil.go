package sentiment

import (
	"fmt"
	"math"
)

// softmax converts one row of logits into probabilities.
func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > maxv {
			maxv = float64(v)
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

// predictionsFromLogits decodes a row-major [rows, NumLabels] logits buffer.
func predictionsFromLogits(data []float32, rows int) ([]Prediction, error) {
	if len(data) != rows*NumLabels {
		return nil, fmt.Errorf("logits buffer has %d values, want %d", len(data), rows*NumLabels)
	}
	out := make([]Prediction, rows)
	for r := 0; r < rows; r++ {
		probs := softmax(data[r*NumLabels : (r+1)*NumLabels])
		best := argmax(probs)
		out[r] = Prediction{Label: Label(best), Confidence: clamp01(probs[best])}
	}
	return out, nil
}

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

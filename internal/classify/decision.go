// Package classify maps model output to a prediction and drives the
// image -> tensor -> model -> decision pipeline.
package classify

import (
	"fmt"
	"strconv"
)

// DefaultThreshold is the minimum confidence reported as a confident label.
const DefaultThreshold float32 = 0.6

// UnsureLabel is the display label of a low confidence prediction.
const UnsureLabel = "Unsure"

// Prediction is the decision taken on one output vector. Confidence is
// always the maximum of the vector, whether or not the prediction is
// confident.
type Prediction struct {
	Label      string             `json:"label"`
	Index      int                `json:"index"`
	Confidence float32            `json:"confidence"`
	Unsure     bool               `json:"unsure"`
	Scores     map[string]float32 `json:"predictions,omitempty"`
}

// ArgMax returns the index and value of the first maximum in probs, or
// (-1, 0) when probs is empty.
func ArgMax(probs []float32) (int, float32) {
	if len(probs) == 0 {
		return -1, 0
	}
	maxIdx := 0
	maxVal := probs[0]
	for i, val := range probs[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}
	return maxIdx, maxVal
}

// LabelFor names class index i, synthesizing "Class <i>" when labels does
// not reach that far.
func LabelFor(labels []string, i int) string {
	if i >= 0 && i < len(labels) {
		return labels[i]
	}
	return "Class " + strconv.Itoa(i)
}

// Decide picks the most probable class and compares it against threshold.
// A confidence equal to threshold counts as confident.
func Decide(probs []float32, labels []string, threshold float32) Prediction {
	maxIdx, maxVal := ArgMax(probs)

	scores := make(map[string]float32, len(probs))
	for i, val := range probs {
		scores[scoreKey(scores, LabelFor(labels, i), i)] = val
	}

	p := Prediction{
		Index:      maxIdx,
		Confidence: maxVal,
		Scores:     scores,
	}
	if maxIdx >= 0 && maxVal >= threshold {
		p.Label = LabelFor(labels, maxIdx)
	} else {
		p.Label = UnsureLabel
		p.Unsure = true
	}
	return p
}

// scoreKey returns label, or "label #i" when a lower class already took
// that name, so repeated labels keep every probability.
func scoreKey(scores map[string]float32, label string, i int) string {
	if _, taken := scores[label]; !taken {
		return label
	}
	key := fmt.Sprintf("%s #%d", label, i)
	for n := 2; ; n++ {
		if _, taken := scores[key]; !taken {
			return key
		}
		key = fmt.Sprintf("%s #%d.%d", label, i, n)
	}
}

// Percent renders a probability as a percentage with one decimal place.
func Percent(confidence float32) string {
	return fmt.Sprintf("%.1f%%", float64(confidence)*100)
}

// String is the display form: "Oak (72.0%)" or "Unsure (Confidence 50.0%)".
func (p Prediction) String() string {
	if p.Unsure {
		return fmt.Sprintf("%s (Confidence %s)", UnsureLabel, Percent(p.Confidence))
	}
	return fmt.Sprintf("%s (%s)", p.Label, Percent(p.Confidence))
}

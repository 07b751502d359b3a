// Package confidence maps a classifier's (label, probability) output onto a single
// scale where 1.0 is certainly research, 0.0 is certainly not and 0.5 is undecided.
package confidence

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Label is a predicted class.
type Label string

const (
	Research Label = "research"
	Other    Label = "other"
)

// fastText prefixes its labels.
const fastTextPrefix = "__label__"

// ParseLabel normalizes back-end label spellings ("__label__research", "research").
// Anything that is not research is treated as other.
func ParseLabel(s string) Label {
	if strings.TrimPrefix(s, fastTextPrefix) == string(Research) {
		return Research
	}
	return Other
}

// Encode folds label and probability of that label into one confidence in [0,1].
// Probabilities are expected in [0.5,1]; values outside [0,1] are clamped and values
// below 0.5 are logged but still encoded.
func Encode(label Label, probability float64) float64 {
	if probability < 0.5 {
		log.Error().Str("label", string(label)).Float64("probability", probability).Msg("confidence encode called with probability below 0.5")
	}
	if probability > 1.0 {
		probability = 1.0
	}
	if probability < 0.0 {
		probability = 0.0
	}
	if label == Research {
		return 0.5 + probability/2
	}
	return 0.5 - probability/2
}

// Decode is the inverse of Encode for probabilities in [0.5,1].
func Decode(c float64) (Label, float64) {
	if c < 0.5 {
		return Other, 1.0 - 2*c
	}
	return Research, 2*c - 1.0
}

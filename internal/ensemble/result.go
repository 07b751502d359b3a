package ensemble

import (
	"errors"

	"github.com/local/pdftrio/internal/classifier"
)

// Stage names used as timing keys.
const (
	StageExtractText    = "extract_text"
	StageExtractImage   = "extract_image"
	StageClassifyLinear = "classify_linear"
	StageClassifyBert   = "classify_bert"
	StageClassifyImage  = "classify_image"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrNoSignal marks a result where no classifier produced a score.
var ErrNoSignal = errors.New("no classifier produced a score")

// Result is one classification. Scores of classifiers that did not run are absent,
// not zero, and so is EnsembleScore when nothing ran.
type Result struct {
	Status        string             `json:"status"`
	EnsembleScore *float64           `json:"ensemble_score,omitempty"`
	ImageScore    *float64           `json:"image_score,omitempty"`
	LinearScore   *float64           `json:"linear_score,omitempty"`
	BertScore     *float64           `json:"bert_score,omitempty"`
	Timing        map[string]float64 `json:"timing"`
	Versions      map[string]string  `json:"versions"`
	Error         string             `json:"error,omitempty"`
}

func newResult() *Result {
	return &Result{Timing: make(map[string]float64)}
}

func (r *Result) setScore(kind classifier.Kind, c float64) {
	switch kind {
	case classifier.Image:
		r.ImageScore = &c
	case classifier.Linear:
		r.LinearScore = &c
	case classifier.Bert:
		r.BertScore = &c
	}
}

// Scores returns the scores that were computed, keyed by classifier.
func (r *Result) Scores() map[classifier.Kind]float64 {
	out := make(map[classifier.Kind]float64, 3)
	if r.ImageScore != nil {
		out[classifier.Image] = *r.ImageScore
	}
	if r.LinearScore != nil {
		out[classifier.Linear] = *r.LinearScore
	}
	if r.BertScore != nil {
		out[classifier.Bert] = *r.BertScore
	}
	return out
}

// Err is ErrNoSignal when no ensemble score was produced.
func (r *Result) Err() error {
	if r.EnsembleScore == nil {
		return ErrNoSignal
	}
	return nil
}

// finish computes the mean of the given confidences and sets Status.
func (r *Result) finish(confidences []float64) {
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		mean := sum / float64(len(confidences))
		r.EnsembleScore = &mean
	}
	if r.EnsembleScore != nil {
		r.Status = StatusSuccess
	} else {
		r.Status = StatusError
	}
}

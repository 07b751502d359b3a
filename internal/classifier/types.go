// Package classifier holds the three sub-classifier adapters. Each turns the
// prepared request input into a (label, probability) prediction.
package classifier

import (
    "context"

    "github.com/local/pdftrio/internal/confidence"
    "github.com/local/pdftrio/internal/extract"
)

// Kind names a sub-classifier.
type Kind string

const (
    Linear Kind = "linear"
    Bert   Kind = "bert"
    Image  Kind = "image"
)

// Kinds in the order `all` runs them.
var Kinds = []Kind{Image, Linear, Bert}

// Input is what a predictor may consume; each kind reads only its own field.
type Input struct {
    Tokens  []string
    Image   *extract.PageImage
    TraceID string
}

// RawPrediction is a back end's top label and the probability it assigned to it.
type RawPrediction struct {
    Label       confidence.Label
    Probability float64
}

// Confidence folds the prediction onto the research scale.
func (p RawPrediction) Confidence() float64 { return confidence.Encode(p.Label, p.Probability) }

// Predictor is implemented by every sub-classifier.
type Predictor interface {
    Kind() Kind
    Predict(ctx context.Context, in Input) (RawPrediction, error)
}

// Versioned is implemented by remote predictors whose model version must be reported.
type Versioned interface {
    ModelName() string
    Version(ctx context.Context) (string, error)
}

package classifier

import (
    "fmt"

    "github.com/local/pdftrio/internal/breaker"
    "github.com/local/pdftrio/internal/config"
    "github.com/local/pdftrio/internal/fasttext"
    "github.com/local/pdftrio/internal/textprep"
    "github.com/rs/zerolog/log"
)

// Model names as reported in the versions map.
const (
    ImageModelName = "image_model"
    BertModelName  = "bert_model"
)

// Set is the three configured sub-classifiers.
type Set struct {
    Linear *LinearClassifier
    Bert   *BertClassifier
    Image  *ImageClassifier
}

// Load builds every sub-classifier from configuration: the fastText model and BERT
// vocabulary are read from disk, the remote clients are only constructed.
func Load(cfg config.Config, b breaker.Breaker) (*Set, error) {
    log.Info().Str("path", cfg.Models.BertVocabPath).Msg("loading BERT vocabulary")
    vocab, err := textprep.LoadVocab(cfg.Models.BertVocabPath)
    if err != nil {
        return nil, fmt.Errorf("bert vocab: %w", err)
    }

    log.Info().Str("path", cfg.Models.FastTextModel).Msg("loading fastText model")
    ft, err := fasttext.Load(cfg.Models.FastTextModel)
    if err != nil {
        return nil, fmt.Errorf("linear model: %w", err)
    }
    log.Info().Int("vocab", vocab.Size()).Strs("labels", ft.Labels()).Msg("models loaded")

    return &Set{
        Linear: NewLinear(ft),
        Bert:   NewBert(NewTFServing(BertModelName, cfg.BertModelURL(), cfg.Models.Timeout, b), vocab),
        Image:  NewImage(NewTFServing(ImageModelName, cfg.ImageModelURL(), cfg.Models.Timeout, b)),
    }, nil
}

// Predictors returns the set keyed by kind.
func (s *Set) Predictors() map[Kind]Predictor {
    return map[Kind]Predictor{Linear: s.Linear, Bert: s.Bert, Image: s.Image}
}

// Remote lists the predictors whose versions must be fetched.
func (s *Set) Remote() []Versioned {
    return []Versioned{s.Image, s.Bert}
}

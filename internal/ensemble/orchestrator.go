// Package ensemble decides which sub-classifiers run for a document and combines
// their confidences into one ensemble score.
package ensemble

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/local/pdftrio/internal/classifier"
	"github.com/local/pdftrio/internal/extract"
	"github.com/local/pdftrio/internal/logger"
	"github.com/local/pdftrio/internal/metrics"
	"github.com/local/pdftrio/internal/textprep"
	"github.com/rs/zerolog"
)

// Auto mode runs BERT only when the linear confidence is inside this band.
const (
	autoLow  = 0.15
	autoHigh = 0.85
)

const defaultMinTextChars = 300

// Orchestrator runs one classification request at a time per call; it is safe to
// share across goroutines.
type Orchestrator struct {
	text         extract.TextExtractor
	image        extract.ImageExtractor
	predictors   map[classifier.Kind]classifier.Predictor
	versions     *ModelVersionCache
	minTextChars int
}

// Options tune the orchestrator.
type Options struct {
	MinTextChars int
}

func New(text extract.TextExtractor, image extract.ImageExtractor, predictors map[classifier.Kind]classifier.Predictor, versions *ModelVersionCache, opts Options) *Orchestrator {
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = defaultMinTextChars
	}
	return &Orchestrator{
		text:         text,
		image:        image,
		predictors:   predictors,
		versions:     versions,
		minTextChars: opts.MinTextChars,
	}
}

// request is the per-call state.
type request struct {
	pdf         []byte
	traceID     string
	lg          zerolog.Logger
	res         *Result
	confidences []float64
}

func (r *request) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)
	r.res.Timing[stage] = d.Seconds()
	metrics.ObserveStage(stage, d)
}

// Classify runs the pipeline for modeSpec over pdf. A remote model failure (including
// the version lookup) aborts the request and is returned as an error together with
// whatever was gathered so far. A result without ensemble score has Status "error"
// and Err() == ErrNoSignal.
func (o *Orchestrator) Classify(ctx context.Context, modeSpec string, pdf []byte, traceID string) (*Result, error) {
	lg := logger.WithTrace(traceID)
	req := &request{pdf: pdf, traceID: traceID, lg: lg, res: newResult()}

	if err := o.versions.EnsureLoaded(ctx); err != nil {
		lg.Error().Err(err).Msg("model version lookup failed")
		return o.abort(req, err)
	}
	req.res.Versions = o.versions.Snapshot()

	plan := ParseModes(modeSpec, lg)

	var tokens []string
	if plan.NeedsText() {
		req.timed(StageExtractText, func() {
			tokens = o.tokens(ctx, req)
		})
	}

	var err error
	if plan.Auto {
		err = o.runAuto(ctx, req, tokens)
	} else {
		err = o.runExplicit(ctx, req, plan.Kinds, tokens)
	}
	if err != nil {
		lg.Error().Err(err).Msg("remote model failed")
		return o.abort(req, err)
	}

	req.res.finish(req.confidences)
	if req.res.EnsembleScore == nil {
		metrics.IncClassification("no_signal")
		lg.Warn().Str("modes", modeSpec).Msg("no classifier produced a score")
	} else {
		metrics.IncClassification(StatusSuccess)
		lg.Info().Str("modes", modeSpec).Float64("ensemble_score", *req.res.EnsembleScore).Msg("classified")
	}
	return req.res, nil
}

func (o *Orchestrator) abort(req *request, err error) (*Result, error) {
	req.res.finish(nil)
	req.res.Error = err.Error()
	if req.res.Versions == nil {
		req.res.Versions = o.versions.Snapshot()
	}
	metrics.IncClassification("remote_error")
	return req.res, err
}

// tokens extracts text once and tokenizes it. Text shorter than minTextChars yields no tokens.
func (o *Orchestrator) tokens(ctx context.Context, req *request) []string {
	raw := o.text.ExtractText(ctx, req.pdf, req.traceID)
	if n := utf8.RuneCountInString(raw); n < o.minTextChars {
		req.lg.Debug().Int("chars", n).Msg("text too short to classify")
		return nil
	}
	return textprep.ExtractTokens(raw)
}

// runAuto: linear first when there is text, BERT only if linear is undecided; the
// image model only when there is no text at all.
func (o *Orchestrator) runAuto(ctx context.Context, req *request, tokens []string) error {
	if len(tokens) == 0 {
		return o.runImage(ctx, req)
	}
	linear, ran, err := o.run(ctx, req, classifier.Linear, StageClassifyLinear, classifier.Input{Tokens: tokens, TraceID: req.traceID})
	if err != nil || !ran {
		return err
	}
	if linear < autoLow || linear > autoHigh {
		req.lg.Debug().Float64("linear_score", linear).Msg("linear is decisive, skipping bert")
		return nil
	}
	_, _, err = o.run(ctx, req, classifier.Bert, StageClassifyBert, classifier.Input{Tokens: textprep.TrimTokens(tokens, classifier.BertSeqLen), TraceID: req.traceID})
	return err
}

func (o *Orchestrator) runExplicit(ctx context.Context, req *request, kinds []classifier.Kind, tokens []string) error {
	for _, k := range kinds {
		var err error
		switch k {
		case classifier.Image:
			err = o.runImage(ctx, req)
		case classifier.Linear:
			if len(tokens) == 0 {
				req.lg.Debug().Msg("no tokens, skipping linear")
				continue
			}
			_, _, err = o.run(ctx, req, classifier.Linear, StageClassifyLinear, classifier.Input{Tokens: tokens, TraceID: req.traceID})
		case classifier.Bert:
			if len(tokens) == 0 {
				req.lg.Debug().Msg("no tokens, skipping bert")
				continue
			}
			_, _, err = o.run(ctx, req, classifier.Bert, StageClassifyBert, classifier.Input{Tokens: textprep.TrimTokens(tokens, classifier.BertSeqLen), TraceID: req.traceID})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runImage(ctx context.Context, req *request) error {
	var img *extract.PageImage
	req.timed(StageExtractImage, func() {
		img = o.image.ExtractImage(ctx, req.pdf, req.traceID)
	})
	if img == nil {
		req.lg.Debug().Msg("no usable page image, skipping image classifier")
		return nil
	}
	_, _, err := o.run(ctx, req, classifier.Image, StageClassifyImage, classifier.Input{Image: img, TraceID: req.traceID})
	return err
}

// run invokes one predictor and records its confidence. Remote failures are returned;
// a local failure only skips the classifier.
func (o *Orchestrator) run(ctx context.Context, req *request, kind classifier.Kind, stage string, in classifier.Input) (float64, bool, error) {
	p, ok := o.predictors[kind]
	if !ok || p == nil {
		req.lg.Warn().Str("classifier", string(kind)).Msg("classifier not configured, skipping")
		return 0, false, nil
	}

	var pred classifier.RawPrediction
	var err error
	req.timed(stage, func() {
		pred, err = p.Predict(ctx, in)
	})
	if err != nil {
		var rme *classifier.RemoteModelError
		if errors.As(err, &rme) {
			return 0, false, err
		}
		req.lg.Warn().Err(err).Str("classifier", string(kind)).Msg("classifier failed, skipping")
		return 0, false, nil
	}

	c := pred.Confidence()
	req.res.setScore(kind, c)
	req.confidences = append(req.confidences, c)
	req.lg.Debug().Str("classifier", string(kind)).Str("label", string(pred.Label)).Float64("probability", pred.Probability).Float64("confidence", c).Msg("classifier scored")
	return c, true, nil
}

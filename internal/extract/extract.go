// Package extract turns raw PDF bytes into the text and first-page image the
// classifiers consume. Extraction never fails a request: problems are logged,
// counted and reported as empty text or a nil image.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/local/pdftrio/internal/config"
	"github.com/local/pdftrio/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	ImageSize     = 299
	ImageChannels = 3
)

// TextExtractor returns the human-readable text of a PDF, or "" when none could be produced.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte, traceID string) string
}

// ImageExtractor renders the first page of a PDF, or returns nil when no usable
// image could be produced.
type ImageExtractor interface {
	ExtractImage(ctx context.Context, pdf []byte, traceID string) *PageImage
}

// Options shared by both back ends.
type Options struct {
	Timeout            time.Duration
	BlankImageMinBytes int
	// MaxInflight caps running MuPDF calls for the fitz back end. A timed out call
	// keeps its slot until it really returns. <= 0 is unlimited.
	MaxInflight int
}

func OptionsFromConfig(c config.ExtractConfig) Options {
	return Options{Timeout: c.Timeout, BlankImageMinBytes: c.BlankImageMinBytes, MaxInflight: c.MaxInflight}
}

// Extractor does both text and image extraction.
type Extractor interface {
	TextExtractor
	ImageExtractor
}

// New selects the back end named by cfg.Backend.
func New(cfg config.ExtractConfig) (Extractor, error) {
	opts := OptionsFromConfig(cfg)
	switch cfg.Backend {
	case "", "fitz":
		return NewFitz(opts), nil
	case "exec":
		return NewExec(opts), nil
	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.Backend)
	}
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

// fail logs and counts an extraction failure.
func fail(modality, reason, traceID string, err error) {
	metrics.IncExtractionFailure(modality, reason)
	ev := log.Warn().Str("trace_id", traceID).Str("modality", modality).Str("reason", reason)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("extraction failed")
}

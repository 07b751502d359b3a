package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/local/pdftrio/internal/limiter"
	"github.com/rs/zerolog/log"
)

const (
	// renderDPI matches the default density of the training renderer.
	renderDPI = 72
	slotKey   = "mupdf"
)

// FitzExtractor extracts in-process with MuPDF through go-fitz.
type FitzExtractor struct {
	opts  Options
	slots *limiter.Inflight
}

func NewFitz(opts Options) *FitzExtractor {
	return &FitzExtractor{opts: opts, slots: limiter.New(opts.MaxInflight)}
}

// Busy reports how many MuPDF calls are still running, abandoned ones included.
func (f *FitzExtractor) Busy() int { return f.slots.InUse(slotKey) }

// ExtractText concatenates the text of every page.
func (f *FitzExtractor) ExtractText(ctx context.Context, pdf []byte, traceID string) string {
	start := time.Now()
	text, err := runBounded(ctx, f.slots, f.opts.timeout(), func() (string, error) {
		doc, err := fitz.NewFromMemory(pdf)
		if err != nil {
			return "", fmt.Errorf("open pdf: %w", err)
		}
		defer doc.Close()

		var sb strings.Builder
		for i := 0; i < doc.NumPage(); i++ {
			t, err := doc.Text(i)
			if err != nil {
				log.Debug().Err(err).Str("trace_id", traceID).Int("page", i+1).Msg("page text failed")
				continue
			}
			sb.WriteString(t)
			sb.WriteByte('\n')
		}
		return sb.String(), nil
	})
	if err != nil {
		fail("text", reason(err), traceID, err)
		return ""
	}
	if !utf8.ValidString(text) {
		fail("text", "encoding", traceID, nil)
		return ""
	}
	log.Debug().Str("trace_id", traceID).Int("chars", len(text)).Dur("took", time.Since(start)).Msg("extracted text with go-fitz")
	return text
}

// ExtractImage renders page 0 and runs it through the thumbnail pipeline.
func (f *FitzExtractor) ExtractImage(ctx context.Context, pdf []byte, traceID string) *PageImage {
	jpg, err := runBounded(ctx, f.slots, f.opts.timeout(), func() ([]byte, error) {
		doc, err := fitz.NewFromMemory(pdf)
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		defer doc.Close()
		if doc.NumPage() < 1 {
			return nil, fmt.Errorf("pdf has no pages")
		}
		page, err := doc.ImageDPI(0, renderDPI)
		if err != nil {
			return nil, fmt.Errorf("render page 0: %w", err)
		}
		return renderThumbnail(page)
	})
	if err != nil {
		fail("image", reason(err), traceID, err)
		return nil
	}
	return f.opts.toPageImage(jpg, traceID)
}

// toPageImage applies the blank check and converts a thumbnail to model input.
func (o Options) toPageImage(jpg []byte, traceID string) *PageImage {
	if o.blank(jpg) {
		fail("image", "blank", traceID, nil)
		return nil
	}
	img, err := PageImageFromJPEG(jpg)
	if err != nil {
		fail("image", "decode", traceID, err)
		return nil
	}
	return img
}

var (
	errTimeout = errors.New("extraction timed out")
	errBusy    = errors.New("too many extractions in flight")
)

// runBounded runs fn on its own goroutine and gives up after timeout. MuPDF calls
// cannot be interrupted, so a timed out call finishes in the background and its
// result is dropped. The slot taken from slots is held until fn returns, so
// abandoned calls still count against the cap and new ones fail fast with errBusy.
func runBounded[T any](ctx context.Context, slots *limiter.Inflight, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	release, ok := slots.Allow(slotKey)
	if !ok {
		return zero, errBusy
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer release()
		defer func() {
			if r := recover(); r != nil {
				done <- result{zero, fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w after %s", errTimeout, timeout)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, errTimeout):
		return "timeout"
	case errors.Is(err, errBusy):
		return "busy"
	}
	return "failure"
}

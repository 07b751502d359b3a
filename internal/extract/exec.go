package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

var (
	pdftotextArgs = []string{"-nopgbrk", "-eol", "unix", "-enc", "UTF-8", "-", "-"}
	convertArgs   = []string{
		"pdf:-[0]", "-background", "white", "-alpha", "remove", "-equalize",
		"-quality", "95", "-thumbnail", "156x", "-gravity", "north", "-extent", "224x224", "jpg:-",
	}
)

// ExecExtractor shells out to poppler's pdftotext and ImageMagick's convert, feeding
// the PDF on stdin.
type ExecExtractor struct {
	opts      Options
	pdftotext string
	convert   string
}

func NewExec(opts Options) *ExecExtractor {
	return &ExecExtractor{opts: opts, pdftotext: "pdftotext", convert: "convert"}
}

// Tools lists the external binaries this back end needs.
func (e *ExecExtractor) Tools() []string { return []string{e.pdftotext, e.convert} }

func (e *ExecExtractor) ExtractText(ctx context.Context, pdf []byte, traceID string) string {
	out, err := e.run(ctx, e.pdftotext, pdftotextArgs, pdf)
	if err != nil {
		fail("text", reason(err), traceID, err)
		return ""
	}
	if !utf8.Valid(out) {
		fail("text", "encoding", traceID, nil)
		return ""
	}
	return string(out)
}

func (e *ExecExtractor) ExtractImage(ctx context.Context, pdf []byte, traceID string) *PageImage {
	if n, err := PageCount(pdf); err == nil && n == 0 {
		fail("image", "no_pages", traceID, nil)
		return nil
	} else if err != nil {
		log.Debug().Err(err).Str("trace_id", traceID).Msg("pdfcpu could not count pages, rendering anyway")
	}
	jpg, err := e.run(ctx, e.convert, convertArgs, pdf)
	if err != nil {
		fail("image", reason(err), traceID, err)
		return nil
	}
	return e.opts.toPageImage(jpg, traceID)
}

// run executes a tool with stdin and returns stdout. The process is killed when
// the timeout expires.
func (e *ExecExtractor) run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	timeout := e.opts.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w after %s", name, errTimeout, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	log.Debug().Str("tool", name).Int("bytes", stdout.Len()).Dur("took", time.Since(start)).Msg("external extraction finished")
	return stdout.Bytes(), nil
}

// PageCount reads the page count with pdfcpu without touching disk.
func PageCount(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	n, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

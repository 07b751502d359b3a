// Package logger configures the process-wide zerolog logger: console output, an
// optional rotating file and optional forwarding to Axiom.
package logger

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "pdftrio"

// Options defines logger initialization parameters.
type Options struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

var shipper *axiomShipper

// Init logs to stdout plus whatever opts enables.
func Init(opts Options) error {
    return InitWriter(opts, os.Stdout)
}

// InitWriter is Init with an explicit console destination.
func InitWriter(opts Options, console io.Writer) error {
    sinks := []io.Writer{consoleSink(console, opts.Pretty)}

    if opts.File != "" {
        fw, err := fileSink(opts)
        if err != nil {
            return err
        }
        sinks = append(sinks, fw)
    }

    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        s, err := dialAxiom(opts)
        if err != nil {
            fmt.Fprintf(os.Stderr, "axiom forwarding off: %v\n", err)
        } else {
            shipper = s
            sinks = append(sinks, axiomSink{s})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    log.Logger = zerolog.New(io.MultiWriter(sinks...)).
        Level(parseLevel(opts.Level)).
        With().Timestamp().Str("service", serviceName).
        Logger()
    return nil
}

func parseLevel(s string) zerolog.Level {
    lvl, err := zerolog.ParseLevel(s)
    if err != nil || s == "" {
        return zerolog.InfoLevel
    }
    return lvl
}

func consoleSink(w io.Writer, pretty bool) io.Writer {
    if pretty {
        return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
    }
    return w
}

func fileSink(opts Options) (io.Writer, error) {
    if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
        return nil, fmt.Errorf("create log dir: %w", err)
    }
    return &lumberjack.Logger{
        Filename:   opts.File,
        MaxSize:    opts.MaxSizeMB,
        MaxBackups: opts.MaxBackups,
        MaxAge:     opts.MaxAgeDays,
        Compress:   opts.Compress,
    }, nil
}

// Close drains the Axiom queue, if any.
func Close() {
    if shipper != nil {
        shipper.stop()
        shipper = nil
    }
}

// WithTrace returns a child of the global logger tagged with the request trace id.
func WithTrace(traceID string) zerolog.Logger {
    return log.Logger.With().Str("trace_id", traceID).Logger()
}

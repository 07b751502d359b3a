package main

import (
    "context"
    "fmt"
    "io"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/pdftrio/internal/breaker"
    "github.com/local/pdftrio/internal/classifier"
    "github.com/local/pdftrio/internal/config"
    "github.com/local/pdftrio/internal/ensemble"
    "github.com/local/pdftrio/internal/extract"
    logpkg "github.com/local/pdftrio/internal/logger"
    "github.com/local/pdftrio/internal/source"
    "github.com/local/pdftrio/internal/statuscheck"
)

// app is the wired pipeline shared by serve and classify.
type app struct {
    cfg          config.Config
    orch         *ensemble.Orchestrator
    models       *classifier.Set
    extractor    extract.Extractor
    breaker      breaker.Breaker
    closeBreaker func() error
    fetcher      *source.Fetcher
}

func initLogging(cfg config.Config, console io.Writer) {
    _ = logpkg.InitWriter(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }, console)
}

// staticVersions are the version entries known without asking a model server.
func staticVersions(cfg config.Config) map[string]string {
    return map[string]string{
        "pdftrio_version": Version,
        "git_rev":         cfg.GitRev,
        "linear_model":    cfg.Models.LinearVersion,
        "models_date":     cfg.Models.ModelsDate,
    }
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
    if err := cfg.Validate(); err != nil {
        return nil, err
    }

    b, closeBreaker, err := breaker.New(ctx, cfg.Breaker)
    if err != nil {
        return nil, fmt.Errorf("breaker: %w", err)
    }

    models, err := classifier.Load(cfg, b)
    if err != nil {
        _ = closeBreaker()
        return nil, err
    }

    ex, err := extract.New(cfg.Extract)
    if err != nil {
        _ = closeBreaker()
        return nil, err
    }

    versions := ensemble.NewModelVersionCache(staticVersions(cfg), models.Remote()...)
    orch := ensemble.New(ex, ex, models.Predictors(), versions, ensemble.Options{MinTextChars: cfg.Extract.MinTextChars})

    log.Info().
        Str("extractor", cfg.Extract.Backend).
        Str("image_model", cfg.ImageModelURL()).
        Str("bert_model", cfg.BertModelURL()).
        Msg("pipeline ready")

    return &app{
        cfg:          cfg,
        orch:         orch,
        models:       models,
        extractor:    ex,
        breaker:      b,
        closeBreaker: closeBreaker,
        fetcher:      source.New(cfg.Source),
    }, nil
}

func (a *app) checker() *statuscheck.Checker {
    opts := statuscheck.Options{Timeout: 5 * time.Second}
    for _, m := range a.models.Remote() {
        opts.Models = append(opts.Models, m)
    }
    if p, ok := a.breaker.(statuscheck.RedisPinger); ok {
        opts.Redis = p
    }
    if t, ok := a.extractor.(interface{ Tools() []string }); ok {
        opts.Tools = t.Tools()
    }
    return statuscheck.New(opts)
}

func (a *app) Close() {
    if err := a.closeBreaker(); err != nil {
        log.Warn().Err(err).Msg("closing redis")
    }
}

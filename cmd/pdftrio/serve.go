package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/pdftrio/internal/config"
    "github.com/local/pdftrio/internal/limiter"
    logpkg "github.com/local/pdftrio/internal/logger"
    "github.com/local/pdftrio/internal/metrics"
    "github.com/local/pdftrio/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
    Use:   "serve",
    Short: "Start the HTTP classification service",
    Long: `Start the HTTP service.

Routes:
  POST /classify/research-pub/{ctype}  multipart pdf_content, or pdf_url (s3:// or http(s)://)
  GET  /, /health, /ready, /api/list, /metrics`,
    RunE: func(cmd *cobra.Command, args []string) error {
        ctx := cmd.Context()
        cfg := config.FromEnv()
        if servePort != "" {
            cfg.Port = servePort
        }

        initLogging(cfg, os.Stdout)
        defer logpkg.Close()
        metrics.Init()

        a, err := newApp(ctx, cfg)
        if err != nil {
            log.Error().Err(err).Msg("refusing to start")
            return err
        }
        defer a.Close()

        srv := server.New(server.Dependencies{
            Classifier: a.orch,
            Fetcher:    a.fetcher,
            Status:     a.checker(),
            Limiter:    limiter.New(cfg.MaxInflight),
            MaxUpload:  cfg.Source.MaxBytes,
        })
        httpSrv := &http.Server{
            Addr:              ":" + cfg.Port,
            Handler:           srv.Handler(),
            ReadHeaderTimeout: 10 * time.Second,
        }

        errCh := make(chan error, 1)
        go func() {
            log.Info().Msgf("HTTP server listening on :%s", cfg.Port)
            if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
                errCh <- err
            }
            close(errCh)
        }()

        select {
        case err := <-errCh:
            if err != nil {
                log.Error().Err(err).Msg("http server error")
                return err
            }
        case <-ctx.Done():
        }

        // Graceful shutdown
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := httpSrv.Shutdown(shutdownCtx); err != nil {
            log.Warn().Err(err).Msg("shutdown")
        }
        log.Info().Msg("shutdown complete")
        return nil
    },
}

func init() {
    serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default: $PORT or 8080)")
}

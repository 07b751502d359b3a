package main

import (
    "encoding/json"
    "os"
    "path/filepath"

    "github.com/spf13/cobra"

    "github.com/local/pdftrio/internal/config"
    "github.com/local/pdftrio/internal/filetype"
    logpkg "github.com/local/pdftrio/internal/logger"
)

var classifyMode string

var classifyCmd = &cobra.Command{
    Use:   "classify <file.pdf|s3://bucket/key|https://...>",
    Short: "Classify one PDF and print the result as JSON",
    Long: `Run the full pipeline against the configured model servers and print the
result. Exits with status 2 when no classifier produced a score.

Examples:
  pdftrio classify paper.pdf
  pdftrio classify --mode auto,bert s3://papers/2020/x.pdf`,
    Args: cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        ctx := cmd.Context()
        ref := args[0]
        cfg := config.FromEnv()

        // stdout is reserved for the result
        initLogging(cfg, os.Stderr)
        defer logpkg.Close()

        a, err := newApp(ctx, cfg)
        if err != nil {
            return err
        }
        defer a.Close()

        a.fetcher.LocalFiles = true
        pdf, err := a.fetcher.Fetch(ctx, ref)
        if err != nil {
            return err
        }
        traceID := filepath.Base(ref)
        if err := filetype.New().RequirePDF(pdf, traceID); err != nil {
            return err
        }

        res, cerr := a.orch.Classify(ctx, classifyMode, pdf, traceID)
        if res != nil {
            enc := json.NewEncoder(cmd.OutOrStdout())
            enc.SetIndent("", "  ")
            if err := enc.Encode(res); err != nil {
                return err
            }
        }
        if cerr != nil {
            return cerr
        }
        if err := res.Err(); err != nil {
            return &exitError{code: 2, msg: err.Error()}
        }
        return nil
    },
}

func init() {
    classifyCmd.Flags().StringVarP(&classifyMode, "mode", "m", "auto", "comma separated classifiers: auto, image, linear, bert, all")
}

package main

import (
    "bytes"
    "context"
    "errors"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/pdftrio/internal/config"
)

func TestVersionCommand(t *testing.T) {
    var out bytes.Buffer
    rootCmd.SetOut(&out)
    rootCmd.SetArgs([]string{"version"})
    defer rootCmd.SetArgs(nil)

    require.NoError(t, rootCmd.ExecuteContext(context.Background()))
    assert.Contains(t, out.String(), "pdftrio "+Version)
}

func TestClassifyRefusesIncompleteConfig(t *testing.T) {
    t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "pdftrio.log"))
    t.Setenv("TF_IMAGE_SERVER_URL", "")
    t.Setenv("TF_BERT_SERVER_URL", "")
    t.Setenv("FT_MODEL", "")
    t.Setenv("TF_BERT_VOCAB_PATH", "")

    rootCmd.SetArgs([]string{"--env-file", "", "classify", "missing.pdf"})
    defer rootCmd.SetArgs(nil)

    err := rootCmd.ExecuteContext(context.Background())
    var cerr *config.ConfigError
    require.True(t, errors.As(err, &cerr), "got %v", err)
    assert.Len(t, cerr.Problems, 4)
}

func TestStaticVersions(t *testing.T) {
    cfg := config.Config{GitRev: "abc123"}
    cfg.Models.LinearVersion = "20190720"

    v := staticVersions(cfg)

    assert.Equal(t, "abc123", v["git_rev"])
    assert.Equal(t, "20190720", v["linear_model"])
    assert.Equal(t, Version, v["pdftrio_version"])
}

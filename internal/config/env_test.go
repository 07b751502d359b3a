package config

import (
    "errors"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
    t.Setenv("TF_IMAGE_SERVER_URL", "http://localhost:8501/v1/")
    t.Setenv("TF_BERT_SERVER_URL", "http://localhost:8501/v1")

    cfg := FromEnv()

    assert.Equal(t, "http://localhost:8501/v1/models/image_model", cfg.ImageModelURL())
    assert.Equal(t, "http://localhost:8501/v1/models/bert_model", cfg.BertModelURL())
    assert.Equal(t, "fitz", cfg.Extract.Backend)
    assert.Equal(t, 30*time.Second, cfg.Extract.Timeout)
    assert.Equal(t, 3000, cfg.Extract.BlankImageMinBytes)
    assert.Equal(t, 300, cfg.Extract.MinTextChars)
    assert.Equal(t, 4, cfg.Extract.MaxInflight)
    assert.Equal(t, 30*time.Second, cfg.Models.Timeout)
    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, int64(64<<20), cfg.Source.MaxBytes)
    assert.Equal(t, 8, cfg.MaxInflight)
}

func TestFromEnvOverrides(t *testing.T) {
    t.Setenv("EXTRACTOR", "EXEC")
    t.Setenv("EXTRACT_TIMEOUT", "5s")
    t.Setenv("BLANK_IMAGE_MIN_BYTES", "1200")
    t.Setenv("MODEL_TIMEOUT", "not-a-duration")
    t.Setenv("SOURCE_S3_ENDPOINT", "http://minio:9000")
    t.Setenv("MAX_INFLIGHT", "0")

    cfg := FromEnv()

    assert.Equal(t, "exec", cfg.Extract.Backend)
    assert.Equal(t, 5*time.Second, cfg.Extract.Timeout)
    assert.Equal(t, 1200, cfg.Extract.BlankImageMinBytes)
    assert.Equal(t, 30*time.Second, cfg.Models.Timeout)
    assert.Equal(t, "http://minio:9000", cfg.Source.S3Endpoint)
    assert.Equal(t, 0, cfg.MaxInflight)
}

func TestValidateReportsEveryMissingSetting(t *testing.T) {
    cfg := Config{Extract: ExtractConfig{Backend: "fitz"}}

    err := cfg.Validate()

    var cerr *ConfigError
    require.True(t, errors.As(err, &cerr))
    assert.Len(t, cerr.Problems, 4)
    assert.Contains(t, err.Error(), "TF_IMAGE_SERVER_URL")
    assert.Contains(t, err.Error(), "FT_MODEL")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
    dir := t.TempDir()
    vocab := filepath.Join(dir, "vocab.txt")
    model := filepath.Join(dir, "model.bin")
    require.NoError(t, os.WriteFile(vocab, []byte("[PAD]\n"), 0o644))
    require.NoError(t, os.WriteFile(model, []byte{0}, 0o644))

    cfg := Config{
        Models: ModelsConfig{
            ImageServerURL: "http://img",
            BertServerURL:  "http://bert",
            BertVocabPath:  vocab,
            FastTextModel:  model,
        },
        Extract: ExtractConfig{Backend: "exec"},
    }

    assert.NoError(t, cfg.Validate())

    cfg.Models.FastTextModel = dir
    assert.Error(t, cfg.Validate())
}

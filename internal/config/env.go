package config

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ModelsConfig points at the three model back ends.
type ModelsConfig struct {
    ImageServerURL string // prefix, "/models/image_model" is appended
    BertServerURL  string // prefix, "/models/bert_model" is appended
    BertVocabPath  string
    FastTextModel  string
    LinearVersion  string
    ModelsDate     string
    Timeout        time.Duration
}

// ExtractConfig controls PDF text and image extraction.
type ExtractConfig struct {
    Backend            string // "fitz"|"exec"
    Timeout            time.Duration
    BlankImageMinBytes int
    MinTextChars       int
    MaxInflight        int // concurrent in-process MuPDF calls, timed out ones included
}

// BreakerConfig configures the optional Redis-backed breaker in front of remote models.
type BreakerConfig struct {
    RedisURL    string
    BaseBackoff time.Duration
    MaxBackoff  time.Duration
}

// SourceConfig configures fetching PDFs by reference.
type SourceConfig struct {
    S3Region     string
    S3Endpoint   string // optional, e.g. MinIO
    S3AccessKey  string // static credentials; empty uses the default chain
    S3SecretKey  string
    FetchTimeout time.Duration
    MaxBytes     int64
}

// Config is the top-level configuration.
type Config struct {
    Logging     LoggingConfig
    Axiom       AxiomConfig
    Models      ModelsConfig
    Extract     ExtractConfig
    Breaker     BreakerConfig
    Source      SourceConfig
    Port        string
    GitRev      string
    MaxInflight int // concurrent classifications; 0 disables the cap
}

// ConfigError lists required settings that are missing or unusable.
type ConfigError struct {
    Problems []string
}

func (e *ConfigError) Error() string {
    return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/research-pub.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdftrio",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Models = ModelsConfig{
        ImageServerURL: strings.TrimRight(getEnv("TF_IMAGE_SERVER_URL", ""), "/"),
        BertServerURL:  strings.TrimRight(getEnv("TF_BERT_SERVER_URL", ""), "/"),
        BertVocabPath:  getEnv("TF_BERT_VOCAB_PATH", ""),
        FastTextModel:  getEnv("FT_MODEL", ""),
        LinearVersion:  getEnv("FT_MODEL_VERSION", ""),
        ModelsDate:     getEnv("PDFTRIO_MODELS_DATE", ""),
        Timeout:        parseDuration(getEnv("MODEL_TIMEOUT", "30s"), 30*time.Second),
    }

    cfg.Extract = ExtractConfig{
        Backend:            strings.ToLower(getEnv("EXTRACTOR", "fitz")),
        Timeout:            parseDuration(getEnv("EXTRACT_TIMEOUT", "30s"), 30*time.Second),
        BlankImageMinBytes: parseInt(getEnv("BLANK_IMAGE_MIN_BYTES", "3000"), 3000),
        MinTextChars:       parseInt(getEnv("MIN_TEXT_CHARS", "300"), 300),
        MaxInflight:        parseInt(getEnv("EXTRACT_MAX_INFLIGHT", "4"), 4),
    }

    cfg.Breaker = BreakerConfig{
        RedisURL:    getEnv("REDIS_URL", ""),
        BaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
        MaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
    }

    cfg.Source = SourceConfig{
        S3Region:     getEnv("AWS_S3_REGION", ""),
        S3Endpoint:   getEnv("SOURCE_S3_ENDPOINT", ""),
        S3AccessKey:  getEnv("SOURCE_S3_ACCESS_KEY", ""),
        S3SecretKey:  getEnv("SOURCE_S3_SECRET_KEY", ""),
        FetchTimeout: parseDuration(getEnv("SOURCE_FETCH_TIMEOUT", "30s"), 30*time.Second),
        MaxBytes:     int64(parseInt(getEnv("SOURCE_MAX_MB", "64"), 64)) << 20,
    }

    cfg.Port = getEnv("PORT", "8080")
    cfg.GitRev = getEnv("GIT_REV", "")
    cfg.MaxInflight = parseInt(getEnv("MAX_INFLIGHT", "8"), 8)
    return cfg
}

// Validate reports every required model setting that is missing. The service must not
// start when this returns an error.
func (c Config) Validate() error {
    var problems []string
    if c.Models.ImageServerURL == "" {
        problems = append(problems, "missing TF image classifier URL, define env var TF_IMAGE_SERVER_URL")
    }
    if c.Models.BertServerURL == "" {
        problems = append(problems, "missing TF BERT classifier URL, define env var TF_BERT_SERVER_URL")
    }
    problems = append(problems, checkFile("TF_BERT_VOCAB_PATH", c.Models.BertVocabPath)...)
    problems = append(problems, checkFile("FT_MODEL", c.Models.FastTextModel)...)
    if c.Extract.Backend != "fitz" && c.Extract.Backend != "exec" {
        problems = append(problems, fmt.Sprintf("EXTRACTOR must be fitz or exec, got %q", c.Extract.Backend))
    }
    if len(problems) > 0 {
        return &ConfigError{Problems: problems}
    }
    return nil
}

// ImageModelURL is the TF-Serving model resource for the image classifier.
func (c Config) ImageModelURL() string { return c.Models.ImageServerURL + "/models/image_model" }

// BertModelURL is the TF-Serving model resource for the BERT classifier.
func (c Config) BertModelURL() string { return c.Models.BertServerURL + "/models/bert_model" }

func checkFile(key, path string) []string {
    if path == "" {
        return []string{fmt.Sprintf("%s is not set", key)}
    }
    st, err := os.Stat(path)
    if err != nil {
        return []string{fmt.Sprintf("%s target does not exist: %s", key, path)}
    }
    if st.IsDir() {
        return []string{fmt.Sprintf("%s target is a directory: %s", key, path)}
    }
    return nil
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

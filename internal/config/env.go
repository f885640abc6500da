package config

import (
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

// APIConfig describes the conversion backend this client talks to.
type APIConfig struct {
    BaseURL        string
    CSRFToken      string
    RequestTimeout time.Duration
}

// PollConfig controls task status polling.
type PollConfig struct {
    Interval    time.Duration
    MaxAttempts int
    MaxBackoff  time.Duration
}

// EditorConfig holds limits and tuning for the page editors.
type EditorConfig struct {
    PageLimit          int
    MinCropPx          float64
    RotateSensitivity  float64 // degrees per horizontal pixel
    RotateClamp        float64 // max degrees per move event
    PreviewDPI         float64
    MaxUploadMB        int
}

// TrackerConfig selects where in-flight tasks are registered for the abandon sweep.
type TrackerConfig struct {
    RedisURL string // empty -> in-memory
    Key      string
}

// StorageConfig defines where finished artifacts land.
type StorageConfig struct {
    ResultDir    string
    S3Bucket     string
    S3Prefix     string
    S3Region     string
    S3AccessKey  string
    S3SecretKey  string
    Passphrase   string
}

// WebConfig configures the local editor server.
type WebConfig struct {
    Port            string
    AllowedOrigins  []string
    StaticVersion   string
    // ResultRetention is how long a finished operation stays queryable.
    ResultRetention time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    API     APIConfig
    Poll    PollConfig
    Editor  EditorConfig
    Tracker TrackerConfig
    Storage StorageConfig
    Web     WebConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/convertdesk.log"),
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
        Dataset:       baseDataset + "_convertdesk",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.API = APIConfig{
        BaseURL:        strings.TrimRight(getEnv("CONVERT_API_URL", "http://localhost:8000"), "/"),
        CSRFToken:      getEnv("CONVERT_CSRF_TOKEN", ""),
        RequestTimeout: parseDuration(getEnv("CONVERT_REQUEST_TIMEOUT", "120s"), 120*time.Second),
    }

    cfg.Poll = PollConfig{
        Interval:    parseDuration(getEnv("POLL_INTERVAL", "2500ms"), 2500*time.Millisecond),
        MaxAttempts: parseInt(getEnv("POLL_MAX_ATTEMPTS", "120"), 120),
        MaxBackoff:  parseDuration(getEnv("POLL_MAX_BACKOFF", "30s"), 30*time.Second),
    }

    cfg.Editor = EditorConfig{
        PageLimit:         parseInt(getEnv("EDITOR_PAGE_LIMIT", "50"), 50),
        MinCropPx:         parseFloat(getEnv("EDITOR_MIN_CROP_PX", "10"), 10),
        RotateSensitivity: parseFloat(getEnv("EDITOR_ROTATE_SENSITIVITY", "-0.15"), -0.15),
        RotateClamp:       parseFloat(getEnv("EDITOR_ROTATE_CLAMP", "3"), 3),
        PreviewDPI:        parseFloat(getEnv("EDITOR_PREVIEW_DPI", "72"), 72),
        MaxUploadMB:       parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
    }

    cfg.Tracker = TrackerConfig{
        RedisURL: getEnv("TRACKER_REDIS_URL", ""),
        Key:      getEnv("TRACKER_KEY", "convertdesk:tasks:tracked"),
    }

    cfg.Storage = StorageConfig{
        ResultDir:   getEnv("RESULT_DIR", "results"),
        S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
        S3Prefix:    getEnv("AWS_S3_PREFIX", "convertdesk/results"),
        S3Region:    getEnv("AWS_REGION", ""),
        S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
        S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        Passphrase:  getEnv("RESULT_PASSPHRASE", ""),
    }

    cfg.Web = WebConfig{
        Port:            getEnv("PORT", "8080"),
        AllowedOrigins:  parseList(getEnv("WEB_ALLOWED_ORIGINS", "*")),
        StaticVersion:   getEnv("WEB_STATIC_VERSION", "v1"),
        ResultRetention: parseDuration(getEnv("WEB_RESULT_RETENTION", "30m"), 30*time.Minute),
    }

    return cfg
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

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
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

func parseList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

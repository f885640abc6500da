package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"
)

// Pinger models the minimal capability we need from Redis and S3.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the dependencies of the editor.
type Checker struct {
    apiURL     string
    redis      Pinger
    s3         Pinger
    s3Bucket   string
    renderer   func() (string, error)
    httpClient *http.Client
}

// Options configures the Checker. Nil dependencies report as not configured.
type Options struct {
    APIURL     string
    Redis      Pinger
    S3         Pinger
    S3Bucket   string
    Renderer   func() (string, error)
    HTTPClient *http.Client
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    API      Status `json:"api"`
    Redis    Status `json:"redis"`
    S3       Status `json:"s3"`
    Renderer Status `json:"renderer"`
}

// Healthy reports whether everything the editor cannot work without is up.
// Redis and S3 are optional.
func (s Summary) Healthy() bool { return s.API.OK && s.Renderer.OK }

func New(opts Options) *Checker {
    client := opts.HTTPClient
    if client == nil {
        client = &http.Client{Timeout: 5 * time.Second}
    }
    return &Checker{
        apiURL:     strings.TrimRight(opts.APIURL, "/"),
        redis:      opts.Redis,
        s3:         opts.S3,
        s3Bucket:   opts.S3Bucket,
        renderer:   opts.Renderer,
        httpClient: client,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        API:      c.checkAPI(ctx),
        Redis:    c.checkRedis(ctx),
        S3:       c.checkS3(ctx),
        Renderer: c.checkRenderer(),
    }
}

func (c *Checker) checkAPI(ctx context.Context) Status {
    if c.apiURL == "" {
        return Status{OK: false, Message: "URL not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/", nil)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 500 {
        return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }
    return Status{OK: true, Message: "Reachable"}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Message: "Not configured (in-memory tracker)"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3 == nil {
        return Status{OK: false, Message: "Bucket not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.s3.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected to " + c.s3Bucket}
}

func (c *Checker) checkRenderer() Status {
    if c.renderer == nil {
        return Status{OK: false, Message: "Not configured"}
    }
    version, err := c.renderer()
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "MuPDF " + version}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

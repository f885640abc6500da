package statuscheck

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSummary(t *testing.T) {
    api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusNotFound)
    }))
    defer api.Close()

    c := New(Options{
        APIURL:   api.URL,
        Redis:    pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) }),
        S3:       pingFunc(func(context.Context) error { return nil }),
        S3Bucket: "results",
        Renderer: func() (string, error) { return "1.24.10", nil },
    })
    s := c.Summary(context.Background())

    assert.Equal(t, Status{OK: true, Message: "Reachable"}, s.API)
    assert.False(t, s.Redis.OK)
    assert.Len(t, s.Redis.Message, 120)
    assert.Equal(t, Status{OK: true, Message: "Connected to results"}, s.S3)
    assert.Equal(t, Status{OK: true, Message: "MuPDF 1.24.10"}, s.Renderer)
    assert.True(t, s.Healthy())
}

func TestSummaryUnconfigured(t *testing.T) {
    down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadGateway)
    }))
    defer down.Close()

    s := New(Options{APIURL: down.URL}).Summary(context.Background())
    assert.Equal(t, Status{OK: false, Message: "HTTP 502"}, s.API)
    assert.False(t, s.Redis.OK)
    assert.Equal(t, "Bucket not configured", s.S3.Message)
    assert.False(t, s.Renderer.OK)
    assert.False(t, s.Healthy())
}

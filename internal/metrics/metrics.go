package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    submissions = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "convertdesk",
            Name:      "submissions_total",
            Help:      "Conversion submissions by tool and mode (sync, async, error)",
        },
        []string{"tool", "mode"},
    )

    submitLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "convertdesk",
            Name:      "submit_duration_seconds",
            Help:      "Duration of the initial submission request by tool",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"tool"},
    )

    polls = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "convertdesk",
            Name:      "status_polls_total",
            Help:      "Task status polls by result (pending, terminal, transport_error)",
        },
        []string{"result"},
    )

    operations = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "convertdesk",
            Name:      "operations_total",
            Help:      "Finished operations by final state",
        },
        []string{"state"},
    )

    rendersDiscarded = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "convertdesk",
            Name:      "renders_discarded_total",
            Help:      "Preview frames dropped because a newer document replaced the source",
        },
    )

    activeSessions = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "convertdesk",
            Name:      "editor_sessions",
            Help:      "Editor sessions currently held by the local server",
        },
    )

    once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    once.Do(func() {
        prometheus.MustRegister(submissions, submitLatency, polls, operations, rendersDiscarded, activeSessions)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveSubmit(tool, mode string, dur time.Duration) {
    submissions.WithLabelValues(tool, mode).Inc()
    submitLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func IncPoll(result string)         { polls.WithLabelValues(result).Inc() }
func IncOperation(state string)     { operations.WithLabelValues(state).Inc() }
func IncRenderDiscarded()           { rendersDiscarded.Inc() }
func SetSessions(n int)             { activeSessions.Set(float64(n)) }

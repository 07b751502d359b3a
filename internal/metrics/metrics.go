package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    classifierReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdftrio",
            Name:      "classifier_requests_total",
            Help:      "Sub-classifier calls by classifier and result",
        },
        []string{"classifier", "result"},
    )

    classifierLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdftrio",
            Name:      "classifier_duration_seconds",
            Help:      "Duration of sub-classifier calls",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"classifier"},
    )

    stageLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdftrio",
            Name:      "stage_duration_seconds",
            Help:      "Duration of executed pipeline stages",
            Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
        },
        []string{"stage"},
    )

    extractionFailures = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdftrio",
            Name:      "extraction_failures_total",
            Help:      "Text or image extractions that produced no usable output",
        },
        []string{"modality", "reason"},
    )

    classifications = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdftrio",
            Name:      "classifications_total",
            Help:      "Classification requests by outcome (success, no_signal, remote_error)",
        },
        []string{"status"},
    )

    breakerEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdftrio",
            Name:      "breaker_events_total",
            Help:      "Remote model circuit breaker events by model and action",
        },
        []string{"model", "action"},
    )

    initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(classifierReqs, classifierLatency, stageLatency, extractionFailures, classifications, breakerEvents)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveClassifier(classifier, result string, dur time.Duration) {
    classifierReqs.WithLabelValues(classifier, result).Inc()
    classifierLatency.WithLabelValues(classifier).Observe(dur.Seconds())
}

func ObserveStage(stage string, dur time.Duration) { stageLatency.WithLabelValues(stage).Observe(dur.Seconds()) }

func IncExtractionFailure(modality, reason string) {
    extractionFailures.WithLabelValues(modality, reason).Inc()
}

func IncClassification(status string) { classifications.WithLabelValues(status).Inc() }

func BreakerOpened(model string) { breakerEvents.WithLabelValues(model, "opened").Inc() }
func BreakerClosed(model string) { breakerEvents.WithLabelValues(model, "closed").Inc() }
func BreakerRejected(model string) { breakerEvents.WithLabelValues(model, "rejected").Inc() }

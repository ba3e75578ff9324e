// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vellum_llm_requests_total",
			Help: "Completion requests by provider and status.",
		},
		[]string{"provider", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vellum_llm_request_duration_seconds",
			Help:    "Completion request latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider"},
	)

	PromptTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vellum_prompt_tokens",
		Help:    "Estimated prompt size per completion request.",
		Buckets: prometheus.ExponentialBuckets(256, 2, 8),
	})

	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_turns_total",
		Help: "Story turns received and played.",
	})

	DroppedLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_dropped_lines_total",
		Help: "Reply lines that matched no known markup.",
	})

	AttributeChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vellum_attribute_changes_total",
			Help: "Attribute deltas applied, by outcome.",
		},
		[]string{"status"},
	)

	GamesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vellum_games_active",
		Help: "Games currently held by the server.",
	})

	EndingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_endings_total",
		Help: "Playthroughs that reached an ending.",
	})
)

// Status labels shared by the counters above.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
	StatusUnknown = "unknown"
)

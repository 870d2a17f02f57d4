// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_turns_processed_total",
			Help: "Total number of conversation turns processed, by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "advisor_turn_duration_seconds",
			Help: "Duration of turn processing in seconds",
		},
		[]string{"phase"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_provider_calls_total",
			Help: "Total number of model provider calls, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	FallbacksUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_fallbacks_total",
			Help: "Times a degraded tier was used instead of a model reply",
		},
		[]string{"component", "tier"},
	)
)

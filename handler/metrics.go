package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_agent",
			Name:      "stream_requests_total",
			Help:      "Total chat stream requests",
		},
		[]string{"agent", "status"}, // status: ok, degraded, rejected
	)

	streamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "repair_agent",
			Name:      "stream_duration_seconds",
			Help:      "Duration of chat stream requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_agent",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"direction"},
	)
)

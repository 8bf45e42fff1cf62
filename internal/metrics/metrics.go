package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CaptureAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coastwatch_capture_attempts_total",
			Help: "Total snapshot capture attempts",
		},
		[]string{"beach", "status"},
	)

	CaptureLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coastwatch_capture_latency_seconds",
			Help:    "Snapshot capture latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"beach"},
	)

	VisionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coastwatch_vision_calls_total",
			Help: "Total vision analysis calls",
		},
		[]string{"beach", "status"},
	)

	ObservationsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coastwatch_observations_saved_total",
			Help: "Total observations successfully saved",
		},
		[]string{"beach"},
	)
)

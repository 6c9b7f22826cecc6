package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_forecasts_ingested_total",
			Help: "Forecast points successfully stored, per source",
		},
		[]string{"source"},
	)

	ActualsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_actuals_ingested_total",
			Help: "Measured temperature records successfully stored",
		},
		[]string{"location"},
	)

	ValidationRejects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_validation_rejects_total",
			Help: "Records dropped by field validation before write",
		},
		[]string{"source", "reason"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdxweather_fetch_latency_seconds",
			Help:    "Upstream fetch latency per source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ObservationsCounted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_histogram_observations_total",
			Help: "Error observations folded into histogram bins",
		},
		[]string{"source", "mtype"},
	)

	ObservationsDeduped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_histogram_deduped_total",
			Help: "Error observations dropped by the per-bin end-date guard",
		},
		[]string{"source", "mtype"},
	)

	FusionSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_fusion_skips_total",
			Help: "Actual observations with no matching forecast record",
		},
		[]string{"source"},
	)

	StalenessReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdxweather_staleness_replays_total",
			Help: "Histogram backfill replays triggered by staleness detection",
		},
		[]string{"source", "mtype"},
	)
)

// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts wizard submits by outcome: ok, upload_failed, save_failed, rejected.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studentportal",
		Name:      "submissions_total",
		Help:      "Wizard submissions by outcome.",
	}, []string{"outcome"})

	// Exports counts export requests by outcome: ok, empty, failed, busy.
	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studentportal",
		Name:      "exports_total",
		Help:      "Export bundle requests by outcome.",
	}, []string{"outcome"})

	ImageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studentportal",
		Name:      "export_image_fetches_total",
		Help:      "Per-record image fetches during export by result.",
	}, []string{"result"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studentportal",
		Name:      "export_duration_seconds",
		Help:      "Time to build an export bundle.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "studentportal",
		Name:      "active_sessions",
		Help:      "Live wizard and panel sessions.",
	}, []string{"kind"})

	RecordEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studentportal",
		Name:      "record_events_total",
		Help:      "record.created events by direction: published, consumed, failed.",
	}, []string{"direction"})
)

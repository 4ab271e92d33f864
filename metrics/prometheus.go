package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics contains the client's Prometheus collectors
type Metrics struct {
	Uploads          *prometheus.CounterVec
	CatalogRefreshes *prometheus.CounterVec
	CatalogSize      prometheus.Gauge
	Selections       prometheus.Counter

	Recordings        prometheus.Counter
	RecordingFailures prometheus.Counter
	RecordingDuration prometheus.Histogram
	RecordingLimits   prometheus.Counter

	ChatTurns        *prometheus.CounterVec
	ChatLatency      prometheus.Histogram
	ChatInFlight     prometheus.Gauge
	DiscardedReplies prometheus.Counter

	ViewSubscribers prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfchat_uploads_total",
			Help: "PDF uploads by result",
		}, []string{"result"}),
		CatalogRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfchat_catalog_refreshes_total",
			Help: "Catalog refreshes by result",
		}, []string{"result"}),
		CatalogSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdfchat_catalog_documents",
			Help: "Documents in the last fetched catalog",
		}),
		Selections: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_selections_total",
			Help: "Catalog card selections",
		}),

		Recordings: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_recordings_total",
			Help: "Finished recordings",
		}),
		RecordingFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_recording_failures_total",
			Help: "Recordings that could not start",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfchat_recording_duration_seconds",
			Help:    "Captured audio duration per recording",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		RecordingLimits: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_recording_limits_total",
			Help: "Recordings stopped by the buffer cap",
		}),

		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfchat_chat_turns_total",
			Help: "Chat turns by result",
		}, []string{"result"}),
		ChatLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfchat_chat_latency_seconds",
			Help:    "Round trip time of chat requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ChatInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdfchat_chat_in_flight",
			Help: "Chat requests awaiting a response",
		}),
		DiscardedReplies: f.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_chat_discarded_replies_total",
			Help: "Replies dropped because their conversation was cleared",
		}),

		ViewSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdfchat_view_subscribers",
			Help: "Connected websocket view subscribers",
		}),
	}
}

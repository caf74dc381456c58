// Package observability provides structured logging and Prometheus
// metrics for the pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures logger construction.
type LogConfig struct {
	ServiceName string
	Version     string
	Level       string // debug, info, warn, error
	Format      string // json, console
}

// NewLogger builds the process logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var config zap.Config

	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.InitialFields = map[string]interface{}{
		"service": cfg.ServiceName,
		"version": cfg.Version,
	}

	return config.Build()
}

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	RecordsParsed      *prometheus.CounterVec
	RecordsRejected    prometheus.Counter
	BatchesRejected    prometheus.Counter
	EventsCompiled     prometheus.Counter
	EventsSubmitted    prometheus.Counter
	SubmissionFailures prometheus.Counter
	BatchQualityScore  prometheus.Histogram
	JobsActive         prometheus.Gauge
	RequestsTotal      *prometheus.CounterVec
}

// NewMetrics registers the instruments on the default registry. Call
// once per process.
func NewMetrics() *Metrics {
	namespace := "floodgate"

	return &Metrics{
		RecordsParsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_parsed_total",
				Help:      "Indicator records parsed by input format",
			},
			[]string{"format"},
		),
		RecordsRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_rejected_total",
				Help:      "Records that failed the structural soft check",
			},
		),
		BatchesRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_rejected_total",
				Help:      "Batches rejected by the batch-level hard check",
			},
		),
		EventsCompiled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_compiled_total",
				Help:      "Playbook-compliant events compiled",
			},
		),
		EventsSubmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_submitted_total",
				Help:      "Events accepted by the sharing platform",
			},
		),
		SubmissionFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submission_failures_total",
				Help:      "Submission attempts rejected or unreachable",
			},
		),
		BatchQualityScore: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_quality_score",
				Help:      "Quality score distribution of assessed batches",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		JobsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upload_jobs_active",
				Help:      "Upload jobs currently running",
			},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

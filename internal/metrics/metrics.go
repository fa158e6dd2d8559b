package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cl_engine"

// HTTP metrics, incremented by middleware.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})

	HTTPResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "HTTP response size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100B → 100MB
	}, []string{"method", "path_pattern"})
)

// Ingest counters (incremented directly by the pipeline and watcher).
var (
	MQTTMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_total",
		Help:      "Total MQTT messages received.",
	})

	MQTTHandlerMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_handler_messages_total",
		Help:      "MQTT messages processed per handler.",
	}, []string{"handler"})

	TranscriptsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcripts_ingested_total",
		Help:      "Transcripts persisted, by source.",
	}, []string{"source"})

	WindowsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "windows_created_total",
		Help:      "Transcript windows created by the splitter.",
	})

	WatcherFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watcher_files_total",
		Help:      "Drop-directory files handled, by outcome.",
	}, []string{"outcome"})

	SSEEventsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sse_events_published_total",
		Help:      "Total SSE events published.",
	})

	SSEEventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sse_events_dropped_total",
		Help:      "SSE events dropped on slow subscribers.",
	})
)

// Analysis metrics (incremented by the worker pool).
var (
	AnalysisCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_completed_total",
		Help:      "Window analyses that completed successfully.",
	})

	AnalysisFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_failed_total",
		Help:      "Window analyses that failed, by error class.",
	}, []string{"error_class"})

	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end duration of one window analysis.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})
)

// Scoring metrics (incremented by the score service).
var (
	ScoreAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "score_attempts_total",
		Help:      "Pronunciation attempts processed, by status.",
	}, []string{"status"})

	ScoreOverall = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "score_overall",
		Help:      "Distribution of normalized overall pronunciation scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11), // 0,10,...,100
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPResponseSize,
		MQTTMessagesTotal,
		MQTTHandlerMessagesTotal,
		TranscriptsIngestedTotal,
		WindowsCreatedTotal,
		WatcherFilesTotal,
		SSEEventsPublishedTotal,
		SSEEventsDroppedTotal,
		AnalysisCompletedTotal,
		AnalysisFailedTotal,
		AnalysisDuration,
		ScoreAttemptsTotal,
		ScoreOverall,
	)
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
		HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(sw.written))
	})
}

// statusWriter wraps http.ResponseWriter to capture status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers (e.g. http.Flusher for SSE streaming).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

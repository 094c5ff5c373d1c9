package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starlisten_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	scanStepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlisten_scan_steps_total",
		Help: "Base samples pulled from trajectories by event scans.",
	})

	scanEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_scan_events_total",
			Help: "Events emitted by event scans, by listener kind.",
		},
		[]string{"listener"},
	)

	scanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starlisten_scan_duration_seconds",
		Help:    "Wall time of complete event scans.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	locatorIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starlisten_locator_iterations",
		Help:    "Bisection iterations per located crossing.",
		Buckets: prometheus.LinearBuckets(4, 4, 16),
	})

	locatorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_locator_failures_total",
			Help: "Crossing candidates dropped by the locator, by reason.",
		},
		[]string{"reason"},
	)

	batchScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_batch_scans_total",
			Help: "Per-satellite scans run by the worker pool, by result.",
		},
		[]string{"result"},
	)

	batchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starlisten_batch_duration_seconds",
		Help:    "Wall time of worker pool batches.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	workersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starlisten_workers",
		Help: "Configured worker pool size.",
	})

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starlisten_tle_dataset_age_seconds",
		Help: "Age of the loaded TLE dataset.",
	})

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starlisten_tle_dataset_satellites",
		Help: "Number of satellites in the loaded TLE dataset.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starlisten_streams_active",
		Help: "Open SSE event streams.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_stream_connections_total",
			Help: "SSE connect and disconnect events.",
		},
		[]string{"type"},
	)

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlisten_stream_messages_total",
		Help: "SSE messages written.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlisten_stream_bytes_total",
		Help: "SSE bytes written.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starlisten_stream_errors_total",
			Help: "SSE stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		scanStepsTotal,
		scanEventsTotal,
		scanDurationSeconds,
		locatorIterations,
		locatorFailuresTotal,
		batchScansTotal,
		batchDurationSeconds,
		workersActive,
		tleDatasetAge,
		tleDatasetCount,
		streamsActive,
		streamConnectionsTotal,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AddScanSteps counts base samples pulled by a scan.
func AddScanSteps(n int) { scanStepsTotal.Add(float64(n)) }

// IncScanEvents counts one emitted event for the given listener kind.
func IncScanEvents(listener string) { scanEventsTotal.WithLabelValues(listener).Inc() }

// ObserveScanDuration records the wall time of a finished scan.
func ObserveScanDuration(d time.Duration) { scanDurationSeconds.Observe(d.Seconds()) }

// ObserveLocatorIterations records the bisection count of one located crossing.
func ObserveLocatorIterations(n int) { locatorIterations.Observe(float64(n)) }

// IncLocatorFailures counts a dropped crossing candidate.
func IncLocatorFailures(reason string) { locatorFailuresTotal.WithLabelValues(reason).Inc() }

// RecordBatch records a worker pool batch.
func RecordBatch(d time.Duration, success, failed int) {
	batchDurationSeconds.Observe(d.Seconds())
	batchScansTotal.WithLabelValues("success").Add(float64(success))
	batchScansTotal.WithLabelValues("error").Add(float64(failed))
}

// SetWorkers records the configured worker pool size.
func SetWorkers(n int) { workersActive.Set(float64(n)) }

// SetTLEDatasetAge records the loaded dataset's age.
func SetTLEDatasetAge(seconds float64) { tleDatasetAge.Set(seconds) }

// SetTLEDatasetCount records the loaded dataset's size.
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

func IncStreamsActive() { streamsActive.Inc() }

func DecStreamsActive() { streamsActive.Dec() }

// IncStreamConnections counts "connect" and "disconnect" events.
func IncStreamConnections(kind string) { streamConnectionsTotal.WithLabelValues(kind).Inc() }

func IncStreamMessages() { streamMessagesTotal.Inc() }

func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers keep working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/listeners":    true,
	"/api/v1/tle/metadata": true,
	"/api/v1/tle/fetch":    true,
	"/api/v1/events":       true,
	"/api/v1/runs":         true,
}

var parameterized = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`^/api/v1/events/\d+$`), "/api/v1/events/{norad_id}"},
	{regexp.MustCompile(`^/api/v1/passes/\d+$`), "/api/v1/passes/{norad_id}"},
	{regexp.MustCompile(`^/api/v1/stream/events/\d+$`), "/api/v1/stream/events/{norad_id}"},
	{regexp.MustCompile(`^/api/v1/runs/[0-9a-f-]{36}$`), "/api/v1/runs/{run_id}"},
}

// normalizeRoute maps a request path to a bounded set of labels so that
// per-satellite routes and scanner noise do not blow up cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range parameterized {
		if p.re.MatchString(path) {
			return p.label
		}
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

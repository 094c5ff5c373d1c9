package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starlisten/internal/auth"
	"github.com/star/starlisten/internal/eventlog"
	"github.com/star/starlisten/internal/health"
	"github.com/star/starlisten/internal/httputil"
	"github.com/star/starlisten/internal/metrics"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/stream"
	"github.com/star/starlisten/internal/tle"
)

// Deps are the services the HTTP API is served from.
type Deps struct {
	Store    *tle.Store
	Catalog  *propagation.Catalog
	Fetcher  *tle.Fetcher // nil disables POST /api/v1/tle/fetch
	Cache    *tle.Cache   // may be nil
	Stream   *stream.Handler
	EventLog *eventlog.Log // nil disables recording and /api/v1/runs
	MaxSteps int           // per-request scan step budget
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           newHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = defaultMaxSteps
	}
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return deps.Store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/listeners", listenersHandler)
	mux.HandleFunc("GET /api/v1/tle/metadata", tleMetadataHandler(deps.Store))
	mux.HandleFunc("POST /api/v1/tle/fetch", tleFetchHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/events", eventsBatchHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/events/{norad_id}", eventsSingleHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", passesHandler(deps))
	mux.HandleFunc("GET /api/v1/stream/events/{norad_id}", streamEventsHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/runs", runsHandler(deps))
	mux.HandleFunc("GET /api/v1/runs/{run_id}", runEventsHandler(deps))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streams survive the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, false),
			)
		})
	}
}

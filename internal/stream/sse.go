// Package stream implements Server-Sent Events (SSE) streaming of detected
// events. A client connects via GET /api/v1/stream/events/{norad_id} and
// receives each event as soon as the scan iterator produces it.
//
// SSE message format:
//
//	data: {"type":"event","norad_id":25544,"listener":"node","info":"Asc Node","date":"...",...}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","run_id":"...","norad_id":25544,"driver":"range(...)","listeners":["node"]}\n\n
//
// The last message is "done", carrying the event count and the scan error if
// any. Keep-alive comments (:\n\n) are sent every KeepaliveInterval while a
// long scan has nothing to report.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/starlisten/internal/eventlog"
	"github.com/star/starlisten/internal/httputil"
	"github.com/star/starlisten/internal/metrics"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/scan"
	"golang.org/x/time/rate"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	BandwidthLimit     int           // Bytes per second per stream (default: 1048576, 0 disables).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

// Recorder persists the events of a finished stream.
type Recorder interface {
	Record(ctx context.Context, events []eventlog.Event) error
}

// Scan is a fully resolved event stream request.
type Scan struct {
	RunID      string
	NORADID    int
	Name       string
	FetchedAt  time.Time // TLE dataset fetch time; zero when not from a dataset
	Trajectory orbit.Trajectory
	Listeners  []orbit.Listener
	Driver     scan.Driver
	Options    []scan.Option
}

// Handler manages SSE streaming connections.
type Handler struct {
	config   Config
	limiter  *streamLimiter
	recorder Recorder
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler. recorder may be nil.
func NewHandler(config Config, recorder Recorder, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		recorder: recorder,
		logger:   logger,
	}
}

func (h *Handler) clientIP(r *http.Request) string {
	return httputil.ClientIP(r, h.config.TrustProxy)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ServeScan runs sc and streams its events to the client until the scan
// ends or the client disconnects.
func (h *Handler) ServeScan(w http.ResponseWriter, r *http.Request, sc Scan) {
	// Rate limiting: enforce concurrent stream limit per IP.
	ip := h.clientIP(r)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"run_id", sc.RunID,
		"norad_id", sc.NORADID,
		"driver", sc.Driver.String(),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"run_id", sc.RunID,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection; each
	// write sets its own deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}
	if h.config.BandwidthLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.config.BandwidthLimit), h.config.BandwidthLimit)
	}

	// Jittered retry interval (3-7s) to spread reconnections after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	ctx := r.Context()
	if err := c.sendJSON(ctx, newMetadata(sc)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	opts := append([]scan.Option{scan.WithContext(ctx), scan.WithLogger(h.logger)}, sc.Options...)
	it := scan.New(sc.Trajectory, sc.Listeners, sc.Driver, opts...)

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	var events []eventlog.Event
	for it.Next() {
		s := it.State()
		if s.Event == nil {
			select {
			case <-keepalive.C:
				if err := c.sendKeepalive(ctx); err != nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
					return
				}
			default:
			}
			continue
		}

		ev := eventlog.FromState(sc.RunID, sc.NORADID, s)
		if err := c.sendJSON(ctx, eventMessage{Type: "event", Event: ev}); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
		keepalive.Reset(h.config.KeepaliveInterval)
		events = append(events, ev)
	}

	if ctx.Err() != nil {
		return
	}

	done := doneMessage{Type: "done", RunID: sc.RunID, Events: len(events)}
	if err := it.Err(); err != nil {
		metrics.IncStreamErrors("scan_error")
		h.logger.Warn("stream scan failed", "run_id", sc.RunID, "norad_id", sc.NORADID, "error", err)
		done.Error = err.Error()
	}

	if h.recorder != nil && len(events) > 0 {
		if err := h.recorder.Record(ctx, events); err != nil {
			h.logger.Warn("event log write failed", "run_id", sc.RunID, "error", err)
		}
	}

	if err := c.sendJSON(ctx, done); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (done)", "remote_ip", ip, "error", err)
	}
}

func newMetadata(sc Scan) metadataMessage {
	meta := metadataMessage{
		Type:    "metadata",
		RunID:   sc.RunID,
		NORADID: sc.NORADID,
		Name:    sc.Name,
		Driver:  sc.Driver.String(),
	}
	for _, l := range sc.Listeners {
		meta.Listeners = append(meta.Listeners, scan.ListenerName(l))
	}
	if !sc.FetchedAt.IsZero() {
		meta.DatasetEpoch = sc.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(sc.FetchedAt).Seconds())
	}
	return meta
}

// SSE message payload types.

type metadataMessage struct {
	Type         string   `json:"type"`
	RunID        string   `json:"run_id"`
	NORADID      int      `json:"norad_id"`
	Name         string   `json:"name,omitempty"`
	Driver       string   `json:"driver"`
	Listeners    []string `json:"listeners"`
	DatasetEpoch string   `json:"dataset_epoch,omitempty"`
	TLEAge       int      `json:"tle_age_seconds,omitempty"`
}

type eventMessage struct {
	Type string `json:"type"`
	eventlog.Event
}

type doneMessage struct {
	Type   string `json:"type"`
	RunID  string `json:"run_id"`
	Events int    `json:"events"`
	Error  string `json:"error,omitempty"`
}

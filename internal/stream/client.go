package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/starlisten/internal/metrics"
	"golang.org/x/time/rate"
)

// client manages a single SSE connection's write operations.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger
	limiter *rate.Limiter // bytes per second; nil means unlimited

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v as JSON and sends it as an SSE "data:" message.
// SSE format: "data: {json}\n\n"
func (c *client) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.write(ctx, fmt.Sprintf("data: %s\n\n", data), true)
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
// SSE comment format: ":\n\n"
func (c *client) sendKeepalive(ctx context.Context) error {
	return c.write(ctx, ":\n\n", false)
}

func (c *client) write(ctx context.Context, msg string, counted bool) error {
	if err := c.throttle(ctx, len(msg)); err != nil {
		return err
	}

	// Extend write deadline before each write to prevent timeout on long-lived connections.
	if err := c.rc.SetWriteDeadline(time.Now().Add(30 * time.Second)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, msg)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()

	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	if counted {
		c.messagesSent++
		metrics.IncStreamMessages()
	}
	return nil
}

// throttle waits until n bytes fit the stream's bandwidth budget. Messages
// larger than the burst are let through once the bucket is full.
func (c *client) throttle(ctx context.Context, n int) error {
	if c.limiter == nil {
		return nil
	}
	if b := c.limiter.Burst(); n > b {
		n = b
	}
	if err := c.limiter.WaitN(ctx, n); err != nil {
		return fmt.Errorf("bandwidth wait: %w", err)
	}
	return nil
}

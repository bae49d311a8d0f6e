package http

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/devopsd/internal/http"

// HTTPMetrics records request and workflow submission metrics.
type HTTPMetrics struct {
	logger       *logging.Logger
	requests     metric.Int64Counter
	latency      metric.Float64Histogram
	inFlight     metric.Int64UpDownCounter
	workflowRuns metric.Int64Counter
}

// NewHTTPMetrics creates instruments on meter, typically from
// telemetry.Telemetry.Meter.
func NewHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &HTTPMetrics{logger: logger}
	ctx := context.Background()

	var err error
	if m.requests, err = meter.Int64Counter("devopsd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	// Workflow POSTs run every phase synchronously, so buckets reach minutes.
	if m.latency, err = meter.Float64Histogram("devopsd.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status class"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300),
	); err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	if m.inFlight, err = meter.Int64UpDownCounter("devopsd.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}

	if m.workflowRuns, err = meter.Int64Counter("devopsd.http.workflow_runs_total",
		metric.WithDescription("Workflows submitted over HTTP by mode (full or phase) and final status"),
		metric.WithUnit("{run}"),
	); err != nil {
		logger.Warn(ctx, "failed to create workflow runs counter", zap.Error(err))
	}

	return m
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
			}

			err := next(c)

			if m.inFlight != nil {
				m.inFlight.Add(ctx, -1)
			}

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", normalizePath(c.Path())),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// RecordWorkflow counts a workflow run served by the API.
func (m *HTTPMetrics) RecordWorkflow(ctx context.Context, phase string, status orchestrator.Status) {
	if m == nil || m.workflowRuns == nil {
		return
	}
	mode := "full"
	if phase != "" {
		mode = "phase"
	}
	m.workflowRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", string(status)),
	))
}

// normalizePath maps unmatched routes to "/". Matched routes are already
// reported as their pattern (e.g. /api/v1/workflows/:id) by echo.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

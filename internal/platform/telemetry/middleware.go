package telemetry

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotebot/internal/platform/logging"
)

const instrumentationName = "github.com/jsamuelsen/quotebot/telemetry"

type httpMetrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	active   metric.Int64UpDownCounter
}

func newHTTPMetrics() (*httpMetrics, error) {
	meter := otel.Meter(instrumentationName)

	duration, errD := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Admin API request duration"), metric.WithUnit("s"))
	total, errT := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Admin API requests served"))
	active, errA := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Admin API requests in flight"))

	if err := errors.Join(errD, errT, errA); err != nil {
		return nil, err
	}

	return &httpMetrics{duration: duration, total: total, active: active}, nil
}

// Middleware records request metrics. When TracingMiddleware has started a
// span, its trace ID goes out in X-Trace-ID, into the gin context under
// "trace_id" and onto the request logger.
func Middleware(serviceName string) gin.HandlerFunc {
	m, err := newHTTPMetrics()
	if err != nil {
		otel.Handle(err)
	}

	service := attribute.String("service.name", serviceName)

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
			id := sc.TraceID().String()
			c.Header("X-Trace-ID", id)
			c.Set("trace_id", id)
			c.Request = c.Request.WithContext(logging.WithTraceID(ctx, id))
		}

		if m == nil {
			c.Next()
			return
		}

		route := []attribute.KeyValue{
			service,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		}

		m.active.Add(ctx, 1, metric.WithAttributes(route...))
		c.Next()
		m.active.Add(ctx, -1, metric.WithAttributes(route...))

		done := metric.WithAttributes(append(route, attribute.Int("http.status_code", c.Writer.Status()))...)
		m.duration.Record(ctx, time.Since(start).Seconds(), done)
		m.total.Add(ctx, 1, done)
	}
}

// TracingMiddleware starts a server span per request. It must run before
// Middleware.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

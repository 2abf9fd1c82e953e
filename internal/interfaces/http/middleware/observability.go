package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestTracer continues and annotates request traces; *monitoring.TracingManager satisfies it.
type RequestTracer interface {
	ExtractTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue)
	RecordError(ctx context.Context, err error)
}

// HTTPRecorder records one served request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Observability returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// For each HTTP request it continues the caller's trace, starts a server span, and records
// the request total and duration labeled by method, route template and status code.
// Observability 返回集成 Prometheus 指标和 OpenTelemetry 追踪的 Gin 中间件。
func Observability(tracer RequestTracer, recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := tracer.ExtractTraceContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.StartSpan(ctx, c.Request.Method+" "+c.FullPath(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		// Route template keeps label cardinality low.
		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}
		status := c.Writer.Status()
		recorder.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))

		tracer.SetSpanAttributes(ctx,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", path),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			err := c.Errors.Last()
			if err == nil {
				tracer.RecordError(ctx, fmt.Errorf("http status %d", status))
			} else {
				tracer.RecordError(ctx, err)
			}
		}
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/apikeyd/internal/infrastructure/monitoring"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/logger"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var fromGin, fromCtx string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		fromGin = GetRequestID(c)
		fromCtx, _ = c.Request.Context().Value(constants.ContextKeyRequestID).(string)
		c.Status(http.StatusNoContent)
	})

	t.Run("caller id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(constants.HeaderRequestID, "req_1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req_1", w.Header().Get(constants.HeaderRequestID))
		assert.Equal(t, "req_1", fromGin)
		assert.Equal(t, "req_1", fromCtx)
	})

	t.Run("missing or oversized ids are replaced", func(t *testing.T) {
		for _, id := range []string{"", strings.Repeat("x", maxRequestIDLength+1)} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(constants.HeaderRequestID, id)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(constants.HeaderRequestID)
			assert.Len(t, got, 36)
			assert.Equal(t, got, fromCtx)
		}
	})
}

func TestObservability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Observability(monitoring.NewNoopTracingManager(), metrics))
	r.Use(AccessLog(logger.NewNoopLogger()))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2, testutil.CollectAndCount(metrics.HTTPRequests))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "not_found", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.HTTPDuration))
}

type recordingTracer struct {
	traceparent string
	attrs       map[attribute.Key]attribute.Value
	errs        []error
}

func (r *recordingTracer) ExtractTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	r.traceparent = carrier.Get("traceparent")
	return ctx
}

func (r *recordingTracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return noop.NewTracerProvider().Tracer("test").Start(ctx, spanName, opts...)
}

func (r *recordingTracer) SetSpanAttributes(_ context.Context, attrs ...attribute.KeyValue) {
	for _, kv := range attrs {
		r.attrs[kv.Key] = kv.Value
	}
}

func (r *recordingTracer) RecordError(_ context.Context, err error) {
	r.errs = append(r.errs, err)
}

func TestObservability_Tracing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	serve := func(tracer *recordingTracer, path string) {
		r := gin.New()
		r.Use(Observability(tracer, monitoring.NewMetrics(prometheus.NewRegistry())))
		r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/boom", func(c *gin.Context) {
			_ = c.Error(errors.New("database unreachable"))
			c.Status(http.StatusInternalServerError)
		})
		r.GET("/bare", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("traceparent", traceparent)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	t.Run("continues the caller trace and annotates the span", func(t *testing.T) {
		tracer := &recordingTracer{attrs: map[attribute.Key]attribute.Value{}}
		serve(tracer, "/ok")

		assert.Equal(t, traceparent, tracer.traceparent)
		assert.Equal(t, "/ok", tracer.attrs["http.route"].AsString())
		assert.Equal(t, int64(200), tracer.attrs["http.status_code"].AsInt64())
		assert.Empty(t, tracer.errs)
	})

	t.Run("server errors are recorded on the span", func(t *testing.T) {
		tracer := &recordingTracer{attrs: map[attribute.Key]attribute.Value{}}
		serve(tracer, "/boom")

		require.Len(t, tracer.errs, 1)
		assert.Contains(t, tracer.errs[0].Error(), "database unreachable")
	})

	t.Run("server errors without a handler error use the status", func(t *testing.T) {
		tracer := &recordingTracer{attrs: map[attribute.Key]attribute.Value{}}
		serve(tracer, "/bare")

		require.Len(t, tracer.errs, 1)
		assert.Equal(t, "http status 502", tracer.errs[0].Error())
	})
}

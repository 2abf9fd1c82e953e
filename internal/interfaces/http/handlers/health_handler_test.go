package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apikeyd/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveHealth(h *HealthHandler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health/live", h.LivenessCheck)
	r.GET("/health/ready", h.ReadinessCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return assert.AnError })

	t.Run("live", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": down}, time.Second, logger.NewNoopLogger())
		w := serveHealth(h, "/health/live")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready when every dependency answers", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": ok, "redis": ok, "skipped": nil}, time.Second, logger.NewNoopLogger())
		w := serveHealth(h, "/health/ready")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, body.Checks)
	})

	t.Run("not ready when one dependency fails", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": ok, "redis": down}, time.Second, logger.NewNoopLogger())
		w := serveHealth(h, "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body struct {
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Checks["database"])
		assert.Contains(t, body.Checks["redis"], "error: ")
	})

	t.Run("a hung dependency is cut off by the timeout", func(t *testing.T) {
		hung := pingFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		h := NewHealthHandler(map[string]Pinger{"redis": hung}, 20*time.Millisecond, logger.NewNoopLogger())
		w := serveHealth(h, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

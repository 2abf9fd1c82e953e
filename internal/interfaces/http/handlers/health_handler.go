package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/apikeyd/pkg/logger"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler. deps maps a check name to the
// dependency it pings; nil entries are skipped.
func NewHealthHandler(deps map[string]Pinger, timeout time.Duration, log logger.Logger) *HealthHandler {
	checked := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			checked[name] = p
		}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{
		deps:    checked,
		timeout: timeout,
		log:     log.WithComponent("HealthHandler"),
	}
}

// LivenessCheck reports that the process is serving requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck pings every dependency concurrently and returns 503 when any fails.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	checks := h.performChecks(c.Request.Context())

	status, httpStatus := "ready", http.StatusOK
	for _, s := range checks {
		if s != "ok" {
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var mu sync.Mutex
	checks := make(map[string]string, len(h.deps))

	// Each check records its own status and never returns an error.
	var g errgroup.Group
	for name, p := range h.deps {
		g.Go(func() error {
			status := "ok"
			if err := p.Ping(ctx); err != nil {
				status = "error: " + err.Error()
				h.log.Warn(ctx, "Readiness check failed", logger.String("check", name), logger.Error(err))
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

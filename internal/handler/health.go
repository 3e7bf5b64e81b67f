package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckFunc reports whether a dependency is reachable
type CheckFunc func(ctx context.Context) error

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler that runs checks on every request
func NewHealthHandler(checks map[string]CheckFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// GetHealth reports service health and the state of each dependency
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Error("health check failed: dependency unreachable",
				zap.String("dependency", name),
				zap.Error(err),
			)
			deps[name] = "disconnected"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "connected"
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       health,
		"dependencies": deps,
		"service":      "rxtag",
	})
}

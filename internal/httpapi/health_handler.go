package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/fahdr/ecomm-sub005/internal/utils"
)

const healthTimeout = 3 * time.Second

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

// HealthHandler handles GET /health
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *utils.Logger
}

// NewHealthHandler creates a health handler over named checks
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: utils.NewLogger("health"),
	}
}

// Health runs every check; any failure turns the response into a 503
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", "component", name, "error", err)
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	utils.RespondWithJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

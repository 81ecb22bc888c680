package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ChainChecker is the chain manager as seen by the health endpoint.
type ChainChecker interface {
	Health(ctx context.Context) bool
	State() domain.ConnectionState
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	chain  ChainChecker
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(chain ChainChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{chain: chain, logger: logHandler(logger, "health")}
}

// HealthCheck checks the active endpoint once. It answers 503 when the check
// fails so load balancers can take the instance out of rotation.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.chain.Health(ctx)
	state := h.chain.State()

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
		h.logger.WarnContext(ctx, "health check failed", slog.String("endpoint", state.ActiveURL))
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"connection": state,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

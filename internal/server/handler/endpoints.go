package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// EndpointSwitcher is the chain manager as seen by the endpoint routes.
type EndpointSwitcher interface {
	Endpoints() []domain.EndpointStatus
	SwitchEndpoint(ctx context.Context, index int) error
	NetworkInfo(ctx context.Context) (domain.NetworkInfo, error)
}

// EndpointHandler lists and switches RPC endpoints.
type EndpointHandler struct {
	chain  EndpointSwitcher
	logger *slog.Logger
}

// NewEndpointHandler creates an EndpointHandler.
func NewEndpointHandler(chain EndpointSwitcher, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{chain: chain, logger: logHandler(logger, "endpoints")}
}

// ListEndpoints responds with every configured endpoint and which is active.
// GET /api/endpoints
func (h *EndpointHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chain.Endpoints())
}

// SwitchEndpoint makes the endpoint at {index} active.
// POST /api/endpoints/{index}
func (h *EndpointHandler) SwitchEndpoint(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	if err := h.chain.SwitchEndpoint(r.Context(), index); err != nil {
		switch {
		case errors.Is(err, domain.ErrEndpointIndex):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "endpoint switch did not complete")
		default:
			h.logger.ErrorContext(r.Context(), "switch endpoint failed",
				slog.Int("index", index),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "endpoint switch failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, h.chain.Endpoints())
}

// GetNetwork responds with chain id, block height and gas price from the
// active endpoint.
// GET /api/network
func (h *EndpointHandler) GetNetwork(w http.ResponseWriter, r *http.Request) {
	info, err := h.chain.NetworkInfo(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "network info failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "chain endpoint unreachable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

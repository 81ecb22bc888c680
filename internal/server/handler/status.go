package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StatusSource produces status snapshots.
type StatusSource interface {
	Snapshot() domain.StatusSnapshot
}

// StatusHandler serves the status snapshot and the dispatch history.
type StatusHandler struct {
	status     StatusSource
	dispatches domain.DispatchStore
	logger     *slog.Logger
}

// NewStatusHandler creates a StatusHandler. dispatches may be nil when no
// database is configured.
func NewStatusHandler(status StatusSource, dispatches domain.DispatchStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{status: status, dispatches: dispatches, logger: logHandler(logger, "status")}
}

// GetStatus responds with the current status snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// ListDispatches responds with recent dispatch records.
// GET /api/dispatches?limit=50&offset=0
func (h *StatusHandler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	if h.dispatches == nil {
		writeError(w, http.StatusNotImplemented, "dispatch history requires a database")
		return
	}
	recs, err := h.dispatches.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list dispatches failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}
	if recs == nil {
		recs = []domain.DispatchRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

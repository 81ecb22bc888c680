package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// CadenceSwitch selects the scan cadence.
type CadenceSwitch interface {
	SetAccelerated(on bool) bool
	Cadence() domain.Cadence
}

// ModeHandler switches between the normal and accelerated scan cadence.
type ModeHandler struct {
	cadence  CadenceSwitch
	onChange func()
	logger   *slog.Logger
}

// NewModeHandler creates a ModeHandler. onChange, if non-nil, runs after
// every effective cadence change.
func NewModeHandler(cadence CadenceSwitch, onChange func(), logger *slog.Logger) *ModeHandler {
	return &ModeHandler{cadence: cadence, onChange: onChange, logger: logHandler(logger, "mode")}
}

type modeRequest struct {
	Cadence domain.Cadence `json:"cadence"`
}

// SetMode selects the cadence named in the body.
// POST /api/mode {"cadence":"accelerated"}
func (h *ModeHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var on bool
	switch req.Cadence {
	case domain.CadenceAccelerated:
		on = true
	case domain.CadenceNormal:
	default:
		writeError(w, http.StatusBadRequest, `cadence must be "normal" or "accelerated"`)
		return
	}

	prev := h.cadence.SetAccelerated(on)
	if prev != on {
		h.logger.InfoContext(r.Context(), "scan cadence changed", slog.String("cadence", string(req.Cadence)))
		if h.onChange != nil {
			h.onChange()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cadence": h.cadence.Cadence()})
}

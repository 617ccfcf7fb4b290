package api

import (
	"net/http"

	"github.com/finsight/analysis-orchestrator/internal/api/shared"
	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/scaling"
)

// ScalingReader exposes the auto-scaler's state. Implemented by
// scaling.Manager.
type ScalingReader interface {
	GetStatus() scaling.Status
	Events() []domain.ScalingEvent
}

// ScalingHandler handles auto-scaling HTTP requests.
type ScalingHandler struct {
	reader ScalingReader
}

// NewScalingHandler creates a new ScalingHandler.
func NewScalingHandler(reader ScalingReader) *ScalingHandler {
	return &ScalingHandler{reader: reader}
}

// GetStatus handles GET /api/scaling/status requests.
func (h *ScalingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.reader.GetStatus())
}

// GetEvents handles GET /api/scaling/events requests, returning the
// append-only scaling action log.
func (h *ScalingHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.reader.Events())
}

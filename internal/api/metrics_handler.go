package api

import (
	"net/http"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/api/shared"
	"github.com/finsight/analysis-orchestrator/internal/domain"
)

// PerformanceReader exposes the collector's summaries. Implemented by
// metrics.Collector.
type PerformanceReader interface {
	GetSummary() domain.PerformanceSummary
	GetRecentMetrics(window time.Duration) domain.PerformanceSummary
}

// MetricsHandler handles performance metrics HTTP requests.
type MetricsHandler struct {
	reader PerformanceReader
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(reader PerformanceReader) *MetricsHandler {
	return &MetricsHandler{reader: reader}
}

// GetSummary handles GET /api/metrics/summary requests. An optional
// window query parameter (Go duration syntax) restricts the summary to
// recent executions.
func (h *MetricsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid window duration")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, h.reader.GetRecentMetrics(window))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, h.reader.GetSummary())
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/finsight/analysis-orchestrator/internal/scaling"
)

// mockScalingReader returns canned scaler state.
type mockScalingReader struct {
	status scaling.Status
	events []domain.ScalingEvent
}

func (m *mockScalingReader) GetStatus() scaling.Status     { return m.status }
func (m *mockScalingReader) Events() []domain.ScalingEvent { return m.events }

func TestGetScalingStatus(t *testing.T) {
	reader := &mockScalingReader{
		status: scaling.Status{
			CurrentSize:       4,
			ScaleUpCooldown:   10 * time.Second,
			ConsecutiveUpHits: 2,
		},
	}
	handler := NewScalingHandler(reader)

	req := httptest.NewRequest(http.MethodGet, "/api/scaling/status", nil)
	rec := httptest.NewRecorder()
	handler.GetStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp scaling.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.CurrentSize)
	assert.Equal(t, 10*time.Second, resp.ScaleUpCooldown)
	assert.Equal(t, 2, resp.ConsecutiveUpHits)
}

func TestGetScalingEvents(t *testing.T) {
	reader := &mockScalingReader{
		events: []domain.ScalingEvent{
			{
				Timestamp: time.Now().UTC(),
				Direction: domain.ScaleUp,
				OldSize:   2,
				NewSize:   4,
				Reason:    "utilization 0.90 above threshold 0.80",
			},
		},
	}
	handler := NewScalingHandler(reader)

	req := httptest.NewRequest(http.MethodGet, "/api/scaling/events", nil)
	rec := httptest.NewRecorder()
	handler.GetEvents(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp []domain.ScalingEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, domain.ScaleUp, resp[0].Direction)
	assert.Equal(t, 4, resp[0].NewSize)
}

func TestGetScalingEventsEmpty(t *testing.T) {
	handler := NewScalingHandler(&mockScalingReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/scaling/events", nil)
	rec := httptest.NewRecorder()
	handler.GetEvents(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeAnalysisRequested is emitted when a client asks for a new
// analysis job.
const EventTypeAnalysisRequested = "analysis_requested"

// AnalysisRequestEvent represents a request to schedule an analysis job.
// It carries the necessary information for job creation without direct
// dependencies on the queue package.
type AnalysisRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates what kind of request this is
	Type string `json:"type"`

	// Payload contains the request-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisRequestPayload is the payload carried by an analysis request
// event. The job itself is already persisted; the payload only identifies it.
type AnalysisRequestPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *AnalysisRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewAnalysisRequestEvent creates a new AnalysisRequestEvent with the
// specified type and payload.
func NewAnalysisRequestEvent(eventType string, payload interface{}) (*AnalysisRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &AnalysisRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *AnalysisRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the API surface to publish requests without direct knowledge
// of the queue behind them.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *AnalysisRequestEvent) error
}

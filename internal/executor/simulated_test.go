package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimulatedExecuteSucceeds(t *testing.T) {
	exec := NewSimulated(testLogger(), 0, 0, 0)

	resultID, err := exec.Execute(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)

	_, err = uuid.Parse(resultID)
	assert.NoError(t, err, "result id must be a uuid")
}

func TestSimulatedExecuteAlwaysFails(t *testing.T) {
	exec := NewSimulated(testLogger(), 0, 0, 1)

	_, err := exec.Execute(context.Background(), "AAPL", "2026-08-28")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "AAPL")
}

func TestSimulatedExecuteRespectsContext(t *testing.T) {
	exec := NewSimulated(testLogger(), time.Hour, time.Hour, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Execute(ctx, "AAPL", "2026-08-28")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewSimulatedClampsInputs(t *testing.T) {
	exec := NewSimulated(testLogger(), -time.Second, -2*time.Second, 1.5)
	assert.Equal(t, time.Duration(0), exec.minLatency)
	assert.Equal(t, time.Duration(0), exec.maxLatency)
	assert.Equal(t, 1.0, exec.failureRate)

	// A rate above 1 always fails.
	_, err := exec.Execute(context.Background(), "AAPL", "2026-08-28")
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

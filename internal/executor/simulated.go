package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulated is a local AnalysisExecutor used when no Gemini API key is
// configured. It sleeps for a short randomized latency and fails a
// configurable fraction of executions, which makes the retry and scaling
// paths observable without a real model behind them.
type Simulated struct {
	logger      *slog.Logger
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated executor. failureRate is clamped to [0, 1].
func NewSimulated(logger *slog.Logger, minLatency, maxLatency time.Duration, failureRate float64) *Simulated {
	if minLatency < 0 {
		minLatency = 0
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	if failureRate < 0 {
		failureRate = 0
	}
	if failureRate > 1 {
		failureRate = 1
	}

	return &Simulated{
		logger:      logger.With("component", "simulated_executor"),
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute sleeps for the sampled latency and then either fails or returns a
// fresh result ID.
func (s *Simulated) Execute(ctx context.Context, ticker, tradeDate string) (string, error) {
	s.mu.Lock()
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span)))
	}
	fail := s.rng.Float64() < s.failureRate
	s.mu.Unlock()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
	}

	if fail {
		return "", fmt.Errorf("%w: simulated failure for %s on %s", ErrExecutionFailed, ticker, tradeDate)
	}

	resultID := uuid.New().String()
	s.logger.DebugContext(ctx, "simulated analysis complete",
		"ticker", ticker,
		"trade_date", tradeDate,
		"result_id", resultID)
	return resultID, nil
}

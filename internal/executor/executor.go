// Package executor defines the boundary between the orchestration core and
// whatever actually performs an analysis. The queue and worker pool only see
// this interface; production wires the Gemini-backed implementation from
// internal/platform/gemini.
package executor

import "context"

// AnalysisExecutor performs a single analysis for a ticker on a trade date.
// Implementations return an opaque result identifier on success.
type AnalysisExecutor interface {
	// Execute runs the analysis. The returned result ID is recorded on the
	// job; the error classifies the failure via the sentinels below.
	Execute(ctx context.Context, ticker, tradeDate string) (string, error)
}

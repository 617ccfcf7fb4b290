// Package gemini implements the executor.AnalysisExecutor interface using
// Google's Gemini API. Transient API failures are retried in place with
// exponential backoff; permanent failures (safety blocks, unusable responses)
// are surfaced immediately so the job-level retry scheduler can decide.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"text/template"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/finsight/analysis-orchestrator/internal/config"
	"github.com/finsight/analysis-orchestrator/internal/executor"
)

// defaultPromptTemplate asks the model for a structured trading-day analysis.
const defaultPromptTemplate = `You are a financial analyst. Produce a concise post-trade analysis
for ticker {{.Ticker}} covering the trading session on {{.TradeDate}}.
Cover: price action context, notable volume characteristics, and one
actionable observation. Keep it under 300 words.`

type promptData struct {
	Ticker    string
	TradeDate string
}

// Executor calls the Gemini API to produce an analysis report.
type Executor struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template
	client         *genai.Client
	model          string
}

// NewExecutor creates a Gemini-backed executor.
func NewExecutor(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", executor.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", executor.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("analysis").Parse(defaultPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", executor.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", executor.ErrInvalidConfig, err)
	}

	return &Executor{
		logger:         logger.With("component", "gemini_executor"),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Execute prompts the model and returns an opaque result identifier.
func (e *Executor) Execute(ctx context.Context, ticker, tradeDate string) (string, error) {
	if ticker == "" || tradeDate == "" {
		return "", fmt.Errorf("%w: ticker and trade date are required", executor.ErrInvalidConfig)
	}

	prompt, err := e.buildPrompt(ticker, tradeDate)
	if err != nil {
		return "", err
	}

	report, err := e.callWithRetry(ctx, prompt)
	if err != nil {
		return "", err
	}

	resultID := uuid.New().String()
	e.logger.InfoContext(ctx, "analysis generated",
		"ticker", ticker,
		"trade_date", tradeDate,
		"result_id", resultID,
		"report_length", len(report))

	return resultID, nil
}

func (e *Executor) buildPrompt(ticker, tradeDate string) (string, error) {
	var buf bytes.Buffer
	if err := e.promptTemplate.Execute(&buf, promptData{Ticker: ticker, TradeDate: tradeDate}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// callWithRetry calls the Gemini API with exponential backoff and jitter for
// transient errors. Permanent errors return immediately.
func (e *Executor) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := e.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := e.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		e.logger.DebugContext(ctx, "calling Gemini API",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		report, transient, err := e.callOnce(ctx, prompt)
		if err == nil {
			return report, nil
		}

		e.logger.WarnContext(ctx, "Gemini API call failed",
			"attempt", attempt+1,
			"transient", transient,
			"error", err)

		if !transient {
			return "", err
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				executor.ErrTransientFailure, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoffSeconds * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", executor.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs one API call and classifies the outcome. The second
// return value reports whether the error is worth retrying in place.
func (e *Executor) callOnce(ctx context.Context, prompt string) (string, bool, error) {
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), nil)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", executor.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no content generated", executor.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", false, executor.ErrContentBlocked
	}

	text := resp.Text()
	if text == "" {
		return "", false, fmt.Errorf("%w: empty response text", executor.ErrInvalidResponse)
	}
	return text, false, nil
}

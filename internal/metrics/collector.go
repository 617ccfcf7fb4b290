// Package metrics produces a continuous, bounded-memory picture of queue
// and worker health. A sampling loop publishes point-in-time samples to
// subscribers (the auto-scaler among them) while a rolling history of
// per-job execution records backs the aggregate summary.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// QueueObserver exposes the queue state the sampler reads. Implemented by
// queue.Manager.
type QueueObserver interface {
	QueueLength() int
	RunningCount() int
	MaxConcurrent() int
}

// Config holds configuration for the metrics collector.
type Config struct {
	// SampleInterval is the sampling loop period.
	SampleInterval time.Duration

	// HistoryCapacity bounds the rolling execution history; the oldest
	// record is evicted first.
	HistoryCapacity int

	// ThroughputWindow is the sliding window used for peak throughput.
	ThroughputWindow time.Duration

	// SuccessRateAlertThreshold is the success rate below which the alert
	// level is high.
	SuccessRateAlertThreshold float64

	// QueueAlertThreshold is the queue length above which the alert level
	// is high.
	QueueAlertThreshold int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		SampleInterval:            time.Second,
		HistoryCapacity:           500,
		ThroughputWindow:          10 * time.Second,
		SuccessRateAlertThreshold: 0.5,
		QueueAlertThreshold:       20,
	}
}

// Collector samples system health on a fixed interval and keeps the rolling
// execution history. Start and Stop are idempotent; recording methods are
// safe to call whether or not the sampling loop is running.
type Collector struct {
	observer QueueObserver
	config   Config
	logger   *slog.Logger

	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	loopMu   sync.Mutex // guards stopCh swaps across Start/Stop pairs
	subsMu   sync.Mutex
	subs     []chan domain.PerformanceMetrics

	mu      sync.Mutex
	starts  map[uuid.UUID]time.Time
	history []domain.TaskExecutionMetric
}

// NewCollector creates a metrics collector observing the given queue.
func NewCollector(observer QueueObserver, config Config, logger *slog.Logger) *Collector {
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultConfig().SampleInterval
	}
	if config.HistoryCapacity <= 0 {
		config.HistoryCapacity = DefaultConfig().HistoryCapacity
	}
	if config.ThroughputWindow <= 0 {
		config.ThroughputWindow = DefaultConfig().ThroughputWindow
	}

	return &Collector{
		observer: observer,
		config:   config,
		logger:   logger.With("component", "metrics_collector"),
		starts:   make(map[uuid.UUID]time.Time),
		history:  make([]domain.TaskExecutionMetric, 0, config.HistoryCapacity),
	}
}

// Start launches the periodic sampling loop. Calling Start on a running
// collector is a no-op.
func (c *Collector) Start() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		return
	}

	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.sampleLoop(c.stopCh)

	c.logger.Info("metrics collector started", "interval", c.config.SampleInterval)
}

// Stop halts the sampling loop. Calling Stop on a stopped collector is a
// no-op.
func (c *Collector) Stop() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if !c.running.CompareAndSwap(true, false) {
		return
	}

	close(c.stopCh)
	c.wg.Wait()

	c.logger.Info("metrics collector stopped")
}

// Subscribe returns a channel receiving every emitted sample. Slow
// subscribers lose samples rather than blocking the loop.
func (c *Collector) Subscribe() <-chan domain.PerformanceMetrics {
	ch := make(chan domain.PerformanceMetrics, 16)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// RecordTaskStart notes that the job began executing.
func (c *Collector) RecordTaskStart(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts[id] = time.Now().UTC()
}

// RecordTaskComplete records a successful execution. A completion with no
// prior start record is tolerated: it is logged and recorded with the
// duration the caller supplied.
func (c *Collector) RecordTaskComplete(id uuid.UUID, duration time.Duration) {
	c.record(id, duration, true, "")
}

// RecordTaskFailed records a failed execution.
func (c *Collector) RecordTaskFailed(id uuid.UUID, errorMessage string) {
	c.record(id, 0, false, errorMessage)
}

func (c *Collector) record(id uuid.UUID, duration time.Duration, succeeded bool, errMsg string) {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if started, ok := c.starts[id]; ok {
		delete(c.starts, id)
		if duration == 0 {
			duration = now.Sub(started)
		}
	} else {
		c.logger.Warn("execution record without matching start",
			"job_id", id, "succeeded", succeeded)
	}

	metric := domain.TaskExecutionMetric{
		JobID:      id,
		Duration:   duration,
		Succeeded:  succeeded,
		Error:      errMsg,
		FinishedAt: now,
	}

	if len(c.history) >= c.config.HistoryCapacity {
		c.history = c.history[1:]
	}
	c.history = append(c.history, metric)
}

// GetSummary aggregates the full rolling history.
func (c *Collector) GetSummary() domain.PerformanceSummary {
	c.mu.Lock()
	history := make([]domain.TaskExecutionMetric, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	return c.summarize(history)
}

// GetRecentMetrics aggregates only history entries inside the given window.
// An empty window yields a zero-valued summary, not an error.
func (c *Collector) GetRecentMetrics(window time.Duration) domain.PerformanceSummary {
	cutoff := time.Now().UTC().Add(-window)

	c.mu.Lock()
	var recent []domain.TaskExecutionMetric
	for _, m := range c.history {
		if !m.FinishedAt.Before(cutoff) {
			recent = append(recent, m)
		}
	}
	c.mu.Unlock()

	return c.summarize(recent)
}

// summarize computes the aggregate view over the given execution records.
func (c *Collector) summarize(history []domain.TaskExecutionMetric) domain.PerformanceSummary {
	summary := domain.PerformanceSummary{
		SampleCount: len(history),
		AlertLevel:  domain.AlertLevelLow,
	}
	if len(history) == 0 {
		return summary
	}

	succeeded := 0
	var total time.Duration
	for _, m := range history {
		if m.Succeeded {
			succeeded++
		}
		total += m.Duration
	}
	summary.SuccessRate = float64(succeeded) / float64(len(history))
	summary.AverageDuration = total / time.Duration(len(history))
	summary.PeakThroughput = peakThroughput(history, c.config.ThroughputWindow)
	summary.AlertLevel = c.alertLevel(summary.SuccessRate)

	return summary
}

// alertLevel grades health from the success rate and current queue depth.
func (c *Collector) alertLevel(successRate float64) domain.AlertLevel {
	queueLen := 0
	if c.observer != nil {
		queueLen = c.observer.QueueLength()
	}

	switch {
	case successRate < c.config.SuccessRateAlertThreshold ||
		queueLen > c.config.QueueAlertThreshold:
		return domain.AlertLevelHigh
	case successRate < c.config.SuccessRateAlertThreshold+0.25 ||
		queueLen > c.config.QueueAlertThreshold/2:
		return domain.AlertLevelMedium
	default:
		return domain.AlertLevelLow
	}
}

// peakThroughput finds the largest number of completions inside any sliding
// window of the given size and converts it to a per-second rate.
func peakThroughput(history []domain.TaskExecutionMetric, window time.Duration) float64 {
	if len(history) == 0 || window <= 0 {
		return 0
	}

	times := make([]time.Time, len(history))
	for i, m := range history {
		times[i] = m.FinishedAt
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })

	peak := 0
	lo := 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > window {
			lo++
		}
		if count := hi - lo + 1; count > peak {
			peak = count
		}
	}

	return float64(peak) / window.Seconds()
}

// sampleLoop emits one PerformanceMetrics sample per interval until stopped.
func (c *Collector) sampleLoop(stopCh chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.broadcast(c.sample())
		}
	}
}

// sample builds one point-in-time health sample. Host probe failures are
// logged and yield zero estimates rather than aborting the loop.
func (c *Collector) sample() domain.PerformanceMetrics {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.SampleInterval)
	defer cancel()

	sample := domain.PerformanceMetrics{
		Timestamp: time.Now().UTC(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		c.logger.Warn("cpu sample failed", "error", err)
	} else if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Warn("memory sample failed", "error", err)
	} else {
		sample.MemoryPercent = vm.UsedPercent
	}

	if c.observer != nil {
		sample.QueueLength = c.observer.QueueLength()
		sample.RunningCount = c.observer.RunningCount()
		sample.WorkerCount = c.observer.MaxConcurrent()
	}
	sample.SuccessRate = c.GetSummary().SuccessRate

	return sample
}

// broadcast delivers the sample to every subscriber without blocking.
func (c *Collector) broadcast(sample domain.PerformanceMetrics) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- sample:
		default:
			c.logger.Debug("dropping sample for slow subscriber")
		}
	}
}

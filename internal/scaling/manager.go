// Package scaling adjusts the queue manager's concurrency ceiling from the
// live metrics stream: sustained load grows the pool, sustained idleness
// shrinks it, and consecutive-hit counters plus cooldowns keep it from
// oscillating on noisy samples.
package scaling

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finsight/analysis-orchestrator/internal/domain"
)

// Pool is the resource being scaled. Implemented by queue.Manager; the
// scaler is the only writer of the concurrency ceiling.
type Pool interface {
	MaxConcurrent() int
	SetMaxConcurrent(n int)
}

// Status is the read-only view returned by GetStatus.
type Status struct {
	CurrentSize         int                  `json:"current_size"`
	LastEvent           *domain.ScalingEvent `json:"last_event,omitempty"`
	ScaleUpCooldown     time.Duration        `json:"scale_up_cooldown_remaining"`
	ScaleDownCooldown   time.Duration        `json:"scale_down_cooldown_remaining"`
	ConsecutiveUpHits   int                  `json:"consecutive_up_hits"`
	ConsecutiveDownHits int                  `json:"consecutive_down_hits"`
}

// Manager consumes metrics samples and resizes the pool within
// [MinWorkers, MaxWorkers]. One bad sample is logged and skipped; the
// monitoring loop never stops because of it.
type Manager struct {
	pool   Pool
	config domain.ScalingConfig
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu         sync.Mutex
	upHits     int
	downHits   int
	lastAction time.Time
	events     []domain.ScalingEvent

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates an auto-scaling manager over the given pool.
func NewManager(pool Pool, config domain.ScalingConfig, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scaling config: %w", err)
	}

	return &Manager{
		pool:   pool,
		config: config,
		logger: logger.With("component", "auto_scaling_manager"),
		now:    time.Now,
	}, nil
}

// Start consumes samples from the channel until Stop is called or the
// channel closes. Idempotent.
func (m *Manager) Start(samples <-chan domain.PerformanceMetrics) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.stopCh = make(chan struct{})
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.stopCh:
				return
			case sample, ok := <-samples:
				if !ok {
					return
				}
				m.observeSafely(sample)
			}
		}
	}()

	m.logger.Info("auto-scaler started",
		"min_workers", m.config.MinWorkers,
		"max_workers", m.config.MaxWorkers,
		"consecutive_required", m.config.ConsecutiveRequired)
}

// Stop halts the monitoring loop. Idempotent.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
}

// observeSafely shields the loop from a panicking sample evaluation.
func (m *Manager) observeSafely(sample domain.PerformanceMetrics) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic while evaluating metrics sample", "panic", r)
		}
	}()
	m.Observe(sample)
}

// Observe evaluates one metrics sample against both scaling directions.
// Exported so tests can drive the state machine without a channel.
func (m *Manager) Observe(sample domain.PerformanceMetrics) {
	if !validSample(sample) {
		m.logger.Warn("ignoring malformed metrics sample",
			"queue_length", sample.QueueLength,
			"running_count", sample.RunningCount,
			"worker_count", sample.WorkerCount,
			"success_rate", sample.SuccessRate)
		return
	}

	size := m.pool.MaxConcurrent()
	utilization := 0.0
	if size > 0 {
		utilization = float64(sample.RunningCount) / float64(size)
	}
	hasActivity := sample.RunningCount > 0 || sample.QueueLength > 0

	upReason, upValue, upHit := m.checkScaleUp(sample, utilization, hasActivity)
	downHit := utilization < m.config.UtilizationLowThreshold &&
		sample.QueueLength < m.config.QueueLengthLowThreshold

	m.mu.Lock()
	defer m.mu.Unlock()

	if upHit {
		m.upHits++
	} else {
		m.upHits = 0
	}
	if downHit {
		m.downHits++
	} else {
		m.downHits = 0
	}

	now := m.now()

	if m.upHits >= m.config.ConsecutiveRequired {
		if m.cooldownRemaining(now, m.config.ScaleUpCooldown) > 0 {
			m.logger.Debug("scale-up suppressed by cooldown")
			return
		}
		m.scaleUpLocked(now, upReason, upValue)
		return
	}

	if m.downHits >= m.config.ConsecutiveRequired {
		if m.cooldownRemaining(now, m.config.ScaleDownCooldown) > 0 {
			m.logger.Debug("scale-down suppressed by cooldown")
			return
		}
		reason := fmt.Sprintf(
			"utilization %.2f below %.2f and queue length %d below %d",
			utilization, m.config.UtilizationLowThreshold,
			sample.QueueLength, m.config.QueueLengthLowThreshold)
		m.scaleDownLocked(now, reason, utilization)
	}
}

// checkScaleUp reports whether the sample satisfies any scale-up trigger,
// along with a human-readable reason for the first condition that matched.
func (m *Manager) checkScaleUp(
	sample domain.PerformanceMetrics,
	utilization float64,
	hasActivity bool,
) (string, float64, bool) {
	switch {
	case utilization > m.config.UtilizationHighThreshold:
		return fmt.Sprintf("utilization %.2f above threshold %.2f",
			utilization, m.config.UtilizationHighThreshold), utilization, true
	case sample.QueueLength > m.config.QueueLengthHighThreshold:
		return fmt.Sprintf("queue length %d above threshold %d",
			sample.QueueLength, m.config.QueueLengthHighThreshold), float64(sample.QueueLength), true
	case hasActivity && sample.SuccessRate < m.config.SuccessRateLowThreshold:
		return fmt.Sprintf("success rate %.2f below threshold %.2f",
			sample.SuccessRate, m.config.SuccessRateLowThreshold), sample.SuccessRate, true
	default:
		return "", 0, false
	}
}

// scaleUpLocked doubles the pool size, capped at MaxWorkers.
func (m *Manager) scaleUpLocked(now time.Time, reason string, value float64) {
	m.upHits = 0
	m.downHits = 0

	old := m.pool.MaxConcurrent()
	next := old * 2
	if next > m.config.MaxWorkers {
		next = m.config.MaxWorkers
	}
	if next == old {
		m.logger.Debug("scale-up requested but pool already at max", "size", old)
		return
	}

	m.pool.SetMaxConcurrent(next)
	m.lastAction = now
	m.appendEventLocked(domain.ScalingEvent{
		Timestamp:       now.UTC(),
		Direction:       domain.ScaleUp,
		OldSize:         old,
		NewSize:         next,
		TriggeringValue: value,
		Reason:          reason,
	})

	m.logger.Info("scaled up", "old_size", old, "new_size", next, "reason", reason)
}

// scaleDownLocked shrinks the pool by one, floored at MinWorkers.
func (m *Manager) scaleDownLocked(now time.Time, reason string, value float64) {
	m.upHits = 0
	m.downHits = 0

	old := m.pool.MaxConcurrent()
	next := old - 1
	if next < m.config.MinWorkers {
		next = m.config.MinWorkers
	}
	if next == old {
		m.logger.Debug("scale-down requested but pool already at min", "size", old)
		return
	}

	m.pool.SetMaxConcurrent(next)
	m.lastAction = now
	m.appendEventLocked(domain.ScalingEvent{
		Timestamp:       now.UTC(),
		Direction:       domain.ScaleDown,
		OldSize:         old,
		NewSize:         next,
		TriggeringValue: value,
		Reason:          reason,
	})

	m.logger.Info("scaled down", "old_size", old, "new_size", next, "reason", reason)
}

func (m *Manager) appendEventLocked(event domain.ScalingEvent) {
	m.events = append(m.events, event)
}

// cooldownRemaining returns how long until the given cooldown, measured
// from the last action of either direction, expires.
func (m *Manager) cooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if m.lastAction.IsZero() {
		return 0
	}
	remaining := cooldown - now.Sub(m.lastAction)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetStatus returns the current pool size, the last scaling event and the
// time until each cooldown expires.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	status := Status{
		CurrentSize:         m.pool.MaxConcurrent(),
		ScaleUpCooldown:     m.cooldownRemaining(now, m.config.ScaleUpCooldown),
		ScaleDownCooldown:   m.cooldownRemaining(now, m.config.ScaleDownCooldown),
		ConsecutiveUpHits:   m.upHits,
		ConsecutiveDownHits: m.downHits,
	}
	if len(m.events) > 0 {
		last := m.events[len(m.events)-1]
		status.LastEvent = &last
	}
	return status
}

// Events returns a copy of the append-only scaling event log.
func (m *Manager) Events() []domain.ScalingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ScalingEvent, len(m.events))
	copy(out, m.events)
	return out
}

// validSample rejects samples a buggy producer could emit: negative counts
// or rates, NaN estimates.
func validSample(s domain.PerformanceMetrics) bool {
	if s.QueueLength < 0 || s.RunningCount < 0 || s.WorkerCount < 0 {
		return false
	}
	if s.SuccessRate < 0 || s.SuccessRate > 1 {
		return false
	}
	if math.IsNaN(s.CPUPercent) || math.IsNaN(s.MemoryPercent) || math.IsNaN(s.SuccessRate) {
		return false
	}
	return true
}

package scaling

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/analysis-orchestrator/internal/domain"
)

// fakePool tracks ceiling adjustments.
type fakePool struct {
	mu   sync.Mutex
	size int
}

func (p *fakePool) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *fakePool) SetMaxConcurrent(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() domain.ScalingConfig {
	cfg := domain.DefaultScalingConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 5
	cfg.ConsecutiveRequired = 3
	cfg.ScaleUpCooldown = 30 * time.Second
	cfg.ScaleDownCooldown = 60 * time.Second
	return cfg
}

func newTestManager(t *testing.T, poolSize int, cfg domain.ScalingConfig) (*Manager, *fakePool, *time.Time) {
	t.Helper()
	pool := &fakePool{size: poolSize}
	m, err := NewManager(pool, cfg, testLogger())
	require.NoError(t, err)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, pool, &now
}

// busySample saturates the pool relative to the given size.
func busySample(size int) domain.PerformanceMetrics {
	return domain.PerformanceMetrics{
		Timestamp:    time.Now(),
		QueueLength:  1,
		RunningCount: size,
		WorkerCount:  size,
		SuccessRate:  1.0,
	}
}

func idleSample() domain.PerformanceMetrics {
	return domain.PerformanceMetrics{
		Timestamp:   time.Now(),
		SuccessRate: 1.0,
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 0

	_, err := NewManager(&fakePool{size: 1}, cfg, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidWorkerBounds)
}

func TestScaleUpAfterConsecutiveHighSamples(t *testing.T) {
	m, pool, _ := newTestManager(t, 3, testConfig())

	m.Observe(busySample(3))
	m.Observe(busySample(3))
	assert.Equal(t, 3, pool.MaxConcurrent(), "two hits must not trigger yet")

	m.Observe(busySample(3))
	// Doubling 3 gives 6, capped at the 5-worker bound.
	assert.Equal(t, 5, pool.MaxConcurrent())

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ScaleUp, events[0].Direction)
	assert.Equal(t, 3, events[0].OldSize)
	assert.Equal(t, 5, events[0].NewSize)
	assert.Contains(t, events[0].Reason, "utilization")
}

func TestScaleUpOnDeepQueue(t *testing.T) {
	m, pool, _ := newTestManager(t, 2, testConfig())

	sample := domain.PerformanceMetrics{
		QueueLength:  15,
		RunningCount: 1,
		WorkerCount:  2,
		SuccessRate:  1.0,
	}
	for i := 0; i < 3; i++ {
		m.Observe(sample)
	}

	assert.Equal(t, 4, pool.MaxConcurrent())
	events := m.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Reason, "queue length")
}

func TestScaleUpOnLowSuccessRate(t *testing.T) {
	m, pool, _ := newTestManager(t, 2, testConfig())

	sample := domain.PerformanceMetrics{
		QueueLength:  1,
		RunningCount: 1,
		WorkerCount:  2,
		SuccessRate:  0.2,
	}
	for i := 0; i < 3; i++ {
		m.Observe(sample)
	}

	assert.Equal(t, 4, pool.MaxConcurrent())
	events := m.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Reason, "success rate")
}

func TestLowSuccessRateIgnoredWhenIdle(t *testing.T) {
	m, pool, _ := newTestManager(t, 2, testConfig())

	// Nothing queued or running: a zero success rate is startup noise, not
	// a degradation signal.
	sample := domain.PerformanceMetrics{SuccessRate: 0}
	for i := 0; i < 5; i++ {
		m.Observe(sample)
	}

	assert.Equal(t, 2, pool.MaxConcurrent())
}

func TestHitCounterResetsOnNormalSample(t *testing.T) {
	m, pool, _ := newTestManager(t, 3, testConfig())

	m.Observe(busySample(3))
	m.Observe(busySample(3))
	m.Observe(domain.PerformanceMetrics{
		QueueLength:  3,
		RunningCount: 1,
		WorkerCount:  3,
		SuccessRate:  1.0,
	})
	m.Observe(busySample(3))
	m.Observe(busySample(3))

	assert.Equal(t, 3, pool.MaxConcurrent(), "streak was broken, no action yet")
	assert.Empty(t, m.Events())
}

func TestScaleDownAfterSustainedIdleness(t *testing.T) {
	m, pool, _ := newTestManager(t, 4, testConfig())

	for i := 0; i < 3; i++ {
		m.Observe(idleSample())
	}

	assert.Equal(t, 3, pool.MaxConcurrent(), "scale-down steps by one")
	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ScaleDown, events[0].Direction)
}

func TestScaleDownFlooredAtMinWorkers(t *testing.T) {
	m, pool, _ := newTestManager(t, 1, testConfig())

	for i := 0; i < 10; i++ {
		m.Observe(idleSample())
	}

	assert.Equal(t, 1, pool.MaxConcurrent())
	assert.Empty(t, m.Events(), "no-op resize must not be recorded")
}

func TestCooldownBlocksImmediateReversal(t *testing.T) {
	m, pool, now := newTestManager(t, 2, testConfig())

	for i := 0; i < 3; i++ {
		m.Observe(busySample(2))
	}
	require.Equal(t, 4, pool.MaxConcurrent())

	// Load drops right away; the scale-down cooldown holds the pool size.
	for i := 0; i < 5; i++ {
		m.Observe(idleSample())
	}
	assert.Equal(t, 4, pool.MaxConcurrent())

	// Once the cooldown expires the next qualifying sample acts.
	*now = now.Add(61 * time.Second)
	m.Observe(idleSample())
	assert.Equal(t, 3, pool.MaxConcurrent())
}

func TestScaleUpCooldownThrottlesGrowth(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 16
	m, pool, now := newTestManager(t, 2, cfg)

	for i := 0; i < 3; i++ {
		m.Observe(busySample(2))
	}
	require.Equal(t, 4, pool.MaxConcurrent())

	for i := 0; i < 3; i++ {
		m.Observe(busySample(4))
	}
	assert.Equal(t, 4, pool.MaxConcurrent(), "still inside the scale-up cooldown")

	*now = now.Add(31 * time.Second)
	m.Observe(busySample(4))
	assert.Equal(t, 8, pool.MaxConcurrent())
}

func TestMalformedSamplesIgnored(t *testing.T) {
	m, pool, _ := newTestManager(t, 2, testConfig())

	bad := []domain.PerformanceMetrics{
		{QueueLength: -1, SuccessRate: 1.0},
		{RunningCount: -1, SuccessRate: 1.0},
		{WorkerCount: -1, SuccessRate: 1.0},
		{SuccessRate: -0.1},
		{SuccessRate: 1.5},
		{SuccessRate: math.NaN()},
		{CPUPercent: math.NaN(), SuccessRate: 1.0},
	}

	for _, sample := range bad {
		for i := 0; i < 5; i++ {
			m.Observe(sample)
		}
	}

	assert.Equal(t, 2, pool.MaxConcurrent())
	assert.Empty(t, m.Events())
}

func TestStartConsumesSampleChannel(t *testing.T) {
	m, pool, _ := newTestManager(t, 2, testConfig())

	samples := make(chan domain.PerformanceMetrics)
	m.Start(samples)
	defer m.Stop()

	for i := 0; i < 3; i++ {
		samples <- busySample(2)
	}

	assert.Eventually(t, func() bool {
		return pool.MaxConcurrent() == 4
	}, time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, 2, testConfig())

	samples := make(chan domain.PerformanceMetrics)
	m.Start(samples)
	m.Start(samples)
	m.Stop()
	m.Stop()
}

func TestGetStatus(t *testing.T) {
	m, _, now := newTestManager(t, 2, testConfig())

	status := m.GetStatus()
	assert.Equal(t, 2, status.CurrentSize)
	assert.Nil(t, status.LastEvent)
	assert.Zero(t, status.ScaleUpCooldown)
	assert.Zero(t, status.ScaleDownCooldown)

	for i := 0; i < 3; i++ {
		m.Observe(busySample(2))
	}

	*now = now.Add(10 * time.Second)
	status = m.GetStatus()
	assert.Equal(t, 4, status.CurrentSize)
	require.NotNil(t, status.LastEvent)
	assert.Equal(t, domain.ScaleUp, status.LastEvent.Direction)
	assert.Equal(t, 20*time.Second, status.ScaleUpCooldown)
	assert.Equal(t, 50*time.Second, status.ScaleDownCooldown)
}

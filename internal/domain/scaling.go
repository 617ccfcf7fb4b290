package domain

import (
	"errors"
	"time"
)

// ScalingDirection indicates whether a scaling action grew or shrank the pool.
type ScalingDirection string

// Possible scaling directions
const (
	ScaleUp   ScalingDirection = "up"
	ScaleDown ScalingDirection = "down"
)

// Common validation errors for ScalingConfig
var (
	ErrInvalidWorkerBounds   = errors.New("min workers must be >= 1 and <= max workers")
	ErrInvalidCooldown       = errors.New("cooldowns must be positive")
	ErrInvalidConsecutiveReq = errors.New("consecutive measurement requirement must be >= 1")
	ErrInvalidThreshold      = errors.New("scaling thresholds must be within valid ranges")
)

// ScalingConfig bounds and tunes the auto-scaling controller.
type ScalingConfig struct {
	MinWorkers int
	MaxWorkers int

	// ScaleUpCooldown should be shorter than ScaleDownCooldown so the pool
	// responds fast to load and decays slowly. Both are measured from the
	// last action of either direction.
	ScaleUpCooldown   time.Duration
	ScaleDownCooldown time.Duration

	// Scale-up triggers: any one of these conditions counts as a hit.
	UtilizationHighThreshold float64 // fraction of the pool busy, 0..1
	QueueLengthHighThreshold int
	SuccessRateLowThreshold  float64 // 0..1

	// Scale-down triggers: both must hold for a sample to count as a hit.
	UtilizationLowThreshold float64
	QueueLengthLowThreshold int

	// ConsecutiveRequired is how many successive samples must satisfy a
	// trigger before the controller acts, filtering out single noisy samples.
	ConsecutiveRequired int
}

// DefaultScalingConfig returns a ScalingConfig with conservative defaults.
func DefaultScalingConfig() ScalingConfig {
	return ScalingConfig{
		MinWorkers:               1,
		MaxWorkers:               8,
		ScaleUpCooldown:          30 * time.Second,
		ScaleDownCooldown:        2 * time.Minute,
		UtilizationHighThreshold: 0.8,
		QueueLengthHighThreshold: 10,
		SuccessRateLowThreshold:  0.5,
		UtilizationLowThreshold:  0.3,
		QueueLengthLowThreshold:  2,
		ConsecutiveRequired:      3,
	}
}

// Validate checks the configuration for internal consistency.
func (c ScalingConfig) Validate() error {
	if c.MinWorkers < 1 || c.MaxWorkers < c.MinWorkers {
		return ErrInvalidWorkerBounds
	}
	if c.ScaleUpCooldown <= 0 || c.ScaleDownCooldown <= 0 {
		return ErrInvalidCooldown
	}
	if c.ConsecutiveRequired < 1 {
		return ErrInvalidConsecutiveReq
	}
	if c.UtilizationHighThreshold <= 0 || c.UtilizationHighThreshold > 1 ||
		c.UtilizationLowThreshold < 0 || c.UtilizationLowThreshold >= c.UtilizationHighThreshold {
		return ErrInvalidThreshold
	}
	if c.SuccessRateLowThreshold < 0 || c.SuccessRateLowThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.QueueLengthHighThreshold < 0 || c.QueueLengthLowThreshold < 0 {
		return ErrInvalidThreshold
	}
	return nil
}

// ScalingEvent records one pool-resize action. Events are append-only.
type ScalingEvent struct {
	Timestamp       time.Time        `json:"timestamp"`
	Direction       ScalingDirection `json:"direction"`
	OldSize         int              `json:"old_size"`
	NewSize         int              `json:"new_size"`
	TriggeringValue float64          `json:"triggering_value"`
	Reason          string           `json:"reason"`
}

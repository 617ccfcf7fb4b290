package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScalingConfigValidate(t *testing.T) {
	valid := DefaultScalingConfig()
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*ScalingConfig)
		wantErr error
	}{
		{"zero min workers", func(c *ScalingConfig) { c.MinWorkers = 0 }, ErrInvalidWorkerBounds},
		{"max below min", func(c *ScalingConfig) { c.MinWorkers = 4; c.MaxWorkers = 2 }, ErrInvalidWorkerBounds},
		{"zero scale-up cooldown", func(c *ScalingConfig) { c.ScaleUpCooldown = 0 }, ErrInvalidCooldown},
		{"negative scale-down cooldown", func(c *ScalingConfig) { c.ScaleDownCooldown = -time.Second }, ErrInvalidCooldown},
		{"zero consecutive requirement", func(c *ScalingConfig) { c.ConsecutiveRequired = 0 }, ErrInvalidConsecutiveReq},
		{"utilization high above one", func(c *ScalingConfig) { c.UtilizationHighThreshold = 1.5 }, ErrInvalidThreshold},
		{"utilization low above high", func(c *ScalingConfig) { c.UtilizationLowThreshold = 0.9 }, ErrInvalidThreshold},
		{"success rate above one", func(c *ScalingConfig) { c.SuccessRateLowThreshold = 1.1 }, ErrInvalidThreshold},
		{"negative queue thresholds", func(c *ScalingConfig) { c.QueueLengthLowThreshold = -1 }, ErrInvalidThreshold},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultScalingConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.wantErr)
		})
	}
}

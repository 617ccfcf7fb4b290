package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
	Scaling  ScalingConfig  `mapstructure:"scaling" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects and configures the job store backend.
// The postgres driver needs URL, the sqlite driver needs Path, and the
// memory driver needs nothing.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres"`
	URL    string `mapstructure:"url" validate:"omitempty,url"`
	Path   string `mapstructure:"path"`
}

// QueueConfig contains job queue and worker pool settings.
type QueueConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"required,gt=0"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`
}

// RetryConfig shapes the exponential backoff applied to failed jobs.
type RetryConfig struct {
	BaseDelay      time.Duration `mapstructure:"base_delay" validate:"required,gt=0"`
	MaxDelay       time.Duration `mapstructure:"max_delay" validate:"required,gt=0"`
	JitterFraction float64       `mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// MetricsConfig tunes the performance metrics collector.
type MetricsConfig struct {
	SampleInterval            time.Duration `mapstructure:"sample_interval" validate:"required,gt=0"`
	HistoryCapacity           int           `mapstructure:"history_capacity" validate:"required,gt=0"`
	ThroughputWindow          time.Duration `mapstructure:"throughput_window" validate:"required,gt=0"`
	SuccessRateAlertThreshold float64       `mapstructure:"success_rate_alert_threshold" validate:"gte=0,lte=1"`
	QueueAlertThreshold       int           `mapstructure:"queue_alert_threshold" validate:"gte=0"`
}

// ScalingConfig tunes the auto-scaling controller.
type ScalingConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	MinWorkers               int           `mapstructure:"min_workers" validate:"required,gt=0"`
	MaxWorkers               int           `mapstructure:"max_workers" validate:"required,gtefield=MinWorkers"`
	ScaleUpCooldown          time.Duration `mapstructure:"scale_up_cooldown" validate:"required,gt=0"`
	ScaleDownCooldown        time.Duration `mapstructure:"scale_down_cooldown" validate:"required,gt=0"`
	UtilizationHighThreshold float64       `mapstructure:"utilization_high_threshold" validate:"gt=0,lte=1"`
	UtilizationLowThreshold  float64       `mapstructure:"utilization_low_threshold" validate:"gte=0,ltefield=UtilizationHighThreshold"`
	QueueLengthHighThreshold int           `mapstructure:"queue_length_high_threshold" validate:"gt=0"`
	QueueLengthLowThreshold  int           `mapstructure:"queue_length_low_threshold" validate:"gte=0"`
	SuccessRateLowThreshold  float64       `mapstructure:"success_rate_low_threshold" validate:"gte=0,lte=1"`
	ConsecutiveRequired      int           `mapstructure:"consecutive_required" validate:"required,gt=0"`
}

// LLMConfig contains all language model integration related settings.
// An empty API key selects the simulated executor, which is intended for
// local development only.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

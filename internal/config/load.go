package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and, when present, a
// config.yaml in the working directory. Environment variables use the ORCH_
// prefix with underscores for nesting (ORCH_SERVER_PORT, ORCH_QUEUE_MAX_CONCURRENT)
// and take precedence over file values.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Database.Driver == "postgres" && cfg.Database.URL == "" {
		return nil, fmt.Errorf("config validation failed: database.url is required for the postgres driver")
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		return nil, fmt.Errorf("config validation failed: database.path is required for the sqlite driver")
	}

	return &cfg, nil
}

// setDefaults registers a complete default configuration so the service can
// start with no config file and no environment at all.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "")

	v.SetDefault("queue.max_concurrent", 2)
	v.SetDefault("queue.poll_interval", "500ms")

	v.SetDefault("retry.base_delay", "5s")
	v.SetDefault("retry.max_delay", "5m")
	v.SetDefault("retry.jitter_fraction", 0.0)

	v.SetDefault("metrics.sample_interval", "1s")
	v.SetDefault("metrics.history_capacity", 500)
	v.SetDefault("metrics.throughput_window", "10s")
	v.SetDefault("metrics.success_rate_alert_threshold", 0.5)
	v.SetDefault("metrics.queue_alert_threshold", 20)

	v.SetDefault("scaling.enabled", true)
	v.SetDefault("scaling.min_workers", 1)
	v.SetDefault("scaling.max_workers", 10)
	v.SetDefault("scaling.scale_up_cooldown", "30s")
	v.SetDefault("scaling.scale_down_cooldown", "60s")
	v.SetDefault("scaling.utilization_high_threshold", 0.8)
	v.SetDefault("scaling.utilization_low_threshold", 0.3)
	v.SetDefault("scaling.queue_length_high_threshold", 10)
	v.SetDefault("scaling.queue_length_low_threshold", 2)
	v.SetDefault("scaling.success_rate_low_threshold", 0.5)
	v.SetDefault("scaling.consecutive_required", 3)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
}

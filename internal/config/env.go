package config

import (
	"os"
	"strconv"
)

// FromEnv overlays CONVEYOR_* environment variables onto cfg. Only scalar
// server-wide settings are overridable; per-loop settings come from the file.
func FromEnv(cfg *Config) {
	if v := os.Getenv("CONVEYOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CONVEYOR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CONVEYOR_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("CONVEYOR_TOPIC_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TopicDefaults.QueueCapacity = n
		}
	}
	if v := os.Getenv("CONVEYOR_TOPIC_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TopicDefaults.RetentionDays = n
		}
	}
	if v := os.Getenv("CONVEYOR_TOPIC_METRICS_WINDOW_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TopicDefaults.MetricsWindowSecs = n
		}
	}
}

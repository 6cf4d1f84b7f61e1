package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Log           LogConfig       `json:"log" yaml:"log"`
	HTTPAddr      string          `json:"httpAddr" yaml:"httpAddr"`
	TopicDefaults TopicDefaults   `json:"topicDefaults" yaml:"topicDefaults"`
	Indexers      []IndexerConfig `json:"indexers" yaml:"indexers"`
}

// LogConfig controls process-wide logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TopicDefaults captures baseline limits applied to every topic the server
// opens unless a loop overrides them.
type TopicDefaults struct {
	QueueCapacity     int `json:"queueCapacity" yaml:"queueCapacity"`
	RetentionDays     int `json:"retentionDays" yaml:"retentionDays"`
	MetricsWindowSecs int `json:"metricsWindowSecs" yaml:"metricsWindowSecs"`
}

// IndexerConfig declares one batch-indexing loop: which topic and consumer
// group it reads, an optional delivery filter expression, and its buffering
// and idempotency tunables.
type IndexerConfig struct {
	Name              string `json:"name" yaml:"name"`
	Topic             string `json:"topic" yaml:"topic"`
	Group             string `json:"group" yaml:"group"`
	Filter            string `json:"filter" yaml:"filter"`
	EnableBuffering   bool   `json:"enableBuffering" yaml:"enableBuffering"`
	InsertBatchSize   int    `json:"insertBatchSize" yaml:"insertBatchSize"`
	FlushTimeoutMs    int    `json:"flushTimeoutMs" yaml:"flushTimeoutMs"`
	PollTimeoutMs     int    `json:"pollTimeoutMs" yaml:"pollTimeoutMs"`
	EnableIdempotency bool   `json:"enableIdempotency" yaml:"enableIdempotency"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		HTTPAddr: ":8080",
		TopicDefaults: TopicDefaults{
			QueueCapacity:     1024,
			RetentionDays:     7,
			MetricsWindowSecs: 60,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects configs the server cannot run with.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for i, ix := range c.Indexers {
		if ix.Name == "" {
			return fmt.Errorf("config: indexers[%d] missing name", i)
		}
		if seen[ix.Name] {
			return fmt.Errorf("config: duplicate indexer name %q", ix.Name)
		}
		seen[ix.Name] = true
		if ix.Topic == "" {
			return fmt.Errorf("config: indexer %q missing topic", ix.Name)
		}
		if ix.Group == "" {
			return fmt.Errorf("config: indexer %q missing group", ix.Name)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Log.Level != "info" {
		t.Fatalf("default log level")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default http addr")
	}
	if cfg.TopicDefaults.QueueCapacity != 1024 {
		t.Fatalf("queue capacity default")
	}
	if cfg.TopicDefaults.RetentionDays != 7 {
		t.Fatalf("retention default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conveyor.json")
	data := []byte(`{"httpAddr":":9090","topicDefaults":{"queueCapacity":256,"retentionDays":3},"indexers":[{"name":"main","topic":"batches","group":"indexer","enableBuffering":true,"insertBatchSize":250,"flushTimeoutMs":2000}]}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.TopicDefaults.QueueCapacity != 256 {
		t.Fatalf("expected 256")
	}
	// Fields absent from the file keep their defaults.
	if cfg.TopicDefaults.MetricsWindowSecs != 60 {
		t.Fatalf("expected default metrics window")
	}
	if len(cfg.Indexers) != 1 || cfg.Indexers[0].InsertBatchSize != 250 {
		t.Fatalf("indexers not parsed: %+v", cfg.Indexers)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conveyor.yaml")
	data := []byte("log:\n  level: debug\nindexers:\n  - name: main\n    topic: batches\n    group: indexer\n    pollTimeoutMs: 500\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug, got %s", cfg.Log.Level)
	}
	if len(cfg.Indexers) != 1 || cfg.Indexers[0].PollTimeoutMs != 500 {
		t.Fatalf("indexers not parsed: %+v", cfg.Indexers)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("CONVEYOR_LOG_LEVEL", "debug")
	os.Setenv("CONVEYOR_HTTP_ADDR", ":7070")
	os.Setenv("CONVEYOR_TOPIC_RETENTION_DAYS", "14")
	t.Cleanup(func() {
		os.Unsetenv("CONVEYOR_LOG_LEVEL")
		os.Unsetenv("CONVEYOR_HTTP_ADDR")
		os.Unsetenv("CONVEYOR_TOPIC_RETENTION_DAYS")
	})
	FromEnv(&cfg)
	if cfg.Log.Level != "debug" {
		t.Fatalf("env override level")
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env override addr")
	}
	if cfg.TopicDefaults.RetentionDays != 14 {
		t.Fatalf("env override retention")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Indexers = []IndexerConfig{{Name: "a", Topic: "t", Group: "g"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Indexers = append(cfg.Indexers, IndexerConfig{Name: "a", Topic: "t2", Group: "g2"})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("duplicate name accepted")
	}
	cfg.Indexers = []IndexerConfig{{Name: "b", Topic: "", Group: "g"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing topic accepted")
	}
}

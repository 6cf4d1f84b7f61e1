package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/conveyor/internal/config"
	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
	"github.com/rzbill/conveyor/internal/topic"
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, config, and topic handles for a single-node
// instance. Topics are cached so every caller shares the one coalescing
// writer per topic name.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger

	mu     sync.Mutex
	topics map[string]*topic.Topic
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Runtime{
		db:     db,
		config: opts.Config,
		logger: logger,
		topics: make(map[string]*topic.Topic),
	}, nil
}

// Close closes every open topic, then the store. Topic close drains each
// coalescing queue first so buffered appends are not lost.
func (r *Runtime) Close() error {
	r.mu.Lock()
	topics := make([]*topic.Topic, 0, len(r.topics))
	for _, t := range r.topics {
		topics = append(topics, t)
	}
	r.topics = make(map[string]*topic.Topic)
	r.mu.Unlock()

	var firstErr error
	for _, t := range topics {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.topics {
		if !t.Healthy() {
			return errors.New("topic " + name + " unhealthy")
		}
	}
	return nil
}

// OpenTopic opens (or returns the cached) topic with the runtime's
// configured defaults.
func (r *Runtime) OpenTopic(name string) (*topic.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[name]; ok {
		return t, nil
	}
	cfg := topic.DefaultConfig()
	if d := r.config.TopicDefaults; d.QueueCapacity > 0 {
		cfg.QueueCapacity = d.QueueCapacity
	}
	if d := r.config.TopicDefaults; d.RetentionDays > 0 {
		cfg.RetentionDays = d.RetentionDays
	}
	if d := r.config.TopicDefaults; d.MetricsWindowSecs > 0 {
		cfg.MetricsWindowSecs = d.MetricsWindowSecs
	}
	t, err := topic.Open(r.db, name, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.topics[name] = t
	return t, nil
}

// Topics returns the currently open topics keyed by name.
func (r *Runtime) Topics() map[string]*topic.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*topic.Topic, len(r.topics))
	for name, t := range r.topics {
		out[name] = t
	}
	return out
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

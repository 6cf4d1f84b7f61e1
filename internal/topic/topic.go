package topic

import (
	"fmt"
	"strings"
	"time"

	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// Config carries per-topic tunables. Validation happens at Open time;
// configuration errors never surface at runtime.
type Config struct {
	// QueueCapacity bounds the coalescer queue. Send blocks when full.
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`
	// RetentionDays drops records older than this many days.
	RetentionDays int `json:"retentionDays" yaml:"retentionDays"`
	// MetricsWindowSecs sizes the throughput window.
	MetricsWindowSecs int `json:"metricsWindowSecs" yaml:"metricsWindowSecs"`
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() Config {
	return Config{QueueCapacity: 1024, RetentionDays: 7, MetricsWindowSecs: 60}
}

// Validate rejects unusable parameter combinations.
func (c Config) Validate() error {
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("topic: queueCapacity must be > 0, got %d", c.QueueCapacity)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("topic: retentionDays must be >= 1, got %d", c.RetentionDays)
	}
	if c.MetricsWindowSecs < 1 {
		return fmt.Errorf("topic: metricsWindowSecs must be >= 1, got %d", c.MetricsWindowSecs)
	}
	return nil
}

// Topic is a durable, named append log with consumer-group cursors. One
// Topic instance exists per name for the process lifetime; handles are cheap
// and per-caller.
type Topic struct {
	name    string
	cfg     Config
	log     *topicLog
	co      *coalescer
	logger  logpkg.Logger
	metrics *Metrics
}

// Open creates or reopens the named topic over db.
func Open(db *pebblestore.DB, name string, cfg Config, logger logpkg.Logger) (*Topic, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("topic: name must not be blank")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logger = logger.With(logpkg.Component("topic"), logpkg.Str("topic", name))
	l, err := openLog(db, name)
	if err != nil {
		return nil, err
	}
	m := newMetrics(cfg.MetricsWindowSecs)
	t := &Topic{
		name:    name,
		cfg:     cfg,
		log:     l,
		co:      newCoalescer(l, cfg.QueueCapacity, logger, m),
		logger:  logger,
		metrics: m,
	}
	t.co.trimHook = t.trimRetention
	return t, nil
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// Metrics returns the topic's metrics counters.
func (t *Topic) Metrics() *Metrics { return t.metrics }

// Healthy reports whether appends are currently landing. It flips false
// while the internal writer is stuck retrying a failed append.
func (t *Topic) Healthy() bool { return t.metrics.healthy() }

// OpenWriter binds a writer handle for the given service identity.
func (t *Topic) OpenWriter(service string) (*Writer, error) {
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("topic: writer service identity must not be blank")
	}
	return &Writer{topic: t, service: service}, nil
}

// OpenReader binds a reader handle to a consumer group. The group name is
// required; blank groups are a configuration error.
func (t *Topic) OpenReader(service, group string, opts ...ReaderOption) (*Reader, error) {
	if strings.TrimSpace(service) == "" {
		return nil, fmt.Errorf("topic: reader service identity must not be blank")
	}
	if strings.TrimSpace(group) == "" {
		return nil, fmt.Errorf("topic: consumer group must not be blank")
	}
	r := &Reader{
		topic:   t,
		service: service,
		group:   group,
		pos:     t.log.committed(group),
		skipped: map[uint64]struct{}{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Close drains the coalescer and flushes the log. Handles become unusable;
// Send returns ErrTopicClosed afterwards.
func (t *Topic) Close() error {
	return t.co.close(5 * time.Second)
}

// trimRetention applies the retention window. Invoked periodically from the
// coalescer worker, so it never races the single writer.
func (t *Topic) trimRetention() {
	cutoff := time.Now().AddDate(0, 0, -t.cfg.RetentionDays).UnixMilli()
	deleted, err := t.trimOlderThan(cutoff, 2048)
	if err != nil {
		t.logger.Warn("retention trim failed", logpkg.Err(err))
		return
	}
	if deleted > 0 {
		t.logger.Debug("retention trim", logpkg.Int("deleted", deleted))
	}
}

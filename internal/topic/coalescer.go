package topic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// ErrTopicClosed is returned by Send after the topic has been closed.
var ErrTopicClosed = errors.New("topic: closed")

// coalescer funnels concurrent producers into a single append stream. The
// underlying log has one logical writer; the bounded queue plus one drain
// goroutine makes that an internal concern invisible to producers.
type coalescer struct {
	log     *topicLog
	queue   chan Envelope
	logger  logpkg.Logger
	metrics *Metrics

	closing chan struct{} // signals the worker to drain and exit
	abort   chan struct{} // closed when a shutdown join times out
	done    chan struct{} // worker exited

	mu      sync.Mutex
	closed  bool
	started bool
	sending sync.WaitGroup // in-flight enqueues that passed the closed check

	unhealthy atomic.Bool
	trimEvery uint64
	trimHook  func()
	appended  atomic.Uint64
}

func newCoalescer(l *topicLog, capacity int, logger logpkg.Logger, metrics *Metrics) *coalescer {
	c := &coalescer{
		log:       l,
		queue:     make(chan Envelope, capacity),
		logger:    logger,
		metrics:   metrics,
		closing:   make(chan struct{}),
		abort:     make(chan struct{}),
		done:      make(chan struct{}),
		trimEvery: 1024,
	}
	metrics.queueLen = func() int { return len(c.queue) }
	metrics.healthy = func() bool { return !c.unhealthy.Load() }
	return c
}

// enqueue blocks while the queue is full (producer backpressure) and returns
// once the envelope is accepted. The worker starts lazily on first use; the
// acceptance decision and the start happen under the same lock so close
// cannot slip between them and strand an accepted envelope.
func (c *coalescer) enqueue(env Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrTopicClosed
	}
	if !c.started {
		c.started = true
		go c.run()
	}
	c.sending.Add(1)
	c.mu.Unlock()
	defer c.sending.Done()

	select {
	case c.queue <- env:
		return nil
	case <-c.closing:
		return ErrTopicClosed
	}
}

// run is the single drain worker: pulls envelopes in arrival order and
// appends them to the log.
func (c *coalescer) run() {
	defer close(c.done)
	for {
		select {
		case env := <-c.queue:
			c.append(env)
		case <-c.closing:
			// Drain whatever producers already enqueued; Send has returned
			// success for these.
			for {
				select {
				case env := <-c.queue:
					c.append(env)
				default:
					return
				}
			}
		}
	}
}

// append retries the same record until it lands or shutdown aborts. Producers
// already got success from Send, so dropping here would silently lose data.
func (c *coalescer) append(env Envelope) {
	backoff := 10 * time.Millisecond
	for {
		_, err := c.log.append(context.Background(), env)
		if err == nil {
			c.unhealthy.Store(false)
			if n := c.appended.Add(1); c.trimHook != nil && n%c.trimEvery == 0 {
				c.trimHook()
			}
			return
		}
		c.metrics.appendRetries.Add(1)
		if c.unhealthy.CompareAndSwap(false, true) {
			c.logger.Error("append failing, topic unhealthy",
				logpkg.Str("topic", c.log.topic), logpkg.Err(err))
		}
		select {
		case <-time.After(backoff):
		case <-c.abort:
			c.logger.Error("dropping record on aborted shutdown",
				logpkg.Str("topic", c.log.topic), logpkg.Str("envelope_id", env.ID.String()))
			return
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// close stops accepting new envelopes, drains the queue, and joins the worker
// within timeout. On timeout it logs and proceeds rather than blocking
// shutdown indefinitely.
func (c *coalescer) close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	close(c.closing)
	// Every in-flight enqueue now either lands in the queue or observes
	// closing; after this wait the queue contents are final.
	c.sending.Wait()

	if started {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-c.done:
		case <-t.C:
			close(c.abort)
			c.logger.Warn("coalescer drain timed out", logpkg.Str("topic", c.log.topic))
			return nil
		}
	}

	// The worker can see closing and exit on an empty queue just before a
	// late enqueue lands. Anything still queued was accepted, so append it
	// here before returning.
	for {
		select {
		case env := <-c.queue:
			c.append(env)
		default:
			return nil
		}
	}
}

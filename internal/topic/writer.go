package topic

// Writer publishes payloads to its topic. Handles are safe for concurrent
// use by many producer goroutines; the shared bounded queue is the only
// coordination point.
type Writer struct {
	topic   *Topic
	service string
}

// Send wraps payload in an Envelope with a fresh ID and current timestamp
// and enqueues it for the coalescer. It blocks while the queue is full and
// returns once enqueued, not once durable; the single drain worker appends
// asynchronously. Successive Send calls on one handle preserve their
// relative order in the log.
func (w *Writer) Send(payloadType string, payload []byte) error {
	if err := w.topic.co.enqueue(NewEnvelope(payloadType, payload)); err != nil {
		return err
	}
	w.topic.metrics.markPublished()
	return nil
}

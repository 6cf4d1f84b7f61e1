// Package runtime wires storage, config, and topics into a single-node
// Conveyor instance. It exposes Open/Close, basic health checks, and a
// cached topic registry so every component shares one writer per topic.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Open a topic and publish
//	t, _ := rt.OpenTopic("batches")
//	w, _ := t.OpenWriter("ingest")
//	_ = w.Send("batch-notice", payload)
package runtime

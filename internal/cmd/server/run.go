package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rzbill/conveyor/internal/batchstore"
	cfgpkg "github.com/rzbill/conveyor/internal/config"
	"github.com/rzbill/conveyor/internal/idempotency"
	"github.com/rzbill/conveyor/internal/indexer"
	"github.com/rzbill/conveyor/internal/runtime"
	httpserver "github.com/rzbill/conveyor/internal/server/http"
	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
	"github.com/rzbill/conveyor/internal/topic"
	logpkg "github.com/rzbill/conveyor/pkg/log"
)

// loopRestartDelay spaces restarts of a failing loop so a poison notice does
// not spin the process.
const loopRestartDelay = time.Second

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the runtime, the configured indexing loops, and the admin HTTP
// server, and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context. We layer
	// a local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := opts.Config.Validate(); err != nil {
		return err
	}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  opts.Config.Log.Level,
		Format: opts.Config.Log.Format,
	})
	if err != nil {
		procLogger = logpkg.NewLogger()
	}

	// Redirect stdlib logs (e.g. Pebble) to our logger.
	logpkg.RedirectStdLog(procLogger)

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	httpAddr := opts.HTTPAddr
	if httpAddr == "" {
		httpAddr = opts.Config.HTTPAddr
	}
	procLogger.Info("starting conveyor server",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("http", httpAddr),
		logpkg.Int("indexers", len(opts.Config.Indexers)),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
	)

	hsrv := httpserver.New(rt)
	store := batchstore.New(rt.DB())

	var wg sync.WaitGroup
	for _, ix := range opts.Config.Indexers {
		loop, err := buildLoop(rt, store, ix, procLogger)
		if err != nil {
			return err
		}
		hsrv.RegisterLoop(ix.Name, loop.Metrics())
		wg.Add(1)
		go func(ix cfgpkg.IndexerConfig, loop *indexer.Loop[batchstore.Unit]) {
			defer wg.Done()
			runLoop(sctx, ix, loop, rt, store, hsrv, procLogger)
		}(ix, loop)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, httpAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Shut down the HTTP surface first, then let loops drain, then close the
	// runtime/DB to avoid races against in-flight commits.
	hsrv.Close()
	wg.Wait()
	return nil
}

// buildLoop wires one configured indexing loop over the shared runtime.
func buildLoop(rt *runtime.Runtime, store *batchstore.Store, ix cfgpkg.IndexerConfig, logger logpkg.Logger) (*indexer.Loop[batchstore.Unit], error) {
	tp, err := rt.OpenTopic(ix.Topic)
	if err != nil {
		return nil, err
	}
	var ropts []topic.ReaderOption
	if ix.Filter != "" {
		ropts = append(ropts, topic.WithFilter(ix.Filter))
	}
	reader, err := tp.OpenReader(ix.Name, ix.Group, ropts...)
	if err != nil {
		return nil, err
	}
	cfg := indexer.Config{
		EnableBuffering:   ix.EnableBuffering,
		InsertBatchSize:   ix.InsertBatchSize,
		FlushTimeoutMs:    ix.FlushTimeoutMs,
		PollTimeoutMs:     ix.PollTimeoutMs,
		EnableIdempotency: ix.EnableIdempotency,
	}
	lopts := []indexer.Option[batchstore.Unit]{indexer.WithLogger[batchstore.Unit](logger)}
	if ix.EnableIdempotency {
		gate := idempotency.New(idempotency.NewPebbleStore(rt.DB(), ix.Group), logger)
		lopts = append(lopts, indexer.WithGate[batchstore.Unit](gate))
	}
	return indexer.New[batchstore.Unit](reader, store, store, cfg, lopts...)
}

// runLoop keeps a loop running until shutdown. A processing failure leaves a
// delivery uncommitted; the loop is rebuilt with a fresh reader so delivery
// resumes from the group's committed offset.
func runLoop(ctx context.Context, ix cfgpkg.IndexerConfig, loop *indexer.Loop[batchstore.Unit], rt *runtime.Runtime, store *batchstore.Store, hsrv *httpserver.Server, logger logpkg.Logger) {
	for {
		err := loop.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error("indexer loop exited, restarting",
			logpkg.Str("loop", ix.Name), logpkg.Err(err))
		select {
		case <-time.After(loopRestartDelay):
		case <-ctx.Done():
			return
		}
		next, berr := buildLoop(rt, store, ix, logger)
		if berr != nil {
			logger.Error("indexer loop rebuild failed",
				logpkg.Str("loop", ix.Name), logpkg.Err(berr))
			return
		}
		loop = next
		hsrv.RegisterLoop(ix.Name, loop.Metrics())
	}
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leonunix/docquery/internal/backend"
	"github.com/leonunix/docquery/internal/bulk"
	"github.com/leonunix/docquery/internal/client"
	"github.com/leonunix/docquery/internal/config"
	"github.com/leonunix/docquery/internal/loader"
	"github.com/leonunix/docquery/internal/metrics"
	"github.com/leonunix/docquery/internal/util"

	"github.com/robfig/cron/v3"
)

// bulkInserter adapts the client's insert to the loader, which needs the
// raw bulk outcome rather than the normalized result.
type bulkInserter struct {
	c *client.Client
}

func (b bulkInserter) Insert(ctx context.Context, index string, docs []map[string]any) (*bulk.Result, error) {
	res, err := b.c.Insert(ctx, index, docs)
	if err != nil {
		return nil, err
	}
	return res.Bulk, nil
}

func main() {
	configPath := flag.String("config", "docquery.yaml", "path to configuration file")
	once := flag.Bool("once", false, "load once and exit (ignore schedule)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	util.SetupLogger(cfg.Logging.Level)

	slog.Info("docquery-load starting",
		"opensearch", cfg.OpenSearch.URL,
		"index", cfg.Loader.Index,
		"sources", cfg.Loader.Sources,
		"chunk_size", cfg.Bulk.ChunkSize,
		"workers", cfg.Bulk.Workers,
		"distributed_lock", cfg.Loader.DistributedLock,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	c, transport, err := client.FromConfig(cfg, m)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	opts := []loader.Option{
		loader.WithMetrics(m),
		loader.WithBatchSize(cfg.Bulk.ChunkSize),
	}
	if cfg.Loader.DistributedLock {
		opts = append(opts, loader.WithDistLock(backend.NewLock(transport), cfg.Loader.LockTTL))
	}
	if cfg.Loader.RecordRuns {
		opts = append(opts, loader.WithRunRecorder(loader.NewIndexRunStore(transport)))
	}

	ld, err := loader.New(cfg.Loader, bulkInserter{c: c}, opts...)
	if err != nil {
		slog.Error("failed to initialize loader", "error", err)
		os.Exit(1)
	}

	if *once {
		if err := ld.RunAll(ctx); err != nil {
			slog.Error("load failed", "error", err)
			os.Exit(1)
		}
		slog.Info("load completed, exiting")
		return
	}

	sched := cron.New()
	_, err = sched.AddFunc(cfg.Loader.Schedule, func() {
		slog.Info("scheduled load starting")
		if err := ld.RunAll(ctx); err != nil {
			slog.Error("scheduled load failed", "error", err)
			return
		}
		slog.Info("scheduled load completed")
	})
	if err != nil {
		slog.Error("invalid cron schedule", "schedule", cfg.Loader.Schedule, "error", err)
		os.Exit(1)
	}

	sched.Start()
	slog.Info("load scheduler started", "schedule", cfg.Loader.Schedule)

	<-ctx.Done()

	slog.Info("shutting down...")
	done := sched.Stop()
	<-done.Done()
	slog.Info("docquery-load stopped")
}

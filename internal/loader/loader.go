// Package loader ingests NDJSON files into an index through the bulk
// aggregator, resuming from per-source checkpoints.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/leonunix/docquery/internal/config"
	"github.com/leonunix/docquery/internal/metrics"
)

const maxLineSize = 16 << 20

// Loader loads the configured sources into one index.
type Loader struct {
	index      string
	sources    []string
	inserter   Inserter
	checkpoint *CheckpointStore
	lock       DistLock // optional distributed lock to prevent multi-instance duplication
	lockTTL    time.Duration
	recorder   RunRecorder
	metrics    *metrics.Metrics
	batchSize  int
}

// Option configures optional Loader behavior.
type Option func(*Loader)

// WithDistLock guards every source with lock, held for at most ttl.
func WithDistLock(lock DistLock, ttl time.Duration) Option {
	return func(l *Loader) {
		l.lock = lock
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithRunRecorder persists a RunMetric after every source.
func WithRunRecorder(r RunRecorder) Option {
	return func(l *Loader) { l.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithBatchSize sets how many lines are handed to the inserter at once.
// The checkpoint advances after every batch.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// New creates a Loader for cfg writing through inserter.
func New(cfg config.LoaderConfig, inserter Inserter, opts ...Option) (*Loader, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("loader index is required")
	}
	cp, err := NewCheckpointStore(cfg.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("initializing checkpoint store: %w", err)
	}
	l := &Loader{
		index:      cfg.Index,
		sources:    cfg.Sources,
		inserter:   inserter,
		checkpoint: cp,
		lockTTL:    time.Hour,
		batchSize:  1000,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// RunAll loads every file matched by the configured sources. A failing
// source does not stop the others; the failures are returned joined.
func (l *Loader) RunAll(ctx context.Context) error {
	if len(l.sources) == 0 {
		slog.Info("no sources configured for loading, skipping")
		return nil
	}

	var errs []error
	for _, pattern := range l.sources {
		files, err := resolvePattern(pattern)
		if err != nil {
			slog.Error("failed to resolve source pattern", "pattern", pattern, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, file := range files {
			if ctx.Err() != nil {
				return errors.Join(append(errs, ctx.Err())...)
			}
			if _, err := l.LoadSource(ctx, file); err != nil {
				slog.Error("load failed for source", "source", file, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
			}
		}
	}
	return errors.Join(errs...)
}

func resolvePattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("resolving pattern %q: %w", pattern, err)
	}
	sort.Strings(files)
	slog.Info("resolved source pattern", "pattern", pattern, "count", len(files))
	return files, nil
}

// LoadSource loads one NDJSON file, continuing from its checkpoint. It
// returns a nil metric when the source was skipped.
func (l *Loader) LoadSource(ctx context.Context, path string) (*RunMetric, error) {
	key := l.index + ":" + sourceKey(path)
	if l.lock != nil {
		acquired, err := l.lock.Acquire(ctx, key, l.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring load lock for %s: %w", path, err)
		}
		if !acquired {
			slog.Info("skipping source, load lock held by another instance", "source", path)
			return nil, nil
		}
		defer func() {
			if err := l.lock.Release(context.WithoutCancel(ctx), key); err != nil {
				slog.Warn("failed to release load lock", "source", path, "error", err)
			}
		}()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	cp, err := l.checkpoint.Load(l.index, path)
	if err != nil {
		slog.Warn("failed to load checkpoint, starting fresh", "source", path, "error", err)
		cp = nil
	}
	offset, pending := cp.ResumeFrom(info.Size())
	if !pending {
		slog.Debug("source unchanged since last load", "source", path, "lines", offset)
		return nil, nil
	}
	if cp == nil || offset == 0 {
		cp = &Checkpoint{Index: l.index, Source: path}
	}
	cp.StartedAt = time.Now().UTC()
	cp.Offset = offset
	cp.Completed = false

	slog.Info("starting load",
		"index", l.index,
		"source", path,
		"resume_line", offset,
		"batch_size", l.batchSize,
	)

	start := time.Now()
	loaded, failed, runErr := l.loadFile(ctx, path, cp)
	if runErr == nil {
		cp.Completed = true
		cp.Size = info.Size()
	}
	if err := l.checkpoint.Save(cp); err != nil {
		slog.Warn("failed to save checkpoint", "source", path, "error", err)
	}

	metric := newRunMetric(l.index, path, start, loaded, failed, l.batchSize, runErr)
	l.metrics.ObserveLoad(metric.Status, loaded)
	if l.recorder != nil {
		if err := l.recorder.Record(context.WithoutCancel(ctx), metric); err != nil {
			slog.Warn("failed to record run metric", "source", path, "error", err)
		}
	}

	if runErr != nil {
		return metric, runErr
	}
	slog.Info("load completed",
		"index", l.index,
		"source", path,
		"loaded", loaded,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
		"docs_per_sec", metric.DocsPerSec,
	)
	return metric, nil
}

// loadFile streams path from cp.Offset, inserting a batch at a time and
// advancing cp after each one.
func (l *Loader) loadFile(ctx context.Context, path string, cp *Checkpoint) (loaded, failed int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		line  int64
		batch []map[string]any
	)
	flush := func() error {
		if len(batch) > 0 {
			res, err := l.inserter.Insert(ctx, l.index, batch)
			if res != nil {
				loaded += int64(res.Success)
				failed += int64(res.Failed)
				cp.Loaded += int64(res.Success)
				cp.Failed += int64(res.Failed)
			}
			if err != nil {
				return fmt.Errorf("inserting batch ending at line %d: %w", line, err)
			}
			batch = batch[:0]
		}
		cp.Offset = line
		return l.checkpoint.Save(cp)
	}

	for sc.Scan() {
		line++
		if line <= cp.Offset {
			continue
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		doc, err := DecodeLine(raw)
		if err != nil {
			slog.Warn("skipping malformed line", "source", path, "line", line, "error", err)
			failed++
			cp.Failed++
			continue
		}
		batch = append(batch, doc)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return loaded, failed, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return loaded, failed, fmt.Errorf("reading source at line %d: %w", line, err)
	}
	if err := flush(); err != nil {
		return loaded, failed, err
	}
	return loaded, failed, nil
}

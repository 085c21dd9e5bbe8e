package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/leonunix/docquery/internal/bulk"
	"github.com/leonunix/docquery/internal/config"
	"github.com/leonunix/docquery/internal/metrics"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]map[string]any

	// rejectField marks documents carrying it as failed.
	rejectField string
	failOnCall  int // 1-based; 0 disables
	calls       int
}

func (f *fakeInserter) Insert(_ context.Context, _ string, docs []map[string]any) (*bulk.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return nil, errors.New("cluster unavailable")
	}
	batch := append([]map[string]any(nil), docs...)
	f.batches = append(f.batches, batch)

	res := &bulk.Result{Total: len(docs)}
	for _, d := range docs {
		if _, bad := d[f.rejectField]; f.rejectField != "" && bad {
			res.Failed++
			continue
		}
		res.Success++
	}
	res.HasErrors = res.Failed > 0
	return res, nil
}

func (f *fakeInserter) docs() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func (l *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, key)
	return nil
}

type fakeRecorder struct {
	metrics []*RunMetric
}

func (r *fakeRecorder) Record(_ context.Context, m *RunMetric) error {
	r.metrics = append(r.metrics, m)
	return nil
}

func writeLines(t *testing.T, path string, from, to int) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	for i := from; i < to; i++ {
		fmt.Fprintf(f, "{\"n\":%d}\n", i)
	}
}

func newTestLoader(t *testing.T, sources []string, ins Inserter, opts ...Option) *Loader {
	t.Helper()
	l, err := New(config.LoaderConfig{
		Index:         "logs",
		Sources:       sources,
		CheckpointDir: filepath.Join(t.TempDir(), "checkpoints"),
	}, ins, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(config.LoaderConfig{CheckpointDir: t.TempDir()}, &fakeInserter{}); err == nil {
		t.Fatalf("expected error for missing index")
	}
}

func TestLoader_LoadSource_Batches(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 25)

	ins := &fakeInserter{}
	rec := &fakeRecorder{}
	m := metrics.New()
	l := newTestLoader(t, []string{src}, ins, WithBatchSize(10), WithRunRecorder(rec), WithMetrics(m))

	metric, err := l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if len(ins.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(ins.batches))
	}
	if metric.DocumentsLoaded != 25 || metric.Status != "success" || metric.BatchSize != 10 {
		t.Fatalf("unexpected metric: %+v", metric)
	}
	if len(rec.metrics) != 1 || rec.metrics[0] != metric {
		t.Fatalf("expected the run to be recorded once, got %d", len(rec.metrics))
	}
	expected := `
# HELP docquery_loader_documents_total Documents loaded from NDJSON sources.
# TYPE docquery_loader_documents_total counter
docquery_loader_documents_total 25
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "docquery_loader_documents_total"); err != nil {
		t.Fatalf("loader metrics: %v", err)
	}

	cp, err := l.checkpoint.Load("logs", src)
	if err != nil || cp == nil {
		t.Fatalf("Load checkpoint: %v %v", cp, err)
	}
	if !cp.Completed || cp.Offset != 25 || cp.Loaded != 25 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
}

func TestLoader_LoadSource_MalformedLinesArePartial(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	content := "{\"n\":1}\n\nnot json\n{\"_id\":\"x\",\"_source\":{\"n\":2}}\n{\"n\":3,\"reject\":true}\n"
	if err := os.WriteFile(src, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ins := &fakeInserter{rejectField: "reject"}
	l := newTestLoader(t, []string{src}, ins)

	metric, err := l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if metric.DocumentsLoaded != 2 || metric.DocumentsFailed != 2 || metric.Status != "partial" {
		t.Fatalf("unexpected metric: %+v", metric)
	}
	docs := ins.docs()
	if len(docs) != 3 || docs[1]["_id"] != "x" {
		t.Fatalf("unexpected docs: %v", docs)
	}
}

func TestLoader_LoadSource_UnchangedIsSkipped(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 5)

	ins := &fakeInserter{}
	l := newTestLoader(t, []string{src}, ins)
	if _, err := l.LoadSource(context.Background(), src); err != nil {
		t.Fatalf("first load: %v", err)
	}
	metric, err := l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if metric != nil {
		t.Fatalf("expected skip, got %+v", metric)
	}
	if len(ins.docs()) != 5 {
		t.Fatalf("expected 5 docs total, got %d", len(ins.docs()))
	}
}

func TestLoader_LoadSource_GrowthLoadsOnlyNewLines(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 5)

	ins := &fakeInserter{}
	l := newTestLoader(t, []string{src}, ins)
	if _, err := l.LoadSource(context.Background(), src); err != nil {
		t.Fatalf("first load: %v", err)
	}

	writeLines(t, src, 5, 8)
	metric, err := l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if metric.DocumentsLoaded != 3 {
		t.Fatalf("expected 3 new docs, got %+v", metric)
	}
	docs := ins.docs()
	if len(docs) != 8 || docs[5]["n"] != float64(5) {
		t.Fatalf("unexpected docs: %v", docs)
	}

	cp, _ := l.checkpoint.Load("logs", src)
	if cp.Loaded != 8 || cp.Offset != 8 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
}

func TestLoader_LoadSource_ReplacedFileStartsOver(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 10)

	ins := &fakeInserter{}
	l := newTestLoader(t, []string{src}, ins)
	if _, err := l.LoadSource(context.Background(), src); err != nil {
		t.Fatalf("first load: %v", err)
	}

	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	writeLines(t, src, 100, 102)
	metric, err := l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if metric.DocumentsLoaded != 2 {
		t.Fatalf("expected 2 docs from the new file, got %+v", metric)
	}
	docs := ins.docs()
	if docs[len(docs)-2]["n"] != float64(100) {
		t.Fatalf("expected reload from the first line, got %v", docs[len(docs)-2])
	}
}

func TestLoader_LoadSource_FailureResumesFromLastBatch(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 30)

	ins := &fakeInserter{failOnCall: 2}
	rec := &fakeRecorder{}
	l := newTestLoader(t, []string{src}, ins, WithBatchSize(10), WithRunRecorder(rec))

	metric, err := l.LoadSource(context.Background(), src)
	if err == nil || !strings.Contains(err.Error(), "cluster unavailable") {
		t.Fatalf("expected insert failure, got %v", err)
	}
	if metric == nil || metric.Status != "failed" || metric.DocumentsLoaded != 10 {
		t.Fatalf("unexpected metric: %+v", metric)
	}
	if len(rec.metrics) != 1 {
		t.Fatalf("failed runs must be recorded too")
	}

	cp, _ := l.checkpoint.Load("logs", src)
	if cp.Completed || cp.Offset != 10 {
		t.Fatalf("expected checkpoint at line 10, got %+v", cp)
	}

	ins.failOnCall = 0
	metric, err = l.LoadSource(context.Background(), src)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if metric.DocumentsLoaded != 20 {
		t.Fatalf("expected 20 docs on resume, got %+v", metric)
	}
	docs := ins.docs()
	if len(docs) != 30 || docs[10]["n"] != float64(10) {
		t.Fatalf("resume replayed or skipped lines: %d docs", len(docs))
	}
}

func TestLoader_LoadSource_LockHeldSkips(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 3)

	lock := &fakeLock{held: map[string]bool{"logs:" + sourceKey(src): true}}
	ins := &fakeInserter{}
	l := newTestLoader(t, []string{src}, ins, WithDistLock(lock, time.Minute))

	metric, err := l.LoadSource(context.Background(), src)
	if err != nil || metric != nil {
		t.Fatalf("expected silent skip, got %+v %v", metric, err)
	}
	if len(ins.docs()) != 0 {
		t.Fatalf("no documents should be inserted while the lock is held")
	}
}

func TestLoader_LoadSource_LockReleased(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.ndjson")
	writeLines(t, src, 0, 3)

	lock := &fakeLock{}
	l := newTestLoader(t, []string{src}, &fakeInserter{}, WithDistLock(lock, time.Minute))
	if _, err := l.LoadSource(context.Background(), src); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if len(lock.acquired) != 1 || len(lock.released) != 1 || lock.released[0] != "logs:"+sourceKey(src) {
		t.Fatalf("unexpected lock usage: acquired=%v released=%v", lock.acquired, lock.released)
	}
}

func TestLoader_RunAll_GlobAndContinueOnError(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "b.ndjson"), 0, 2)
	writeLines(t, filepath.Join(dir, "a.ndjson"), 10, 13)
	missing := filepath.Join(dir, "missing.ndjson")

	ins := &fakeInserter{}
	l := newTestLoader(t, []string{filepath.Join(dir, "*.ndjson"), missing}, ins)

	err := l.RunAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing.ndjson") {
		t.Fatalf("expected error for the missing source, got %v", err)
	}
	docs := ins.docs()
	if len(docs) != 5 {
		t.Fatalf("expected 5 docs, got %d", len(docs))
	}
	if docs[0]["n"] != float64(10) {
		t.Fatalf("expected sources in sorted order, got %v first", docs[0])
	}
}

func TestLoader_RunAll_SameNameInDifferentDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
		line := fmt.Sprintf("{\"src\":%q}\n", sub)
		if err := os.WriteFile(filepath.Join(dir, sub, "events.ndjson"), []byte(line), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ins := &fakeInserter{}
	lock := &fakeLock{}
	l := newTestLoader(t, []string{filepath.Join(dir, "*", "events.ndjson")}, ins, WithDistLock(lock, time.Minute))
	if err := l.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	docs := ins.docs()
	if len(docs) != 2 || docs[0]["src"] != "a" || docs[1]["src"] != "b" {
		t.Fatalf("expected both files to load, got %v", docs)
	}
	if len(lock.acquired) != 2 || lock.acquired[0] == lock.acquired[1] {
		t.Fatalf("expected distinct lock keys, got %v", lock.acquired)
	}
}

func TestLoader_RunAll_NoSources(t *testing.T) {
	l := newTestLoader(t, nil, &fakeInserter{})
	if err := l.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
}

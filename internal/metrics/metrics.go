// Package metrics exposes Prometheus collectors for query execution, bulk
// inserts and loader runs. All methods are safe on a nil *Metrics, which
// disables collection.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docquery"

// Metrics holds a private registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	bulkDocs      *prometheus.CounterVec
	loaderRuns    *prometheus.CounterVec
	loaderDocs    prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Executed operations by operation and status.",
		}, []string{"op", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Operation latency including compilation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		bulkDocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_documents_total",
			Help:      "Documents submitted through bulk inserts by outcome.",
		}, []string{"outcome"}),
		loaderRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_runs_total",
			Help:      "Loader source runs by status.",
		}, []string{"status"}),
		loaderDocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_documents_total",
			Help:      "Documents loaded from NDJSON sources.",
		}),
	}
	reg.MustRegister(
		m.queries,
		m.queryDuration,
		m.bulkDocs,
		m.loaderRuns,
		m.loaderDocs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQuery records one operation that started at start.
func (m *Metrics) ObserveQuery(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queries.WithLabelValues(op, status).Inc()
	m.queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AddBulk records the outcome counts of a bulk insert.
func (m *Metrics) AddBulk(success, failed int) {
	if m == nil {
		return
	}
	m.bulkDocs.WithLabelValues("success").Add(float64(success))
	m.bulkDocs.WithLabelValues("failed").Add(float64(failed))
}

// ObserveLoad records one loader source run.
func (m *Metrics) ObserveLoad(status string, docs int64) {
	if m == nil {
		return
	}
	m.loaderRuns.WithLabelValues(status).Inc()
	m.loaderDocs.Add(float64(docs))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

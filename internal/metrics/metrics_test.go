package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery("find", time.Now(), nil)
	m.ObserveQuery("find", time.Now(), errors.New("boom"))
	m.ObserveQuery("count", time.Now(), nil)

	if got := testutil.ToFloat64(m.queries.WithLabelValues("find", "ok")); got != 1 {
		t.Fatalf("find ok = %v", got)
	}
	if got := testutil.ToFloat64(m.queries.WithLabelValues("find", "error")); got != 1 {
		t.Fatalf("find error = %v", got)
	}
	if got := testutil.CollectAndCount(m.queryDuration); got != 2 {
		t.Fatalf("expected 2 histogram series, got %d", got)
	}
}

func TestAddBulkAndObserveLoad(t *testing.T) {
	m := New()
	m.AddBulk(1000, 1)
	m.ObserveLoad("success", 1000)

	if got := testutil.ToFloat64(m.bulkDocs.WithLabelValues("success")); got != 1000 {
		t.Fatalf("bulk success = %v", got)
	}
	if got := testutil.ToFloat64(m.bulkDocs.WithLabelValues("failed")); got != 1 {
		t.Fatalf("bulk failed = %v", got)
	}
	if got := testutil.ToFloat64(m.loaderDocs); got != 1000 {
		t.Fatalf("loader docs = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("find", time.Now(), nil)
	m.AddBulk(1, 1)
	m.ObserveLoad("failed", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler status = %d", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveQuery("search", time.Now(), nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `docquery_queries_total{op="search",status="ok"} 1`) {
		t.Fatalf("metrics output missing query counter:\n%s", body)
	}
}

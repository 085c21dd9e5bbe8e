package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func lockSource(expires time.Time) map[string]any {
	return map[string]any{
		"found":         true,
		"_seq_no":       5,
		"_primary_term": 1,
		"_source": map[string]any{
			"owner":       "other-host-999",
			"acquired_at": expires.Add(-time.Hour).Format(time.RFC3339),
			"expires_at":  expires.Format(time.RFC3339),
		},
	}
}

func TestLock_AcquireFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/"+LockIndex+"/_doc/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Query().Get("op_type") == "create":
			var doc lockDoc
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc.Owner == "" {
				t.Errorf("bad lock doc: %+v %v", doc, err)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"result":"created"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ok, err := NewLock(NewOpenSearch(srv.URL, "", "")).Acquire(context.Background(), "products-a.ndjson", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
}

func TestLock_AlreadyHeld(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(lockSource(time.Now().Add(time.Hour)))
		case http.MethodPut:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ok, err := NewLock(NewOpenSearch(srv.URL, "", "")).Acquire(context.Background(), "k", time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Fatal("expected lock NOT to be acquired (already held)")
	}
}

func TestLock_ExpiredLockIsCleanedUp(t *testing.T) {
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(lockSource(time.Now().Add(-time.Hour)))
		case http.MethodDelete:
			if r.URL.Query().Get("if_seq_no") != "5" || r.URL.Query().Get("if_primary_term") != "1" {
				t.Errorf("cleanup without concurrency control: %s", r.URL.RawQuery)
			}
			deleted.Store(true)
		case http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	ok, err := NewLock(NewOpenSearch(srv.URL, "", "")).Acquire(context.Background(), "k", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if !deleted.Load() {
		t.Fatal("expected expired lock to be deleted")
	}
}

func TestLock_IndexMissingIsCreated(t *testing.T) {
	var creates, indexCreated int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/"+LockIndex:
			atomic.AddInt32(&indexCreated, 1)
		case r.Method == http.MethodPut:
			if atomic.AddInt32(&creates, 1) == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	ok, err := NewLock(NewOpenSearch(srv.URL, "", "")).Acquire(context.Background(), "k", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if creates != 2 || indexCreated != 1 {
		t.Fatalf("creates=%d indexCreated=%d", creates, indexCreated)
	}
}

func TestLock_Release(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	lock := NewLock(NewOpenSearch(srv.URL, "admin", "secret"))
	if err := lock.Release(context.Background(), "k"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(context.Background(), "k"); err != nil {
		t.Fatalf("Release should not error on 404: %v", err)
	}
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// LockIndex holds one document per held lock.
const LockIndex = ".docquery-locks"

// Lock is a cluster-wide mutex built on lock documents. Acquisition uses
// op_type=create, so exactly one owner can create the document; expired
// locks are removed with optimistic concurrency control (_seq_no and
// _primary_term).
type Lock struct {
	os    *OpenSearch
	owner string
	now   func() time.Time
}

// NewLock returns a lock manager owned by this host and process.
func NewLock(o *OpenSearch) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{os: o, owner: fmt.Sprintf("%s-%d", hostname, os.Getpid()), now: time.Now}
}

type lockDoc struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func lockPath(key string) string {
	return "/" + LockIndex + "/_doc/" + url.PathEscape(key)
}

// Acquire tries to take the lock for key. It reports false without error
// when another owner holds an unexpired lock.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := l.cleanupExpired(ctx, key); err != nil {
		slog.Debug("lock cleanup failed (non-fatal)", "key", key, "error", err)
	}

	acquired, err := l.tryCreate(ctx, key, ttl)
	if err != nil && IsNotFound(err) {
		// auto_create_index may be disabled on the cluster.
		if createErr := l.ensureIndex(ctx); createErr != nil {
			return false, fmt.Errorf("creating lock index: %w", createErr)
		}
		return l.tryCreate(ctx, key, ttl)
	}
	return acquired, err
}

// Release drops the lock for key. Releasing a missing lock succeeds.
func (l *Lock) Release(ctx context.Context, key string) error {
	_, err := l.os.do(ctx, http.MethodDelete, lockPath(key)+"?refresh=true", "", nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return nil
}

func (l *Lock) tryCreate(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := l.now().UTC()
	body, err := json.Marshal(lockDoc{Owner: l.owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return false, fmt.Errorf("marshaling lock doc: %w", err)
	}

	_, err = l.os.do(ctx, http.MethodPut, lockPath(key)+"?op_type=create&refresh=true", "application/json", body)
	var statusErr *HTTPStatusError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
		return false, nil
	case IsNotFound(err):
		return false, err
	default:
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
}

func (l *Lock) cleanupExpired(ctx context.Context, key string) error {
	respBody, err := l.os.do(ctx, http.MethodGet, lockPath(key), "", nil)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var result struct {
		Found       bool    `json:"found"`
		Source      lockDoc `json:"_source"`
		SeqNo       int64   `json:"_seq_no"`
		PrimaryTerm int64   `json:"_primary_term"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return err
	}
	if !result.Found || !l.now().UTC().After(result.Source.ExpiresAt) {
		return nil
	}

	slog.Info("cleaning up expired lock",
		"key", key,
		"owner", result.Source.Owner,
		"expired_at", result.Source.ExpiresAt,
	)
	path := fmt.Sprintf("%s?if_seq_no=%d&if_primary_term=%d&refresh=true", lockPath(key), result.SeqNo, result.PrimaryTerm)
	_, err = l.os.do(ctx, http.MethodDelete, path, "", nil)
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		// Another owner cleaned it up first.
		return nil
	}
	return err
}

func (l *Lock) ensureIndex(ctx context.Context) error {
	body := []byte(`{"settings":{"number_of_shards":1,"number_of_replicas":1}}`)
	_, err := l.os.do(ctx, http.MethodPut, "/"+LockIndex, "application/json", body)
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(statusErr.Body, "resource_already_exists_exception") {
		return nil
	}
	return err
}

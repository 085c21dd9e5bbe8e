package loader

import (
	"context"
	"time"

	"github.com/leonunix/docquery/internal/bulk"
)

// Inserter writes one batch of documents into an index.
type Inserter interface {
	Insert(ctx context.Context, index string, docs []map[string]any) (*bulk.Result, error)
}

// DistLock keeps concurrent loaders from ingesting the same source twice.
type DistLock interface {
	// Acquire reports false when another instance holds the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

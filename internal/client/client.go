// Package client executes query builders against an OpenSearch cluster:
// compile, send, normalize, and advance pagination cursors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leonunix/docquery/internal/backend"
	"github.com/leonunix/docquery/internal/bulk"
	"github.com/leonunix/docquery/internal/config"
	"github.com/leonunix/docquery/internal/dsl"
	"github.com/leonunix/docquery/internal/metrics"
	"github.com/leonunix/docquery/internal/query"
	"github.com/leonunix/docquery/internal/util"
)

// Transport is the subset of cluster operations the client needs.
type Transport interface {
	dsl.MappingLookup
	bulk.Dispatcher
	Search(ctx context.Context, index string, body []byte) (*backend.SearchResponse, error)
	Count(ctx context.Context, index string, body []byte) (int64, error)
	DeleteByQuery(ctx context.Context, index string, body []byte, refresh bool) (*backend.ByQueryResponse, error)
	UpdateByQuery(ctx context.Context, index string, body []byte, refresh bool) (*backend.ByQueryResponse, error)
	OpenPIT(ctx context.Context, index, keepAlive string) (string, error)
	ClosePIT(ctx context.Context, id string) error
	Raw(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// Client runs builders through a Compiler and a Transport.
type Client struct {
	transport Transport
	compiler  *dsl.Compiler
	bulk      *bulk.Aggregator
	metrics   *metrics.Metrics
	refresh   bool
	now       func() time.Time

	returnData   bool
	compilerOpts []dsl.Option
	bulkOpts     []bulk.Option
}

// Option configures a Client.
type Option func(*Client)

func WithCompilerOptions(opts ...dsl.Option) Option {
	return func(c *Client) { c.compilerOpts = append(c.compilerOpts, opts...) }
}

func WithBulkOptions(opts ...bulk.Option) Option {
	return func(c *Client) { c.bulkOpts = append(c.bulkOpts, opts...) }
}

// WithMetrics records every operation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRefresh makes writes wait for the affected shards to refresh.
func WithRefresh(refresh bool) Option {
	return func(c *Client) { c.refresh = refresh }
}

// WithReturnData makes Insert return the inserted documents, ids
// included, instead of the aggregate metadata.
func WithReturnData(returnData bool) Option {
	return func(c *Client) { c.returnData = returnData }
}

// New returns a client over t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{transport: t, refresh: true, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.compiler = dsl.NewCompiler(t, c.compilerOpts...)
	c.bulk = bulk.NewAggregator(t, append([]bulk.Option{bulk.WithRefresh(c.refresh)}, c.bulkOpts...)...)
	return c
}

// FromConfig builds the OpenSearch transport and a client from cfg.
func FromConfig(cfg *config.Config, m *metrics.Metrics) (*Client, *backend.OpenSearch, error) {
	httpClient, err := util.NewHTTPClient(cfg.OpenSearch.TLSConfig, cfg.OpenSearch.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("creating http client: %w", err)
	}
	transport := backend.NewOpenSearch(cfg.OpenSearch.URL, cfg.OpenSearch.Username, cfg.OpenSearch.Password,
		backend.WithHTTPClient(httpClient),
		backend.WithRetries(cfg.OpenSearch.Retries),
	)

	bulkOpts := []bulk.Option{
		bulk.WithChunkSize(cfg.Bulk.ChunkSize),
		bulk.WithWorkers(cfg.Bulk.Workers),
		bulk.WithGeneratedIDs(cfg.Bulk.GenerateIDs),
	}
	if cfg.Bulk.SchemaFile != "" {
		schema, err := bulk.LoadSchema(cfg.Bulk.SchemaFile)
		if err != nil {
			return nil, nil, err
		}
		bulkOpts = append(bulkOpts, bulk.WithSchema(schema))
	}

	c := New(transport,
		WithRefresh(cfg.Bulk.Refresh),
		WithReturnData(cfg.Bulk.ReturnData),
		WithMetrics(m),
		WithCompilerOptions(
			dsl.WithBypassMapValidation(cfg.Query.BypassMapValidation),
			dsl.WithAllowIDSort(cfg.Query.AllowIDSort),
			dsl.WithInnerHitsSize(cfg.Query.InnerHitsSize),
		),
		WithBulkOptions(bulkOpts...),
	)
	return c, transport, nil
}

// Compiler returns the compiler used by c.
func (c *Client) Compiler() *dsl.Compiler { return c.compiler }

// execErr converts a transport failure into an ExecutionError carrying the
// engine's own reason when there is one.
func execErr(op string, err error) error {
	var statusErr *backend.HTTPStatusError
	if errors.As(err, &statusErr) {
		return &query.ExecutionError{Op: op, Message: statusErr.Reason(), Err: err}
	}
	return &query.ExecutionError{Op: op, Err: err}
}

func (c *Client) observe(op string, start time.Time, err *error) {
	c.metrics.ObserveQuery(op, start, *err)
}

func marshalBody(op, index string, body map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}
	slog.Debug("compiled request", "op", op, "index", index, "dsl", string(data))
	return data, nil
}

// Package bulk inserts document batches of any size through the _bulk API.
//
// Input is split into fixed-size chunks. Every chunk is dispatched even if
// earlier ones failed, and the per-chunk outcomes are folded in chunk order
// into a single Result.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/leonunix/docquery/internal/backend"
)

// DefaultChunkSize keeps bulk payloads well under typical request limits.
const DefaultChunkSize = 1000

// Dispatcher sends one chunk to the cluster.
type Dispatcher interface {
	Bulk(ctx context.Context, index string, docs []map[string]any, refresh bool) (*backend.BulkResponse, error)
}

// Aggregator chunks, dispatches and folds bulk inserts.
type Aggregator struct {
	dispatcher  Dispatcher
	chunkSize   int
	workers     int
	refresh     bool
	generateIDs bool
	schema      *gojsonschema.Schema
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithChunkSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithWorkers dispatches up to n chunks concurrently. 1 is sequential.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithRefresh(refresh bool) Option {
	return func(a *Aggregator) { a.refresh = refresh }
}

// WithGeneratedIDs stamps a random UUID on documents without an _id.
func WithGeneratedIDs(generate bool) Option {
	return func(a *Aggregator) { a.generateIDs = generate }
}

// WithSchema validates every document before dispatch. Invalid documents
// are recorded as failed and never sent.
func WithSchema(schema *gojsonschema.Schema) Option {
	return func(a *Aggregator) { a.schema = schema }
}

// LoadSchema compiles the JSON schema stored at path.
func LoadSchema(path string) (*gojsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", path, err)
	}
	return schema, nil
}

// NewAggregator returns an aggregator dispatching through d.
func NewAggregator(d Dispatcher, opts ...Option) *Aggregator {
	a := &Aggregator{dispatcher: d, chunkSize: DefaultChunkSize, workers: 1, refresh: true}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Insert writes docs into index. Chunk failures never abort the batch;
// an error is returned only when ctx ends before every chunk was sent, in
// which case the result covers the chunks that completed.
func (a *Aggregator) Insert(ctx context.Context, index string, docs []map[string]any) (*Result, error) {
	res := &Result{Data: []map[string]any{}, ErrorBag: []ErrorEntry{}}
	if len(docs) == 0 {
		return res, nil
	}

	var chunks [][]map[string]any
	for start := 0; start < len(docs); start += a.chunkSize {
		end := start + a.chunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[start:end])
	}

	outcomes := make([]*chunkOutcome, len(chunks))
	var err error
	if a.workers <= 1 || len(chunks) == 1 {
		for i, chunk := range chunks {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
				break
			}
			outcomes[i] = a.runChunk(ctx, index, i, i*a.chunkSize, chunk)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.workers)
		for i, chunk := range chunks {
			i, chunk := i, chunk
			g.Go(func() error {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				outcomes[i] = a.runChunk(gctx, index, i, i*a.chunkSize, chunk)
				return nil
			})
		}
		err = g.Wait()
	}

	for _, out := range outcomes {
		if out != nil {
			res.fold(out)
		}
	}
	res.finish()

	if res.HasErrors {
		slog.Warn("bulk insert completed with failures",
			"index", index,
			"total", res.Total,
			"success", res.Success,
			"failed", res.Failed,
			"chunks", len(chunks),
		)
	} else {
		slog.Debug("bulk insert completed", "index", index, "total", res.Total, "took_ms", res.Took)
	}

	if err != nil {
		return res, fmt.Errorf("bulk insert into %s interrupted: %w", index, err)
	}
	return res, nil
}

type chunkOutcome struct {
	hasErrors bool
	took      int
	total     int
	success   int
	failed    int
	created   int
	modified  int
	data      []map[string]any
	errs      []ErrorEntry
}

func (a *Aggregator) runChunk(ctx context.Context, index string, chunkNo, offset int, docs []map[string]any) *chunkOutcome {
	out := &chunkOutcome{total: len(docs)}

	send := make([]map[string]any, 0, len(docs))
	positions := make([]int, 0, len(docs))
	for i, doc := range docs {
		if a.schema != nil {
			if reason := a.validate(doc); reason != "" {
				out.failed++
				out.errs = append(out.errs, ErrorEntry{
					Chunk:    chunkNo,
					Position: offset + i,
					ID:       idOf(doc),
					Reason:   reason,
					Document: doc,
				})
				continue
			}
		}
		if a.generateIDs {
			if _, ok := doc["_id"]; !ok {
				stamped := make(map[string]any, len(doc)+1)
				for k, v := range doc {
					stamped[k] = v
				}
				stamped["_id"] = uuid.NewString()
				doc = stamped
			}
		}
		send = append(send, doc)
		positions = append(positions, offset+i)
	}
	out.hasErrors = out.failed > 0
	if len(send) == 0 {
		return out
	}

	resp, err := a.dispatcher.Bulk(ctx, index, send, a.refresh)
	if err != nil {
		slog.Error("bulk chunk failed", "index", index, "chunk", chunkNo, "docs", len(send), "error", err)
		out.hasErrors = true
		out.failed += len(send)
		out.errs = append(out.errs, ErrorEntry{Chunk: chunkNo, Position: -1, Reason: err.Error()})
		return out
	}

	out.took = resp.Took
	for i, doc := range send {
		if i >= len(resp.Items) {
			// The cluster acknowledged fewer actions than were sent.
			out.hasErrors = true
			out.failed++
			out.errs = append(out.errs, ErrorEntry{Chunk: chunkNo, Position: positions[i], ID: idOf(doc), Reason: "no bulk response item"})
			continue
		}
		item := resp.Items[i]
		if item.Failed() {
			out.hasErrors = true
			out.failed++
			out.errs = append(out.errs, ErrorEntry{
				Chunk:    chunkNo,
				Position: positions[i],
				ID:       item.ID,
				Status:   item.Status,
				Reason:   itemReason(item.Error),
				Document: doc,
			})
			continue
		}
		out.success++
		switch item.Result {
		case "created":
			out.created++
		case "updated":
			out.modified++
		}
		echo := make(map[string]any, len(doc)+1)
		for k, v := range doc {
			echo[k] = v
		}
		echo["_id"] = item.ID
		out.data = append(out.data, echo)
	}
	return out
}

func (a *Aggregator) validate(doc map[string]any) string {
	result, err := a.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return ""
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return "document invalid against schema: " + strings.Join(errs, "; ")
}

func idOf(doc map[string]any) string {
	if id, ok := doc["_id"]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

func itemReason(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var e struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &e); err != nil || (e.Type == "" && e.Reason == "") {
		return string(raw)
	}
	if e.Reason == "" {
		return e.Type
	}
	return e.Type + ": " + e.Reason
}

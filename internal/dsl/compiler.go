// Package dsl compiles query builders into OpenSearch request bodies.
//
// Compilation is synchronous and performs no I/O except the one field
// mapping lookup needed to resolve keyword fields, which happens lazily
// and at most once per Compile call. Everything staged while compiling
// (keyword cache, geo filters, random score) lives on a per-call context,
// so a Compiler can be shared between goroutines.
package dsl

import (
	"context"

	"github.com/leonunix/docquery/internal/cursor"
	"github.com/leonunix/docquery/internal/query"
)

// MappingLookup returns the field mapping of an index as field name to
// engine type. Multi-field sub-fields are reported as "field.sub".
type MappingLookup interface {
	FieldMapping(ctx context.Context, index, pattern string) (map[string]string, error)
}

// Compiler turns builders into requests.
type Compiler struct {
	lookup        MappingLookup
	bypass        bool
	allowIDSort   bool
	innerHitsSize int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithBypassMapValidation skips keyword resolution: in/nin use the field
// as given and exact no longer requires a keyword field.
func WithBypassMapValidation(bypass bool) Option {
	return func(c *Compiler) { c.bypass = bypass }
}

// WithAllowIDSort keeps sorts on _id, which are dropped by default.
func WithAllowIDSort(allow bool) Option {
	return func(c *Compiler) { c.allowIDSort = allow }
}

// WithInnerHitsSize sets the inner_hits size used when a nested query has
// no options of its own.
func WithInnerHitsSize(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.innerHitsSize = n
		}
	}
}

// NewCompiler returns a compiler resolving keyword fields through lookup.
// A nil lookup behaves like an index without keyword fields.
func NewCompiler(lookup MappingLookup, opts ...Option) *Compiler {
	c := &Compiler{lookup: lookup, innerHitsSize: 100}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Meta is request state that never goes on the wire.
type Meta struct {
	Cursor          *cursor.State
	PrevSearchAfter []any
}

// Request is a compiled search request.
type Request struct {
	Index string
	Size  *int
	From  *int
	Body  map[string]any
	Meta  Meta
}

// Payload returns the body with size and from merged in.
func (r *Request) Payload() map[string]any {
	out := make(map[string]any, len(r.Body)+2)
	for k, v := range r.Body {
		out[k] = v
	}
	if r.Size != nil {
		out["size"] = *r.Size
	}
	if r.From != nil {
		out["from"] = *r.From
	}
	return out
}

// Query returns the compiled query object.
func (r *Request) Query() map[string]any {
	q, _ := r.Body["query"].(map[string]any)
	return q
}

// Compile translates b into a search request against index. On error no
// partial request is returned.
func (c *Compiler) Compile(ctx context.Context, index string, b *query.Builder) (*Request, error) {
	if b == nil {
		b = query.New()
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	cc := c.newContext(ctx, index)

	q, err := cc.compileRoot(b)
	if err != nil {
		return nil, err
	}

	req := &Request{Index: index, Body: map[string]any{"query": q}}
	if cols := b.SourceColumns(); len(cols) > 0 {
		req.Body["_source"] = cols
	}

	frag, err := cc.compileOptions(b.Options, false)
	if err != nil {
		return nil, err
	}
	frag.applyTo(req)

	cc.assemble(req)
	return req, nil
}

// CompileQuery compiles only the predicate part of b, as used by count,
// delete-by-query and update-by-query.
func (c *Compiler) CompileQuery(ctx context.Context, index string, b *query.Builder) (map[string]any, error) {
	if b == nil {
		b = query.New()
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	cc := c.newContext(ctx, index)
	q, err := cc.compileRoot(b)
	if err != nil {
		return nil, err
	}
	// Geo filters still restrict the match set; random score is irrelevant
	// without hits.
	if _, err := cc.compileOptions(b.Options, false); err != nil {
		return nil, err
	}
	req := &Request{Body: map[string]any{"query": q}}
	cc.score = nil
	cc.assemble(req)
	return req.Query(), nil
}

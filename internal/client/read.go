package client

import (
	"context"
	"fmt"
	"time"

	"github.com/leonunix/docquery/internal/cursor"
	"github.com/leonunix/docquery/internal/dsl"
	"github.com/leonunix/docquery/internal/query"
	"github.com/leonunix/docquery/internal/result"
)

// DSL compiles b without executing it and returns the request body,
// size and from included.
func (c *Client) DSL(ctx context.Context, index string, b *query.Builder) (map[string]any, error) {
	req, err := c.compiler.Compile(ctx, index, b)
	if err != nil {
		return nil, err
	}
	return req.Payload(), nil
}

// Find returns the documents matching b. Builders in distinct mode are
// read as distinct term buckets.
func (c *Client) Find(ctx context.Context, index string, b *query.Builder) (res *result.Result, err error) {
	if b != nil && b.DistinctMode() != query.DistinctOff {
		return c.Distinct(ctx, index, b)
	}
	defer c.observe("find", time.Now(), &err)

	req, err := c.compiler.Compile(ctx, index, b)
	if err != nil {
		return nil, err
	}
	return c.search(ctx, "find", req)
}

func (c *Client) search(ctx context.Context, op string, req *dsl.Request) (*result.Result, error) {
	payload := req.Payload()
	body, err := marshalBody(op, req.Index, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Search(ctx, req.Index, body)
	if err != nil {
		return nil, execErr(op, err)
	}
	return result.FromSearch(resp, payload), nil
}

// First returns the first matching document, or nil when nothing matches.
func (c *Client) First(ctx context.Context, index string, b *query.Builder) (result.Document, error) {
	if b == nil {
		b = query.New()
	}
	b = b.Clone()
	b.Limit(1)
	res, err := c.Find(ctx, index, b)
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

// Search runs a full-text search. b must carry a term chain.
func (c *Client) Search(ctx context.Context, index string, b *query.Builder) (*result.Result, error) {
	if b == nil || b.SearchQuery() == "" {
		return nil, &query.ParameterError{Msg: "search requires a term; start the chain with Term, FuzzyTerm, RegEx or Phrase"}
	}
	return c.Find(ctx, index, b)
}

// Count returns the number of documents matching b.
func (c *Client) Count(ctx context.Context, index string, b *query.Builder) (n int64, err error) {
	defer c.observe("count", time.Now(), &err)

	q, err := c.compiler.CompileQuery(ctx, index, b)
	if err != nil {
		return 0, err
	}
	body, err := marshalBody("count", index, map[string]any{"query": q})
	if err != nil {
		return 0, err
	}
	n, err = c.transport.Count(ctx, index, body)
	if err != nil {
		return 0, execErr("count", err)
	}
	return n, nil
}

// Aggregate computes fn over columns. Values are keyed by dsl.AggName, or
// dsl.MatrixAggName for matrix stats. A count without columns reports the
// exact hit total in Meta.Total.
func (c *Client) Aggregate(ctx context.Context, index string, b *query.Builder, fn dsl.AggFunc, columns ...string) (res *result.Result, err error) {
	defer c.observe("aggregate", time.Now(), &err)

	req, err := c.compiler.CompileAggregate(ctx, index, b, fn, columns...)
	if err != nil {
		return nil, err
	}
	return c.aggregate(ctx, req)
}

// Agg computes several functions over one column in a single request.
func (c *Client) Agg(ctx context.Context, index string, b *query.Builder, fns []dsl.AggFunc, column string) (res *result.Result, err error) {
	defer c.observe("aggregate", time.Now(), &err)

	if len(fns) == 0 {
		return nil, &query.ParameterError{Msg: "at least one aggregate function is required"}
	}
	var merged *dsl.Request
	aggs := map[string]any{}
	for _, fn := range fns {
		req, err := c.compiler.CompileAggregate(ctx, index, b, fn, column)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = req
		}
		if a, ok := req.Body["aggs"].(map[string]any); ok {
			for k, v := range a {
				aggs[k] = v
			}
		}
	}
	merged.Body["aggs"] = aggs
	return c.aggregate(ctx, merged)
}

func (c *Client) aggregate(ctx context.Context, req *dsl.Request) (*result.Result, error) {
	payload := req.Payload()
	body, err := marshalBody("aggregate", req.Index, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Search(ctx, req.Index, body)
	if err != nil {
		return nil, execErr("aggregate", err)
	}
	return result.FromAggregations(resp, payload)
}

// Distinct returns one document per distinct combination of the selected
// columns, with "_count" when b was built with Distinct(true).
func (c *Client) Distinct(ctx context.Context, index string, b *query.Builder) (res *result.Result, err error) {
	defer c.observe("distinct", time.Now(), &err)

	req, err := c.compiler.CompileDistinct(ctx, index, b)
	if err != nil {
		return nil, err
	}
	payload := req.Payload()
	body, err := marshalBody("distinct", index, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Search(ctx, index, body)
	if err != nil {
		return nil, execErr("distinct", err)
	}
	return result.FromDistinct(resp, b.SourceColumns(), b.DistinctMode() == query.DistinctWithCount, payload)
}

// Paginate fetches the page after the one described by token, perPage
// documents at a time, and returns the advanced token in Meta.Cursor. An
// empty token starts at the first page. b must sort on at least one field.
func (c *Client) Paginate(ctx context.Context, index string, b *query.Builder, perPage int, token string) (*result.Result, error) {
	if b == nil || len(b.Sorts) == 0 {
		return nil, &query.ParameterError{Msg: "cursor pagination requires at least one sort"}
	}
	if perPage <= 0 {
		return nil, &query.ParameterError{Msg: fmt.Sprintf("page size must be positive, got %d", perPage)}
	}
	st, err := cursor.Decode(token)
	if err != nil {
		return nil, &query.ParameterError{Msg: err.Error()}
	}

	b = b.Clone()
	b.Limit(perPage)
	b.From = 0
	b.WithCursor(st)

	res, err := c.Find(ctx, index, b)
	if err != nil {
		return nil, err
	}
	next := st.Advance(len(res.Documents), res.Meta.LastSort, res.Meta.Total, perPage, c.now())
	if res.Meta.Cursor, err = next.Encode(); err != nil {
		return nil, err
	}
	return res, nil
}

// PreviousPage rewinds token so that the next Paginate call returns the
// page before the current one. On the first page the token is returned
// unchanged.
func PreviousPage(token string) (string, error) {
	st, err := cursor.Decode(token)
	if err != nil {
		return "", &query.ParameterError{Msg: err.Error()}
	}
	prev, ok := st.Previous()
	if !ok {
		return token, nil
	}
	return prev.Encode()
}

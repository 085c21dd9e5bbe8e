package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leonunix/docquery/internal/query"
	"github.com/leonunix/docquery/internal/result"
)

// Insert bulk-indexes docs. Per-document failures do not produce an error;
// they are reported by the result's bulk outcome and error message. The
// documents of the result are the aggregate metadata unless the client was
// built WithReturnData.
func (c *Client) Insert(ctx context.Context, index string, docs []map[string]any) (res *result.Result, err error) {
	defer c.observe("insert", time.Now(), &err)

	out, err := c.bulk.Insert(ctx, index, docs)
	if out != nil {
		c.metrics.AddBulk(out.Success, out.Failed)
	}
	if err != nil {
		return nil, execErr("insert", err)
	}
	return result.FromBulk(out, c.returnData), nil
}

// Update sets values on every document matching b.
func (c *Client) Update(ctx context.Context, index string, b *query.Builder, values map[string]any) (*result.Result, error) {
	if len(values) == 0 {
		return nil, &query.ParameterError{Msg: "update requires at least one value"}
	}
	return c.updateByQuery(ctx, "update", index, b, values, nil)
}

// Increment adds amount to field on every document matching b, treating a
// missing field as zero. extra values are set in the same pass.
func (c *Client) Increment(ctx context.Context, index string, b *query.Builder, field string, amount float64, extra map[string]any) (*result.Result, error) {
	if field == "" {
		return nil, &query.ParameterError{Msg: "increment requires a field"}
	}
	if b == nil {
		b = query.New()
	}
	b = b.Clone()
	b.WhereGroup(query.NewTree().Where(field, "exists", false).OrWhereNotNull(field))
	return c.updateByQuery(ctx, "increment", index, b, extra, map[string]any{field: amount})
}

// Decrement subtracts amount from field.
func (c *Client) Decrement(ctx context.Context, index string, b *query.Builder, field string, amount float64, extra map[string]any) (*result.Result, error) {
	return c.Increment(ctx, index, b, field, -amount, extra)
}

func (c *Client) updateByQuery(ctx context.Context, op, index string, b *query.Builder, set, inc map[string]any) (res *result.Result, err error) {
	defer c.observe(op, time.Now(), &err)

	q, err := c.compiler.CompileQuery(ctx, index, b)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"query": q, "script": updateScript(set, inc)}
	body, err := marshalBody(op, index, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.UpdateByQuery(ctx, index, body, c.refresh)
	if err != nil {
		return nil, execErr(op, err)
	}
	return result.FromByQuery(resp, payload), nil
}

// updateScript builds a painless script assigning params.set and adding
// params.inc. Keys are sorted so the script source is deterministic.
func updateScript(set, inc map[string]any) map[string]any {
	var lines []string
	for _, k := range sortedKeys(set) {
		lines = append(lines, fmt.Sprintf("ctx._source[%q] = params.set[%q];", k, k))
	}
	for _, k := range sortedKeys(inc) {
		lines = append(lines, fmt.Sprintf(
			"if (ctx._source[%q] == null) { ctx._source[%q] = params.inc[%q]; } else { ctx._source[%q] += params.inc[%q]; }",
			k, k, k, k, k))
	}
	params := map[string]any{}
	if len(set) > 0 {
		params["set"] = set
	}
	if len(inc) > 0 {
		params["inc"] = inc
	}
	return map[string]any{
		"lang":   "painless",
		"source": strings.Join(lines, " "),
		"params": params,
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delete removes every document matching b.
func (c *Client) Delete(ctx context.Context, index string, b *query.Builder) (res *result.Result, err error) {
	defer c.observe("delete", time.Now(), &err)

	q, err := c.compiler.CompileQuery(ctx, index, b)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"query": q}
	body, err := marshalBody("delete", index, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.DeleteByQuery(ctx, index, body, c.refresh)
	if err != nil {
		return nil, execErr("delete", err)
	}
	return result.FromByQuery(resp, payload), nil
}

// DeleteByID removes the document with the given id.
func (c *Client) DeleteByID(ctx context.Context, index, id string) (*result.Result, error) {
	b := query.New()
	b.Where("_id", "=", id)
	return c.Delete(ctx, index, b)
}

// Upsert has no by-query equivalent in the engine.
func (c *Client) Upsert(ctx context.Context, index string, docs []map[string]any, uniqueBy []string) (*result.Result, error) {
	return nil, &query.UnsupportedError{Feature: "upsert", Hint: "insert documents with an explicit _id to overwrite them"}
}

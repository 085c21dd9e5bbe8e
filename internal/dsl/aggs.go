package dsl

import (
	"context"
	"fmt"

	"github.com/leonunix/docquery/internal/query"
)

// AggFunc is a metric aggregation supported by CompileAggregate.
type AggFunc string

const (
	AggCount  AggFunc = "count"
	AggSum    AggFunc = "sum"
	AggAvg    AggFunc = "avg"
	AggMin    AggFunc = "min"
	AggMax    AggFunc = "max"
	AggMatrix AggFunc = "matrix"
)

// MatrixAggName is the aggregation name used for matrix stats.
const MatrixAggName = "matrix"

// AggName is the aggregation name of fn over column.
func AggName(fn AggFunc, column string) string {
	return string(fn) + "_" + column
}

// CompileAggregate builds a hit-less request computing fn over columns.
// A count without columns relies on the exact total hit count.
func (c *Compiler) CompileAggregate(ctx context.Context, index string, b *query.Builder, fn AggFunc, columns ...string) (*Request, error) {
	req, err := c.aggRequest(ctx, index, b)
	if err != nil {
		return nil, err
	}
	aggs := map[string]any{}
	switch fn {
	case AggCount:
		if len(columns) == 0 {
			req.Body["track_total_hits"] = true
			return req, nil
		}
		for _, col := range columns {
			aggs[AggName(fn, col)] = map[string]any{"value_count": map[string]any{"field": col}}
		}
	case AggSum, AggAvg, AggMin, AggMax:
		if len(columns) == 0 {
			return nil, &query.ParameterError{Msg: fmt.Sprintf("%s requires at least one column", fn)}
		}
		for _, col := range columns {
			aggs[AggName(fn, col)] = map[string]any{string(fn): map[string]any{"field": col}}
		}
	case AggMatrix:
		if len(columns) == 0 {
			return nil, &query.ParameterError{Msg: "matrix requires at least one column"}
		}
		aggs[MatrixAggName] = map[string]any{"matrix_stats": map[string]any{"fields": columns}}
	default:
		return nil, &query.ParameterError{Msg: fmt.Sprintf("unsupported aggregation [%s]", fn)}
	}
	req.Body["aggs"] = aggs
	return req, nil
}

// CompileDistinct builds nested by_<column> terms aggregations over the
// builder's selected columns. Sorting on "_count" orders buckets by
// document count, sorting on a column orders its buckets by key.
func (c *Compiler) CompileDistinct(ctx context.Context, index string, b *query.Builder) (*Request, error) {
	if b == nil || b.Options == nil || len(b.SourceColumns()) == 0 {
		return nil, &query.ParameterError{Msg: "distinct requires at least one selected column"}
	}
	cc := c.newContext(ctx, index)
	req, err := c.aggRequestIn(cc, b)
	if err != nil {
		return nil, err
	}
	orders := map[string]string{}
	for _, s := range b.Sorts {
		orders[s.Field] = s.Order
	}
	aggs, err := cc.nestedTermsAggs(b.SourceColumns(), orders)
	if err != nil {
		return nil, err
	}
	req.Body["aggs"] = aggs
	return req, nil
}

func (cc *compileContext) nestedTermsAggs(columns []string, orders map[string]string) (map[string]any, error) {
	col := columns[0]
	field, err := cc.termsField(col)
	if err != nil {
		return nil, err
	}
	terms := map[string]any{"field": field, "size": 10000}
	var order []any
	if dir, ok := orders["_count"]; ok {
		order = append(order, map[string]any{"_count": dirOrDesc(dir)})
	}
	if dir, ok := orders[col]; ok {
		order = append(order, map[string]any{"_key": dirOrDesc(dir)})
	}
	if len(order) > 0 {
		terms["order"] = order
	}
	agg := map[string]any{"terms": terms}
	if len(columns) > 1 {
		sub, err := cc.nestedTermsAggs(columns[1:], orders)
		if err != nil {
			return nil, err
		}
		agg["aggs"] = sub
	}
	return map[string]any{"by_" + col: agg}, nil
}

func dirOrDesc(dir string) string {
	if dir == "asc" {
		return "asc"
	}
	return "desc"
}

func (c *Compiler) aggRequest(ctx context.Context, index string, b *query.Builder) (*Request, error) {
	return c.aggRequestIn(c.newContext(ctx, index), b)
}

// aggRequestIn compiles the query part of an aggregation request. Sorts,
// paging and highlighting do not apply; geo filters still do.
func (c *Compiler) aggRequestIn(cc *compileContext, b *query.Builder) (*Request, error) {
	if b == nil {
		b = query.New()
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	q, err := cc.compileRoot(b)
	if err != nil {
		return nil, err
	}
	if _, err := cc.compileOptions(b.Options, false); err != nil {
		return nil, err
	}
	zero := 0
	req := &Request{Index: cc.index, Size: &zero, Body: map[string]any{"query": q}}
	cc.score = nil
	cc.assemble(req)
	return req, nil
}

package dsl

import (
	"context"
	"fmt"
)

// compileContext is the state of one Compile call.
type compileContext struct {
	ctx   context.Context
	c     *Compiler
	index string

	keywords map[string]bool // nil until the mapping is fetched

	filters []any
	score   map[string]any
}

func (c *Compiler) newContext(ctx context.Context, index string) *compileContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &compileContext{ctx: ctx, c: c, index: index}
}

// keywordField resolves field to a keyword-typed field: the field itself,
// then field.keyword. The mapping is fetched on first use.
func (cc *compileContext) keywordField(field string) (string, bool, error) {
	if cc.keywords == nil {
		cc.keywords = map[string]bool{}
		if cc.c.lookup != nil {
			mapping, err := cc.c.lookup.FieldMapping(cc.ctx, cc.index, "*")
			if err != nil {
				cc.keywords = nil
				return "", false, fmt.Errorf("resolving keyword fields for %s: %w", cc.index, err)
			}
			for name, typ := range mapping {
				if typ == "keyword" {
					cc.keywords[name] = true
				}
			}
		}
	}
	if cc.keywords[field] {
		return field, true, nil
	}
	if cc.keywords[field+".keyword"] {
		return field + ".keyword", true, nil
	}
	return "", false, nil
}

func (cc *compileContext) stageFilter(f map[string]any) {
	cc.filters = append(cc.filters, f)
}

func (cc *compileContext) stageScore(s map[string]any) {
	cc.score = s
}

// assemble applies the staged filter wrap, then the function score wrap,
// and clears both.
func (cc *compileContext) assemble(req *Request) {
	if len(cc.filters) > 0 {
		req.Body["query"] = map[string]any{
			"bool": map[string]any{
				"must":   []any{req.Body["query"]},
				"filter": cc.filters,
			},
		}
		cc.filters = nil
	}
	if cc.score != nil {
		req.Body["query"] = map[string]any{
			"function_score": map[string]any{
				"query":        req.Body["query"],
				"random_score": cc.score,
			},
		}
		cc.score = nil
	}
}

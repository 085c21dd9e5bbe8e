package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leonunix/docquery/internal/query"
)

func matchAll() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

func mustNot(q map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"must_not": []any{q}}}
}

// compileRoot compiles the builder's tree, appending the full-text search
// clause to every AND bucket when a search chain is present.
func (cc *compileContext) compileRoot(b *query.Builder) (map[string]any, error) {
	return cc.compileTree(b.Tree, "", searchClause(b))
}

func searchClause(b *query.Builder) map[string]any {
	q := b.SearchQuery()
	if q == "" {
		return nil
	}
	qs := map[string]any{"query": q}
	if fields := b.SearchFieldList(); len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			name := f.Field
			if f.Boost > 1 {
				name += "^" + strconv.FormatFloat(f.Boost, 'f', -1, 64)
			}
			names = append(names, name)
		}
		qs["fields"] = names
		if len(names) > 1 {
			qs["type"] = "cross_fields"
		}
	}
	for k, v := range b.SearchOptions() {
		qs[k] = v
	}
	return map[string]any{"query_string": qs}
}

// buckets splits clauses into AND buckets at every OR connective.
func buckets(clauses []query.Clause) ([][]query.Clause, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	if clauses[0].Connective.OpensBucket() {
		return nil, &query.SequencingError{Msg: "cannot start a query with an OR statement"}
	}
	var out [][]query.Clause
	var cur []query.Clause
	for _, c := range clauses {
		if c.Connective.OpensBucket() {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, c)
	}
	return append(out, cur), nil
}

// compileTree compiles a predicate tree. parent is the nested path that
// prefixes every field, search an optional clause appended to each AND
// bucket.
func (cc *compileContext) compileTree(t *query.Tree, parent string, search map[string]any) (map[string]any, error) {
	if err := t.Err(); err != nil {
		return nil, err
	}
	bks, err := buckets(t.Clauses())
	if err != nil {
		return nil, err
	}

	if len(bks) == 0 {
		if search != nil {
			return search, nil
		}
		return matchAll(), nil
	}

	if len(bks) == 1 {
		if len(bks[0]) == 1 && search == nil {
			return cc.compileClause(bks[0][0], parent)
		}
		must, err := cc.compileBucket(bks[0], parent, search)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bool": map[string]any{"must": must}}, nil
	}

	should := make([]any, 0, len(bks))
	for _, bk := range bks {
		must, err := cc.compileBucket(bk, parent, search)
		if err != nil {
			return nil, err
		}
		if len(must) == 0 {
			continue
		}
		should = append(should, map[string]any{"bool": map[string]any{"must": must}})
	}
	return map[string]any{"bool": map[string]any{"should": should}}, nil
}

func (cc *compileContext) compileBucket(clauses []query.Clause, parent string, search map[string]any) ([]any, error) {
	must := make([]any, 0, len(clauses)+1)
	for _, c := range clauses {
		q, err := cc.compileClause(c, parent)
		if err != nil {
			return nil, err
		}
		if len(q) > 0 {
			must = append(must, q)
		}
	}
	if search != nil {
		must = append(must, search)
	}
	return must, nil
}

func prefixed(field, parent string) string {
	if parent == "" || field == "" || strings.HasPrefix(field, parent+".") {
		return field
	}
	return parent + "." + field
}

func (cc *compileContext) compileClause(c query.Clause, parent string) (map[string]any, error) {
	if !c.Kind.Supported() {
		return nil, unsupported(c.Kind)
	}
	field := prefixed(c.Field, parent)

	switch c.Kind {
	case query.KindBasic:
		return cc.compileBasic(field, c.Op, c.Value, c.Connective.Negated())

	case query.KindTimestamp:
		v, err := formatTimestamp(field, c.Value)
		if err != nil {
			return nil, err
		}
		return cc.compileBasic(field, c.Op, v, c.Connective.Negated())

	case query.KindIn, query.KindNotIn:
		target, err := cc.termsField(field)
		if err != nil {
			return nil, err
		}
		values := c.Values
		if values == nil {
			values = []any{}
		}
		q := map[string]any{"terms": map[string]any{target: values}}
		if (c.Kind == query.KindNotIn) != c.Connective.Negated() {
			return mustNot(q), nil
		}
		return q, nil

	case query.KindBetween:
		if len(c.Values) != 2 {
			return nil, &query.ParameterError{Field: field, Msg: fmt.Sprintf("between requires exactly two values, got %d", len(c.Values))}
		}
		q := map[string]any{"range": map[string]any{field: map[string]any{"gte": c.Values[0], "lte": c.Values[1]}}}
		if c.Not != c.Connective.Negated() {
			return mustNot(q), nil
		}
		return q, nil

	case query.KindRegex:
		q := map[string]any{"regexp": map[string]any{field: map[string]any{"value": c.Value}}}
		if c.Connective.Negated() {
			return mustNot(q), nil
		}
		return q, nil

	case query.KindNested:
		sub, err := cc.compileTree(c.Sub, parent, nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"bool": map[string]any{groupKey(c.Connective): []any{sub}}}, nil

	case query.KindNestedObject, query.KindNotNestedObject:
		sub, err := cc.compileTree(c.Sub, field, nil)
		if err != nil {
			return nil, err
		}
		q := map[string]any{"nested": map[string]any{
			"path":       field,
			"query":      sub,
			"score_mode": scoreMode(c.ScoreMode),
		}}
		if (c.Kind == query.KindNotNestedObject) != c.Connective.Negated() {
			return mustNot(q), nil
		}
		return q, nil

	case query.KindQueryNested:
		sub := matchAll()
		if c.Sub.Len() > 0 {
			var err error
			if sub, err = cc.compileTree(c.Sub, field, nil); err != nil {
				return nil, err
			}
		}
		inner, err := cc.compileNestedOptions(c.SubOptions, field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"nested": map[string]any{
			"path":       field,
			"query":      sub,
			"inner_hits": inner,
		}}, nil
	}
	return nil, unsupported(c.Kind)
}

func (cc *compileContext) compileBasic(field string, op query.Operator, value any, negated bool) (map[string]any, error) {
	if negated && op == query.OpEq {
		op = query.OpNe
		negated = false
	}

	var q map[string]any
	switch op {
	case query.OpEq:
		q = map[string]any{"match": map[string]any{field: value}}
	case query.OpNe:
		q = mustNot(map[string]any{"match": map[string]any{field: value}})
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		q = map[string]any{"range": map[string]any{field: map[string]any{rangeKey(op): value}}}
	case query.OpLike:
		q = map[string]any{"query_string": map[string]any{"query": field + ":*" + query.Escape(fmt.Sprint(value)) + "*"}}
	case query.OpNotLike:
		q = map[string]any{"query_string": map[string]any{"query": "(NOT " + field + ":*" + query.Escape(fmt.Sprint(value)) + "*)"}}
	case query.OpRegex:
		q = map[string]any{"regexp": map[string]any{field: map[string]any{"value": value}}}
	case query.OpExists:
		q = map[string]any{"exists": map[string]any{"field": field}}
	case query.OpNotExists:
		q = mustNot(map[string]any{"exists": map[string]any{"field": field}})
	case query.OpPhrase:
		q = map[string]any{"match_phrase": map[string]any{field: value}}
	case query.OpPhrasePrefix:
		q = map[string]any{"match_phrase_prefix": map[string]any{field: map[string]any{"query": value}}}
	case query.OpExact:
		target := field
		if !cc.c.bypass {
			kw, ok, err := cc.keywordField(field)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &query.ParameterError{Field: field, Msg: fmt.Sprintf("Field [%s] is not a keyword field which is required for the [exact] operator.", field)}
			}
			target = kw
		}
		q = map[string]any{"term": map[string]any{target: value}}
	default:
		return nil, &query.ParameterError{Field: field, Msg: fmt.Sprintf("invalid operator [%s]", op)}
	}

	if negated {
		return mustNot(q), nil
	}
	return q, nil
}

// termsField rewrites field to its keyword form for terms queries when the
// mapping has one.
func (cc *compileContext) termsField(field string) (string, error) {
	if cc.c.bypass {
		return field, nil
	}
	kw, ok, err := cc.keywordField(field)
	if err != nil {
		return "", err
	}
	if ok {
		return kw, nil
	}
	return field, nil
}

func rangeKey(op query.Operator) string {
	switch op {
	case query.OpLt:
		return "lt"
	case query.OpLte:
		return "lte"
	case query.OpGt:
		return "gt"
	default:
		return "gte"
	}
}

func groupKey(c query.Connective) string {
	switch c {
	case query.Or:
		return "should"
	case query.AndNot, query.OrNot:
		return "must_not"
	default:
		return "must"
	}
}

func scoreMode(mode string) string {
	if mode == "" {
		return "avg"
	}
	return mode
}

func unsupported(k query.Kind) error {
	switch k {
	case query.KindExistsSubquery, query.KindNotExistsSubquery:
		return &query.UnsupportedError{
			Feature: `SQL type "` + k.String() + `" query`,
			Hint:    "use WhereNotNull() or WhereNull() to query the existence of a field",
		}
	default:
		return &query.UnsupportedError{Feature: k.String() + " clause"}
	}
}

package dsl

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonunix/docquery/internal/cursor"
	"github.com/leonunix/docquery/internal/query"
)

type fakeLookup struct {
	mu      sync.Mutex
	mapping map[string]string
	err     error
	calls   int
}

func (f *fakeLookup) FieldMapping(_ context.Context, _, _ string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.mapping, f.err
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func compileQuery(t *testing.T, c *Compiler, b *query.Builder) string {
	t.Helper()
	req, err := c.Compile(context.Background(), "products", b)
	require.NoError(t, err)
	return toJSON(t, req.Body["query"])
}

func TestCompile_EmptyTreeMatchesAll(t *testing.T) {
	c := NewCompiler(nil)
	assert.JSONEq(t, `{"match_all":{}}`, compileQuery(t, c, query.New()))
}

func TestCompile_FirstClauseOrFails(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.OrWhere("a", "=", 1)
	_, err := c.Compile(context.Background(), "products", b)
	var se *query.SequencingError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestCompile_AndBucket(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("age", ">=", 18).Where("age", "<=", 65)
	assert.JSONEq(t, `{"bool":{"must":[
		{"range":{"age":{"gte":18}}},
		{"range":{"age":{"lte":65}}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_AndBucketOrderDoesNotMatter(t *testing.T) {
	type cond struct {
		field, op string
		value     any
	}
	conds := []cond{
		{"age", ">=", 18},
		{"status", "=", "active"},
		{"score", "<", 9.5},
	}
	mustOf := func(order []int) []any {
		b := query.New()
		for _, i := range order {
			b.Where(conds[i].field, conds[i].op, conds[i].value)
		}
		var q map[string]any
		require.NoError(t, json.Unmarshal([]byte(compileQuery(t, NewCompiler(nil), b)), &q))
		must, ok := q["bool"].(map[string]any)["must"].([]any)
		require.True(t, ok, "expected a must list, got %v", q)
		return must
	}

	want := mustOf([]int{0, 1, 2})
	require.Len(t, want, 3)
	for _, order := range [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
		assert.ElementsMatch(t, want, mustOf(order), "order %v", order)
	}
}

func TestCompile_SingleClauseIsFlat(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("status", "", "active")
	assert.JSONEq(t, `{"match":{"status":"active"}}`, compileQuery(t, c, b))
}

func TestCompile_OrPrecedence(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("a", "=", 1).Where("b", "=", 2).OrWhere("c", "=", 3).Where("d", "=", 4)
	assert.JSONEq(t, `{"bool":{"should":[
		{"bool":{"must":[{"match":{"a":1}},{"match":{"b":2}}]}},
		{"bool":{"must":[{"match":{"c":3}},{"match":{"d":4}}]}}
	]}}`, compileQuery(t, c, b))

	b = query.New()
	b.Where("a", "=", 1).OrWhere("b", "=", 2).OrWhere("c", "=", 3)
	assert.JSONEq(t, `{"bool":{"should":[
		{"bool":{"must":[{"match":{"a":1}}]}},
		{"bool":{"must":[{"match":{"b":2}}]}},
		{"bool":{"must":[{"match":{"c":3}}]}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_BasicOperators(t *testing.T) {
	c := NewCompiler(nil)
	cases := []struct {
		op    string
		value any
		want  string
	}{
		{"!=", "x", `{"bool":{"must_not":[{"match":{"f":"x"}}]}}`},
		{"<>", "x", `{"bool":{"must_not":[{"match":{"f":"x"}}]}}`},
		{"<", 3, `{"range":{"f":{"lt":3}}}`},
		{">", 3, `{"range":{"f":{"gt":3}}}`},
		{"like", "a+b", `{"query_string":{"query":"f:*a\\+b*"}}`},
		{"not like", "ab", `{"query_string":{"query":"(NOT f:*ab*)"}}`},
		{"regex", "a.*", `{"regexp":{"f":{"value":"a.*"}}}`},
		{"exists", nil, `{"exists":{"field":"f"}}`},
		{"not_exists", nil, `{"bool":{"must_not":[{"exists":{"field":"f"}}]}}`},
		{"phrase", "quick fox", `{"match_phrase":{"f":"quick fox"}}`},
		{"phrase_prefix", "quick f", `{"match_phrase_prefix":{"f":{"query":"quick f"}}}`},
	}
	for _, tc := range cases {
		b := query.New()
		b.Where("f", tc.op, tc.value)
		assert.JSONEq(t, tc.want, compileQuery(t, c, b), "operator %s", tc.op)
	}
}

func TestCompile_NullAndNotNull(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.WhereNull("deleted_at").WhereNotNull("email")
	assert.JSONEq(t, `{"bool":{"must":[
		{"bool":{"must_not":[{"exists":{"field":"deleted_at"}}]}},
		{"exists":{"field":"email"}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_NegatedConnectives(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("a", "=", 1).WhereNot("b", "=", 2).WhereNot("c", ">", 3)
	assert.JSONEq(t, `{"bool":{"must":[
		{"match":{"a":1}},
		{"bool":{"must_not":[{"match":{"b":2}}]}},
		{"bool":{"must_not":[{"range":{"c":{"gt":3}}}]}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_InRewritesToKeyword(t *testing.T) {
	lookup := &fakeLookup{mapping: map[string]string{"status": "text", "status.keyword": "keyword", "sku": "keyword"}}
	c := NewCompiler(lookup)
	b := query.New()
	b.WhereIn("status", "a", "b").WhereNotIn("sku", "x").WhereIn("color", "red")
	assert.JSONEq(t, `{"bool":{"must":[
		{"terms":{"status.keyword":["a","b"]}},
		{"bool":{"must_not":[{"terms":{"sku":["x"]}}]}},
		{"terms":{"color":["red"]}}
	]}}`, compileQuery(t, c, b))
	assert.Equal(t, 1, lookup.calls, "mapping should be fetched once per compile")
}

func TestCompile_Exact(t *testing.T) {
	lookup := &fakeLookup{mapping: map[string]string{"status.keyword": "keyword", "title": "text"}}

	b := query.New()
	b.WhereExact("status", "active")
	assert.JSONEq(t, `{"term":{"status.keyword":"active"}}`, compileQuery(t, NewCompiler(lookup), b))

	b = query.New()
	b.WhereExact("title", "Go")
	_, err := NewCompiler(lookup).Compile(context.Background(), "products", b)
	var pe *query.ParameterError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Contains(t, pe.Msg, "Field [title] is not a keyword field")

	bypass := NewCompiler(lookup, WithBypassMapValidation(true))
	assert.JSONEq(t, `{"term":{"title":"Go"}}`, compileQuery(t, bypass, b))
}

func TestCompile_MappingLookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("boom")}
	b := query.New()
	b.WhereIn("status", "a")
	_, err := NewCompiler(lookup).Compile(context.Background(), "products", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving keyword fields for products")
}

func TestCompile_Between(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.WhereBetween("price", 10, 20).WhereNotBetween("stock", 0, 5)
	assert.JSONEq(t, `{"bool":{"must":[
		{"range":{"price":{"gte":10,"lte":20}}},
		{"bool":{"must_not":[{"range":{"stock":{"gte":0,"lte":5}}}]}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_Groups(t *testing.T) {
	c := NewCompiler(nil)
	sub := query.NewTree().Where("x", "=", 1).OrWhere("y", "=", 2)
	b := query.New()
	b.Where("a", "=", 1).WhereGroup(sub).WhereNotGroup(query.NewTree().Where("z", "=", 3))
	assert.JSONEq(t, `{"bool":{"must":[
		{"match":{"a":1}},
		{"bool":{"must":[{"bool":{"should":[
			{"bool":{"must":[{"match":{"x":1}}]}},
			{"bool":{"must":[{"match":{"y":2}}]}}
		]}}]}},
		{"bool":{"must_not":[{"match":{"z":3}}]}}
	]}}`, compileQuery(t, c, b))

	b = query.New()
	b.Where("a", "=", 1).WhereGroupAs("xor", sub)
	_, err := c.Compile(context.Background(), "products", b)
	var pe *query.ParameterError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Contains(t, pe.Msg, "xor is not supported for parameter grouping")
}

func TestCompile_NestedObject(t *testing.T) {
	c := NewCompiler(nil)
	sub := query.NewTree().Where("name", "=", "go").Where("variants.level", ">", 2)
	b := query.New()
	b.WhereNestedObject("variants", sub, "")
	b.WhereNotNestedObject("reviews", query.NewTree().Where("score", "<", 2), "max")
	assert.JSONEq(t, `{"bool":{"must":[
		{"nested":{"path":"variants","score_mode":"avg","query":{"bool":{"must":[
			{"match":{"variants.name":"go"}},
			{"range":{"variants.level":{"gt":2}}}
		]}}}},
		{"bool":{"must_not":[{"nested":{"path":"reviews","score_mode":"max",
			"query":{"range":{"reviews.score":{"lt":2}}}}}]}}
	]}}`, compileQuery(t, c, b))
}

func TestCompile_QueryNested(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.QueryNested("comments", nil)
	assert.JSONEq(t, `{"nested":{"path":"comments","query":{"match_all":{}},"inner_hits":{"size":100}}}`,
		compileQuery(t, c, b))

	sub := query.New()
	sub.Where("approved", "=", true)
	sub.OrderByDesc("created_at")
	sub.Limit(3)
	b = query.New()
	b.QueryNested("comments", sub)
	assert.JSONEq(t, `{"nested":{"path":"comments",
		"query":{"match":{"comments.approved":true}},
		"inner_hits":{"size":3,"sort":[{"comments.created_at":{"order":"desc"}}]}}}`,
		compileQuery(t, c, b))

	small := NewCompiler(nil, WithInnerHitsSize(5))
	b = query.New()
	b.QueryNested("comments", query.New())
	assert.JSONEq(t, `{"nested":{"path":"comments","query":{"match_all":{}},"inner_hits":{"size":5}}}`,
		compileQuery(t, small, b))
}

func TestCompile_QueryNestedRejectsGeoFilters(t *testing.T) {
	sub := query.New()
	sub.FilterGeoPoint("loc", "1km", 1, 2)
	b := query.New()
	b.QueryNested("stores", sub)
	_, err := NewCompiler(nil).Compile(context.Background(), "products", b)
	var pe *query.ParameterError
	require.True(t, errors.As(err, &pe), "got %v", err)
}

func TestCompile_Timestamp(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.WhereTimestamp("created", ">=", 1700000000).
		WhereTimestamp("updated", "<", int64(1700000000123)).
		WhereTimestamp("seen", "=", "2024-01-01T00:00:00Z")
	assert.JSONEq(t, `{"bool":{"must":[
		{"range":{"created":{"gte":"1700000000"}}},
		{"range":{"updated":{"lt":1700000000123}}},
		{"match":{"seen":"1704067200"}}
	]}}`, compileQuery(t, c, b))

	b = query.New()
	b.WhereTimestamp("created", ">", "yesterday-ish")
	_, err := c.Compile(context.Background(), "products", b)
	var pe *query.ParameterError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "Invalid date or timestamp", pe.Msg)
}

func TestCompile_TimestampNowExpressions(t *testing.T) {
	c := NewCompiler(nil)
	for _, in := range []string{"now", "now-1d", "now-1d+6h"} {
		b := query.New()
		b.WhereTimestamp("created", ">=", in)
		_, err := c.Compile(context.Background(), "products", b)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"nowhere", "now-1y", "now-", "now/d"} {
		b := query.New()
		b.WhereTimestamp("created", ">=", in)
		_, err := c.Compile(context.Background(), "products", b)
		var pe *query.ParameterError
		if assert.True(t, errors.As(err, &pe), "%s: got %v", in, err) {
			assert.Equal(t, "Invalid date or timestamp", pe.Msg)
			assert.Equal(t, "created", pe.Field)
		}
	}
}

func TestCompile_UnsupportedKinds(t *testing.T) {
	c := NewCompiler(nil)
	for name, build := range map[string]func(*query.Builder){
		"raw":        func(b *query.Builder) { b.WhereRaw("a = 1") },
		"exists":     func(b *query.Builder) { b.WhereExists(query.NewTree()) },
		"not exists": func(b *query.Builder) { b.WhereNotExists(query.NewTree()) },
		"month":      func(b *query.Builder) { b.WhereMonth("d", "=", 1) },
		"day":        func(b *query.Builder) { b.WhereDay("d", "=", 1) },
		"year":       func(b *query.Builder) { b.WhereYear("d", "=", 2024) },
		"time":       func(b *query.Builder) { b.WhereTime("d", "=", "10:00") },
	} {
		b := query.New()
		b.Where("a", "=", 1)
		build(b)
		_, err := c.Compile(context.Background(), "products", b)
		var ue *query.UnsupportedError
		assert.True(t, errors.As(err, &ue), "%s: got %v", name, err)
	}
}

func TestCompile_FilterInsideFunctionScore(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("status", "=", "open")
	b.FilterGeoPoint("location", "10km", 52.5, 13.4)
	b.RandomScore("_seq_no", 42)
	b.OrderBy("name", "asc")

	req, err := c.Compile(context.Background(), "shops", b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"function_score":{
		"query":{"bool":{
			"must":[{"match":{"status":"open"}}],
			"filter":[{"geo_distance":{"distance":"10km","location":{"lat":52.5,"lon":13.4}}}]
		}},
		"random_score":{"field":"_seq_no","seed":42}
	}}`, toJSON(t, req.Body["query"]))
	assert.Contains(t, req.Body, "sort", "wrapping should keep the rest of the body")
}

func TestCompile_StagingIsPerCall(t *testing.T) {
	c := NewCompiler(nil)
	scored := query.New()
	scored.RandomScore("_seq_no", 1)
	scored.FilterGeoBox("loc", []float64{1, 2}, []float64{3, 4})
	_, err := c.Compile(context.Background(), "shops", scored)
	require.NoError(t, err)

	assert.JSONEq(t, `{"match_all":{}}`, compileQuery(t, c, query.New()))
}

func TestCompile_ConcurrentCompiles(t *testing.T) {
	c := NewCompiler(&fakeLookup{mapping: map[string]string{"tag": "keyword"}})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := query.New()
			b.WhereIn("tag", i)
			if i%2 == 0 {
				b.RandomScore("_seq_no", int64(i))
			}
			req, err := c.Compile(context.Background(), "idx", b)
			if !assert.NoError(t, err) {
				return
			}
			_, scored := req.Query()["function_score"]
			assert.Equal(t, i%2 == 0, scored)
		}(i)
	}
	wg.Wait()
}

func TestCompile_Options(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.OrderBy("_id", "asc")
	b.OrderByDesc("price")
	b.WithSort("price", "missing", "_last")
	b.OrderByGeo("location", []float64{13.4, 52.5}, "asc", "", "min", "arc")
	b.OrderByNested("variants.price", "desc", "avg")
	b.Limit(10)
	b.Offset(20)
	b.WithMinScore(1.5)
	b.Highlight(nil, "", "", nil)
	b.Select("name", "*", "price")

	req, err := c.Compile(context.Background(), "products", b)
	require.NoError(t, err)
	require.NotNil(t, req.Size)
	require.NotNil(t, req.From)
	assert.Equal(t, 10, *req.Size)
	assert.Equal(t, 20, *req.From)

	body := req.Body
	delete(body, "query")
	assert.JSONEq(t, `{
		"_source":["name","price"],
		"min_score":1.5,
		"sort":[
			{"price":{"order":"desc","missing":"_last"}},
			{"_geo_distance":{"location":[13.4,52.5],"order":"asc","unit":"km","mode":"min","distance_type":"arc"}},
			{"variants.price":{"order":"desc","mode":"avg","nested":{"path":"variants"}}}
		],
		"highlight":{"pre_tags":["<em>"],"post_tags":["</em>"],"fields":{"*":{}}}
	}`, toJSON(t, body))

	payload := req.Payload()
	assert.Equal(t, 10, payload["size"])
	assert.Equal(t, 20, payload["from"])

	withID := NewCompiler(nil, WithAllowIDSort(true))
	b = query.New()
	b.OrderBy("_id", "desc")
	req, err = withID.Compile(context.Background(), "products", b)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"_id":{"order":"desc"}}]`, toJSON(t, req.Body["sort"]))
}

func TestCompile_CursorSearchAfter(t *testing.T) {
	c := NewCompiler(nil)
	st := cursor.New()
	st.NextSort = []any{5, "doc10"}

	b := query.New()
	b.OrderBy("score", "desc")
	b.WithCursor(st)
	b.PrevSearchAfter = []any{1, "doc1"}

	req, err := c.Compile(context.Background(), "products", b)
	require.NoError(t, err)
	assert.Equal(t, []any{5, "doc10"}, req.Body["search_after"])
	require.NotNil(t, req.Meta.Cursor)
	assert.Equal(t, []any{5, "doc10"}, req.Meta.Cursor.NextSort)
	assert.Equal(t, []any{1, "doc1"}, req.Meta.PrevSearchAfter)
	assert.NotContains(t, req.Body, "_meta")

	fresh := query.New()
	fresh.WithCursor(cursor.New())
	req, err = c.Compile(context.Background(), "products", fresh)
	require.NoError(t, err)
	assert.NotContains(t, req.Body, "search_after")
}

func TestCompile_SearchClause(t *testing.T) {
	c := NewCompiler(nil)

	b := query.New().Term("golang", 0).SearchField("title", 3).SearchField("body", 0).MinShouldMatch("75%")
	assert.JSONEq(t, `{"query_string":{"query":"(golang)","fields":["title^3","body"],"type":"cross_fields","minimum_should_match":"75%"}}`,
		compileQuery(t, c, b))

	b = query.New().Term("golang", 0)
	b.Where("status", "=", "published")
	assert.JSONEq(t, `{"bool":{"must":[
		{"match":{"status":"published"}},
		{"query_string":{"query":"(golang)"}}
	]}}`, compileQuery(t, c, b))

	b = query.New().Term("golang", 0)
	b.Where("a", "=", 1).OrWhere("b", "=", 2)
	assert.JSONEq(t, `{"bool":{"should":[
		{"bool":{"must":[{"match":{"a":1}},{"query_string":{"query":"(golang)"}}]}},
		{"bool":{"must":[{"match":{"b":2}},{"query_string":{"query":"(golang)"}}]}}
	]}}`, compileQuery(t, c, b))
}

func TestCompileQuery_DropsRandomScore(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("a", "=", 1)
	b.RandomScore("_seq_no", 7)
	q, err := c.CompileQuery(context.Background(), "idx", b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"match":{"a":1}}`, toJSON(t, q))
}

func TestCompileAggregate(t *testing.T) {
	c := NewCompiler(nil)
	b := query.New()
	b.Where("status", "=", "active")

	req, err := c.CompileAggregate(context.Background(), "orders", b, AggSum, "total", "tax")
	require.NoError(t, err)
	assert.Equal(t, 0, *req.Size)
	assert.JSONEq(t, `{"sum_total":{"sum":{"field":"total"}},"sum_tax":{"sum":{"field":"tax"}}}`, toJSON(t, req.Body["aggs"]))

	req, err = c.CompileAggregate(context.Background(), "orders", b, AggMatrix, "a", "b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"matrix":{"matrix_stats":{"fields":["a","b"]}}}`, toJSON(t, req.Body["aggs"]))

	req, err = c.CompileAggregate(context.Background(), "orders", b, AggCount)
	require.NoError(t, err)
	assert.Equal(t, true, req.Body["track_total_hits"])

	_, err = c.CompileAggregate(context.Background(), "orders", b, AggAvg)
	var pe *query.ParameterError
	assert.True(t, errors.As(err, &pe))
}

func TestCompileDistinct(t *testing.T) {
	c := NewCompiler(&fakeLookup{mapping: map[string]string{"brand.keyword": "keyword"}})
	b := query.New()
	b.Select("brand", "color")
	b.Distinct(true)
	b.OrderByDesc("_count")
	b.OrderBy("color", "asc")

	req, err := c.CompileDistinct(context.Background(), "products", b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"by_brand":{
		"terms":{"field":"brand.keyword","size":10000,"order":[{"_count":"desc"}]},
		"aggs":{"by_color":{"terms":{"field":"color","size":10000,"order":[{"_count":"desc"},{"_key":"asc"}]}}}
	}}`, toJSON(t, req.Body["aggs"]))

	_, err = c.CompileDistinct(context.Background(), "products", query.New())
	assert.Error(t, err)
}

package dsl

import (
	"strings"

	"github.com/leonunix/docquery/internal/query"
)

// fragments are the request parts produced from query options.
type fragments struct {
	size *int
	from *int
	body map[string]any
	meta Meta
}

func (f fragments) applyTo(req *Request) {
	req.Size = f.size
	req.From = f.from
	for k, v := range f.body {
		req.Body[k] = v
	}
	req.Meta = f.meta
}

// compileOptions translates o into request fragments. Geo filters and the
// random score are staged on the context; in nested mode they are rejected
// since they can only wrap a whole request.
func (cc *compileContext) compileOptions(o *query.Options, nested bool) (fragments, error) {
	f := fragments{body: map[string]any{}}
	if o == nil {
		return f, nil
	}

	if o.Size > 0 {
		n := o.Size
		f.size = &n
	}
	if o.From > 0 {
		n := o.From
		f.from = &n
	}
	if o.MinScore != 0 {
		f.body["min_score"] = o.MinScore
	}

	if len(o.Sorts) > 0 {
		sorts := make([]any, 0, len(o.Sorts))
		for _, s := range o.Sorts {
			if fs := cc.c.fieldSort(s); fs != nil {
				sorts = append(sorts, fs)
			}
		}
		if len(sorts) > 0 {
			f.body["sort"] = sorts
		}
	}

	if o.Highlighting != nil {
		f.body["highlight"] = highlightBody(o.Highlighting)
	}

	if o.Cursor != nil {
		st := o.Cursor.Clone()
		f.meta.Cursor = &st
		if after := st.SearchAfter(); after != nil {
			f.body["search_after"] = after
		}
	}
	if _, ok := f.body["search_after"]; !ok && len(o.SearchAfter) > 0 {
		f.body["search_after"] = o.SearchAfter
	}
	if len(o.PrevSearchAfter) > 0 {
		f.meta.PrevSearchAfter = o.PrevSearchAfter
	}

	if nested {
		if o.GeoBox != nil || o.GeoDistance != nil || o.Random != nil {
			return fragments{}, &query.ParameterError{Msg: "geo filters and random score cannot be applied to inner hits"}
		}
		return f, nil
	}

	if g := o.GeoBox; g != nil {
		cc.stageFilter(map[string]any{"geo_bounding_box": map[string]any{
			g.Field: map[string]any{"top_left": g.TopLeft, "bottom_right": g.BottomRight},
		}})
	}
	if g := o.GeoDistance; g != nil {
		cc.stageFilter(map[string]any{"geo_distance": map[string]any{
			"distance": g.Distance,
			g.Field:    map[string]any{"lat": g.Lat, "lon": g.Lon},
		}})
	}
	if r := o.Random; r != nil {
		cc.stageScore(map[string]any{"field": r.Field, "seed": r.Seed})
	}
	return f, nil
}

// compileNestedOptions builds the inner_hits object of a nested query:
// every fragment flattened into one object and sort fields prefixed with
// path. Without options it falls back to the configured inner hits size.
func (cc *compileContext) compileNestedOptions(o *query.Options, path string) (map[string]any, error) {
	f, err := cc.compileOptions(o, true)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if f.size != nil {
		out["size"] = *f.size
	}
	if f.from != nil {
		out["from"] = *f.from
	}
	for k, v := range f.body {
		out[k] = v
	}
	if sorts, ok := out["sort"].([]any); ok {
		fixed := make([]any, 0, len(sorts))
		for _, s := range sorts {
			fixed = append(fixed, prefixSort(s.(map[string]any), path))
		}
		out["sort"] = fixed
	}
	if len(out) == 0 {
		out["size"] = cc.c.innerHitsSize
	}
	return out, nil
}

func prefixSort(sort map[string]any, path string) map[string]any {
	out := make(map[string]any, len(sort))
	for field, payload := range sort {
		if !strings.HasPrefix(field, "_") {
			field = prefixed(field, path)
		}
		out[field] = payload
	}
	return out
}

// fieldSort encodes one sort entry, or returns nil for a dropped _id sort.
func (c *Compiler) fieldSort(s query.Sort) map[string]any {
	if s.Field == "_id" && !c.allowIDSort {
		return nil
	}
	order := s.Order
	if order == "" {
		order = "asc"
	}

	switch s.Kind {
	case query.SortGeo:
		payload := map[string]any{s.Field: s.Pin, "order": order, "unit": s.Unit}
		if s.Mode != "" {
			payload["mode"] = s.Mode
		}
		if s.DistanceType != "" {
			payload["distance_type"] = s.DistanceType
		}
		mergeExtra(payload, s.Extra)
		return map[string]any{"_geo_distance": payload}

	case query.SortNested:
		payload := map[string]any{"order": order}
		if s.Mode != "" {
			payload["mode"] = s.Mode
		}
		if i := strings.LastIndex(s.Field, "."); i > 0 {
			payload["nested"] = map[string]any{"path": s.Field[:i]}
		}
		mergeExtra(payload, s.Extra)
		return map[string]any{s.Field: payload}

	default:
		payload := map[string]any{"order": order}
		if s.Mode != "" {
			payload["mode"] = s.Mode
		}
		mergeExtra(payload, s.Extra)
		return map[string]any{s.Field: payload}
	}
}

func mergeExtra(payload, extra map[string]any) {
	for k, v := range extra {
		payload[k] = v
	}
}

func highlightBody(h *query.Highlight) map[string]any {
	out := map[string]any{}
	for k, v := range h.Global {
		out[k] = v
	}
	fields := map[string]any{}
	if len(h.Fields) == 0 {
		fields["*"] = map[string]any{}
	} else {
		for name, opts := range h.Fields {
			if opts == nil {
				opts = map[string]any{}
			}
			fields[name] = opts
		}
	}
	pre, post := h.PreTags, h.PostTags
	if len(pre) == 0 {
		pre = []string{"<em>"}
	}
	if len(post) == 0 {
		post = []string{"</em>"}
	}
	out["pre_tags"] = pre
	out["post_tags"] = post
	out["fields"] = fields
	return out
}

// Package result normalizes raw engine responses into a uniform Result.
package result

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leonunix/docquery/internal/backend"
	"github.com/leonunix/docquery/internal/bulk"
)

// Document is one normalized hit: the _source plus _id, _index, _score and
// an optional _meta section.
type Document map[string]any

// ID returns the document id.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Meta describes how a result was produced.
type Meta struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Took     int             `json:"took"`
	TimedOut bool            `json:"timed_out"`
	Total    int64           `json:"total"`
	MaxScore *float64        `json:"max_score,omitempty"`
	Shards   json.RawMessage `json:"shards,omitempty"`
	// LastSort is the sort value of the last hit, the search_after of the
	// next page.
	LastSort []any          `json:"sort,omitempty"`
	Cursor   string         `json:"cursor,omitempty"`
	PitID    string         `json:"pit_id,omitempty"`
	Query    map[string]any `json:"dsl,omitempty"`
	Deleted  int64          `json:"deleted,omitempty"`
	Updated  int64          `json:"updated,omitempty"`
}

// Result is what every query operation returns.
type Result struct {
	Documents    []Document     `json:"data"`
	Aggregations map[string]any `json:"aggregations,omitempty"`
	Bulk         *bulk.Result   `json:"bulk,omitempty"`
	Meta         Meta           `json:"meta"`
}

// IsSuccessful reports whether the operation completed without error.
func (r *Result) IsSuccessful() bool { return r != nil && r.Meta.Success }

// ErrorMessage returns the failure reason, empty on success.
func (r *Result) ErrorMessage() string {
	if r == nil {
		return ""
	}
	return r.Meta.Error
}

// First returns the first document, or nil.
func (r *Result) First() Document {
	if r == nil || len(r.Documents) == 0 {
		return nil
	}
	return r.Documents[0]
}

// Failure builds an unsuccessful result carrying msg.
func Failure(msg string, dsl map[string]any) *Result {
	return &Result{Documents: []Document{}, Meta: Meta{Success: false, Error: msg, Query: dsl}}
}

// FromSearch normalizes a search response. dsl is the request body that
// produced it and is echoed in the metadata.
func FromSearch(resp *backend.SearchResponse, dsl map[string]any) *Result {
	res := &Result{Documents: make([]Document, 0, len(resp.Hits.Hits)), Meta: searchMeta(resp, dsl)}
	for _, hit := range resp.Hits.Hits {
		res.Documents = append(res.Documents, document(hit))
	}
	if n := len(resp.Hits.Hits); n > 0 {
		res.Meta.LastSort = resp.Hits.Hits[n-1].Sort
	}
	return res
}

func searchMeta(resp *backend.SearchResponse, dsl map[string]any) Meta {
	return Meta{
		Success:  true,
		Took:     resp.Took,
		TimedOut: resp.TimedOut,
		Total:    resp.Hits.Total.Value,
		MaxScore: resp.Hits.MaxScore,
		Shards:   resp.Shards,
		PitID:    resp.PitID,
		Query:    dsl,
	}
}

func document(hit backend.Hit) Document {
	doc := make(Document, len(hit.Source)+4)
	for k, v := range hit.Source {
		doc[k] = v
	}
	doc["_id"] = hit.ID
	if hit.Index != "" {
		doc["_index"] = hit.Index
	}
	if hit.Score != nil {
		doc["_score"] = *hit.Score
	}

	meta := map[string]any{}
	if len(hit.Highlight) > 0 {
		meta["highlights"] = hit.Highlight
	}
	if len(hit.InnerHits) > 0 {
		inner := make(map[string][]Document, len(hit.InnerHits))
		for path, ih := range hit.InnerHits {
			docs := make([]Document, 0, len(ih.Hits.Hits))
			for _, h := range ih.Hits.Hits {
				docs = append(docs, document(h))
			}
			inner[path] = docs
		}
		meta["inner_hits"] = inner
	}
	if len(hit.Sort) > 0 {
		meta["sort"] = hit.Sort
	}
	if len(meta) > 0 {
		doc["_meta"] = meta
	}
	return doc
}

// FromAggregations normalizes metric aggregations. Single-value metrics
// collapse to their value, keyed by aggregation name; everything else,
// matrix stats included, is kept as decoded.
func FromAggregations(resp *backend.SearchResponse, dsl map[string]any) (*Result, error) {
	res := &Result{Documents: []Document{}, Aggregations: map[string]any{}, Meta: searchMeta(resp, dsl)}
	if len(resp.Aggregations) == 0 {
		return res, nil
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(resp.Aggregations, &raw); err != nil {
		return nil, fmt.Errorf("decoding aggregations: %w", err)
	}
	for name, agg := range raw {
		if v, ok := agg["value"]; ok && len(agg) <= 2 {
			res.Aggregations[name] = v
			continue
		}
		res.Aggregations[name] = agg
	}
	return res, nil
}

// Value returns a single-value aggregation as float64. Missing or null
// values (e.g. avg over no documents) report false.
func (r *Result) Value(name string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	f, ok := r.Aggregations[name].(float64)
	return f, ok
}

type termsAgg struct {
	Buckets []map[string]json.RawMessage `json:"buckets"`
}

// FromDistinct flattens nested by_<column> terms buckets into one document
// per distinct combination of columns. With withCount each document also
// carries the leaf bucket's doc_count as "_count".
func FromDistinct(resp *backend.SearchResponse, columns []string, withCount bool, dsl map[string]any) (*Result, error) {
	res := &Result{Documents: []Document{}, Meta: searchMeta(resp, dsl)}
	if len(columns) == 0 || len(resp.Aggregations) == 0 {
		return res, nil
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(resp.Aggregations, &root); err != nil {
		return nil, fmt.Errorf("decoding aggregations: %w", err)
	}
	if err := flattenBuckets(root, columns, Document{}, withCount, &res.Documents); err != nil {
		return nil, err
	}
	res.Meta.Total = int64(len(res.Documents))
	return res, nil
}

func flattenBuckets(aggs map[string]json.RawMessage, columns []string, prefix Document, withCount bool, out *[]Document) error {
	col := columns[0]
	raw, ok := aggs["by_"+col]
	if !ok {
		return nil
	}
	var terms termsAgg
	if err := json.Unmarshal(raw, &terms); err != nil {
		return fmt.Errorf("decoding by_%s buckets: %w", col, err)
	}
	for _, bucket := range terms.Buckets {
		var key any
		if err := json.Unmarshal(bucket["key"], &key); err != nil {
			return fmt.Errorf("decoding by_%s key: %w", col, err)
		}
		row := make(Document, len(prefix)+2)
		for k, v := range prefix {
			row[k] = v
		}
		row[col] = key
		if len(columns) > 1 {
			if err := flattenBuckets(bucket, columns[1:], row, withCount, out); err != nil {
				return err
			}
			continue
		}
		if withCount {
			var n int64
			if err := json.Unmarshal(bucket["doc_count"], &n); err != nil {
				return fmt.Errorf("decoding by_%s doc_count: %w", col, err)
			}
			row["_count"] = n
		}
		*out = append(*out, row)
	}
	return nil
}

// FromCount wraps a plain count.
func FromCount(n int64, dsl map[string]any) *Result {
	return &Result{Documents: []Document{}, Meta: Meta{Success: true, Total: n, Query: dsl}}
}

// FromBulk wraps a bulk insert outcome. The result is successful only when
// no document failed. With returnData the documents are the inserted
// echoes; otherwise the single document is the aggregate metadata.
func FromBulk(b *bulk.Result, returnData bool) *Result {
	res := &Result{Documents: []Document{}, Bulk: b}
	switch payload := b.Payload(returnData).(type) {
	case []map[string]any:
		for _, d := range payload {
			res.Documents = append(res.Documents, Document(d))
		}
	case map[string]any:
		res.Documents = append(res.Documents, Document(payload))
	}
	res.Meta = Meta{Success: !b.HasErrors, Error: b.Message, Took: b.Took, Total: int64(b.Total)}
	return res
}

// FromByQuery wraps a delete_by_query or update_by_query response. Version
// conflicts and other per-document failures make the result unsuccessful.
func FromByQuery(resp *backend.ByQueryResponse, dsl map[string]any) *Result {
	res := &Result{Documents: []Document{}, Meta: Meta{
		Success:  len(resp.Failures) == 0,
		Took:     resp.Took,
		TimedOut: resp.TimedOut,
		Total:    resp.Total,
		Deleted:  resp.Deleted,
		Updated:  resp.Updated,
		Query:    dsl,
	}}
	if len(resp.Failures) > 0 {
		parts := make([]string, 0, len(resp.Failures))
		for _, f := range resp.Failures {
			parts = append(parts, string(f))
		}
		res.Meta.Error = fmt.Sprintf("%d failures: %s", len(resp.Failures), strings.Join(parts, ", "))
	}
	return res
}

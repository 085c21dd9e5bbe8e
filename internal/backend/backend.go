package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SearchResponse is the decoded body of a _search call.
type SearchResponse struct {
	Took     int             `json:"took"`
	TimedOut bool            `json:"timed_out"`
	Shards   json.RawMessage `json:"_shards,omitempty"`
	Hits     HitsResult      `json:"hits"`
	// Aggregations are kept raw and decoded by the result normalizer.
	Aggregations json.RawMessage `json:"aggregations,omitempty"`
	PitID        string          `json:"pit_id,omitempty"`
}

// HitsResult contains the search hits.
type HitsResult struct {
	Total    HitsTotal `json:"total"`
	MaxScore *float64  `json:"max_score"`
	Hits     []Hit     `json:"hits"`
}

// HitsTotal represents the total hit count.
type HitsTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

// Hit is one search hit.
type Hit struct {
	Index     string                     `json:"_index"`
	ID        string                     `json:"_id"`
	Score     *float64                   `json:"_score"`
	Source    map[string]any             `json:"_source"`
	Sort      []any                      `json:"sort,omitempty"`
	Highlight map[string][]string        `json:"highlight,omitempty"`
	InnerHits map[string]InnerHitsResult `json:"inner_hits,omitempty"`
}

// UnmarshalJSON keeps numeric sort values as json.Number. Long and
// date_nanos sort keys exceed float64 precision and must be sent back
// unchanged as search_after.
func (h *Hit) UnmarshalJSON(data []byte) error {
	type plain Hit
	var aux struct {
		plain
		Sort json.RawMessage `json:"sort,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*h = Hit(aux.plain)
	h.Sort = nil
	if len(aux.Sort) == 0 || bytes.Equal(aux.Sort, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(aux.Sort))
	dec.UseNumber()
	if err := dec.Decode(&h.Sort); err != nil {
		return fmt.Errorf("decoding hit sort: %w", err)
	}
	return nil
}

// InnerHitsResult wraps the hits returned for one inner_hits section.
type InnerHitsResult struct {
	Hits HitsResult `json:"hits"`
}

// BulkResponse is the decoded body of a _bulk call.
type BulkResponse struct {
	Took   int        `json:"took"`
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"-"`
}

// BulkItem is the outcome of one bulk action.
type BulkItem struct {
	Action string
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Result string          `json:"result"` // created, updated, ...
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Failed reports whether the action was rejected.
func (i BulkItem) Failed() bool {
	return i.Status >= 300 || len(i.Error) > 0
}

// ByQueryResponse is the decoded body of _delete_by_query and
// _update_by_query calls.
type ByQueryResponse struct {
	Took     int               `json:"took"`
	TimedOut bool              `json:"timed_out"`
	Total    int64             `json:"total"`
	Deleted  int64             `json:"deleted"`
	Updated  int64             `json:"updated"`
	Failures []json.RawMessage `json:"failures"`
}

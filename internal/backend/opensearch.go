package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/leonunix/docquery/internal/util"
)

// OpenSearch is the HTTP transport for an OpenSearch cluster.
type OpenSearch struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	retries  uint64
	backoff  time.Duration
}

// Option configures an OpenSearch client.
type Option func(*OpenSearch)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenSearch) {
		if c != nil {
			o.client = c
		}
	}
}

// WithRetries sets how many times a request is retried on 429, 502, 503,
// 504 and network errors.
func WithRetries(n uint64) Option {
	return func(o *OpenSearch) { o.retries = n }
}

// WithBackoff sets the base of the Fibonacci retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(o *OpenSearch) {
		if d > 0 {
			o.backoff = d
		}
	}
}

// NewOpenSearch creates a new OpenSearch client.
func NewOpenSearch(baseURL, username, password string, opts ...Option) *OpenSearch {
	o := &OpenSearch{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{},
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenSearch) Name() string { return "opensearch" }

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do sends one request and returns the response body. Responses with status
// >= 400 become *HTTPStatusError.
func (o *OpenSearch) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	reqURL := o.baseURL + path
	var out []byte

	b := retry.WithMaxRetries(o.retries, retry.NewFibonacci(o.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		o.setAuth(req)

		resp, err := o.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			slog.Warn("opensearch request failed, retrying", "method", method, "path", path, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= 400 {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, URL: reqURL, Body: string(respBody)}
			if retryableStatus(resp.StatusCode) {
				slog.Warn("opensearch request throttled, retrying", "method", method, "path", path, "status", resp.StatusCode)
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}
		out = respBody
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OpenSearch) doJSON(ctx context.Context, method, path string, body []byte, v any) error {
	respBody, err := o.do(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Search executes a search. An empty index searches without an index path,
// as required for point in time searches.
func (o *OpenSearch) Search(ctx context.Context, index string, body []byte) (*SearchResponse, error) {
	path := "/_search"
	if index != "" {
		path = "/" + url.PathEscape(index) + "/_search"
	}
	var result SearchResponse
	if err := o.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		logStatus("search", index, err)
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	return &result, nil
}

// Count returns the number of documents matching body.
func (o *OpenSearch) Count(ctx context.Context, index string, body []byte) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	if err := o.doJSON(ctx, http.MethodPost, "/"+url.PathEscape(index)+"/_count", body, &result); err != nil {
		logStatus("count", index, err)
		return 0, fmt.Errorf("executing count request: %w", err)
	}
	return result.Count, nil
}

// Bulk indexes docs into index. A document's "_id" key, when present, is
// used as the document id and removed from the source.
func (o *OpenSearch) Bulk(ctx context.Context, index string, docs []map[string]any, refresh bool) (*BulkResponse, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"_index": index}
		source := doc
		if id, ok := doc["_id"]; ok {
			meta["_id"] = fmt.Sprint(id)
			source = make(map[string]any, len(doc))
			for k, v := range doc {
				if k != "_id" {
					source[k] = v
				}
			}
		}
		if err := enc.Encode(map[string]any{"index": meta}); err != nil {
			return nil, fmt.Errorf("encoding bulk action: %w", err)
		}
		if err := enc.Encode(source); err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
	}

	path := "/_bulk"
	if refresh {
		path += "?refresh=true"
	}
	respBody, err := o.do(ctx, http.MethodPost, path, "application/x-ndjson", buf.Bytes())
	if err != nil {
		logStatus("bulk", index, err)
		return nil, fmt.Errorf("executing bulk request: %w", err)
	}

	var raw struct {
		Took   int                   `json:"took"`
		Errors bool                  `json:"errors"`
		Items  []map[string]BulkItem `json:"items"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}
	result := &BulkResponse{Took: raw.Took, Errors: raw.Errors, Items: make([]BulkItem, 0, len(raw.Items))}
	for _, entry := range raw.Items {
		for action, item := range entry {
			item.Action = action
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

// FieldMapping returns field name to type for every field of index matching
// pattern. Multi-field sub-fields are reported as "field.sub".
func (o *OpenSearch) FieldMapping(ctx context.Context, index, pattern string) (map[string]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	path := "/" + url.PathEscape(index) + "/_mapping/field/" + url.PathEscape(pattern)

	var raw map[string]struct {
		Mappings map[string]struct {
			FullName string `json:"full_name"`
			Mapping  map[string]struct {
				Type   string `json:"type"`
				Fields map[string]struct {
					Type string `json:"type"`
				} `json:"fields"`
			} `json:"mapping"`
		} `json:"mappings"`
	}
	if err := o.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching field mapping for %s: %w", index, err)
	}

	// Aliases and patterns can resolve to several indices; read them in a
	// stable order so the first definition of a field wins.
	indices := make([]string, 0, len(raw))
	for name := range raw {
		indices = append(indices, name)
	}
	sort.Strings(indices)

	fields := map[string]string{}
	for _, name := range indices {
		for key, item := range raw[name].Mappings {
			for _, details := range item.Mapping {
				if details.Type != "" && util.MatchFields(pattern, key) {
					if _, seen := fields[key]; !seen {
						fields[key] = details.Type
					}
				}
				for sub, subDetails := range details.Fields {
					subName := key + "." + sub
					if _, seen := fields[subName]; !seen {
						fields[subName] = subDetails.Type
					}
				}
			}
		}
	}
	return fields, nil
}

// DeleteByQuery deletes documents matching the given query from the index.
func (o *OpenSearch) DeleteByQuery(ctx context.Context, index string, body []byte, refresh bool) (*ByQueryResponse, error) {
	path := "/" + url.PathEscape(index) + "/_delete_by_query?conflicts=proceed"
	if refresh {
		path += "&refresh=true"
	}
	var result ByQueryResponse
	if err := o.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		logStatus("delete_by_query", index, err)
		return nil, fmt.Errorf("executing delete_by_query: %w", err)
	}
	return &result, nil
}

// UpdateByQuery runs the script in body on every matching document.
func (o *OpenSearch) UpdateByQuery(ctx context.Context, index string, body []byte, refresh bool) (*ByQueryResponse, error) {
	path := "/" + url.PathEscape(index) + "/_update_by_query?conflicts=proceed"
	if refresh {
		path += "&refresh=true"
	}
	var result ByQueryResponse
	if err := o.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		logStatus("update_by_query", index, err)
		return nil, fmt.Errorf("executing update_by_query: %w", err)
	}
	return &result, nil
}

// OpenPIT creates a point in time on index and returns its id.
func (o *OpenSearch) OpenPIT(ctx context.Context, index, keepAlive string) (string, error) {
	if keepAlive == "" {
		keepAlive = "5m"
	}
	path := "/" + url.PathEscape(index) + "/_search/point_in_time?keep_alive=" + url.QueryEscape(keepAlive)
	var result struct {
		PitID string `json:"pit_id"`
	}
	if err := o.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return "", fmt.Errorf("opening point in time on %s: %w", index, err)
	}
	if result.PitID == "" {
		return "", fmt.Errorf("opening point in time on %s: empty pit_id", index)
	}
	return result.PitID, nil
}

// ClosePIT releases a point in time. Unknown ids are not an error.
func (o *OpenSearch) ClosePIT(ctx context.Context, id string) error {
	body, _ := json.Marshal(map[string][]string{"pit_id": {id}})
	err := o.doJSON(ctx, http.MethodDelete, "/_search/point_in_time", body, nil)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("closing point in time: %w", err)
	}
	return nil
}

// Raw sends body to path as-is and returns the response body.
func (o *OpenSearch) Raw(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if len(path) == 0 || path[0] != '/' {
		path = "/" + path
	}
	return o.do(ctx, method, path, "application/json", body)
}

func (o *OpenSearch) setAuth(req *http.Request) {
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}
}

func logStatus(op, index string, err error) {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		slog.Error("opensearch "+op+" error", "index", index, "status", statusErr.StatusCode, "body", statusErr.Body)
	}
}

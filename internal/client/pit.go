package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leonunix/docquery/internal/query"
	"github.com/leonunix/docquery/internal/result"
)

const defaultKeepAlive = "5m"

// OpenPIT opens a point in time on index.
func (c *Client) OpenPIT(ctx context.Context, index, keepAlive string) (string, error) {
	if keepAlive == "" {
		keepAlive = defaultKeepAlive
	}
	id, err := c.transport.OpenPIT(ctx, index, keepAlive)
	if err != nil {
		return "", execErr("open pit", err)
	}
	return id, nil
}

// PITFind reads count documents from the point in time pitID, resuming
// after the given sort values. index is only used to resolve keyword
// fields; the point in time determines what is searched. Without an
// explicit sort, hits are ordered by _shard_doc. The next call should pass
// Meta.LastSort as after and Meta.PitID as pitID, since the engine may
// rotate the id.
func (c *Client) PITFind(ctx context.Context, index string, b *query.Builder, count int, pitID string, after []any, keepAlive string) (res *result.Result, err error) {
	defer c.observe("pit_find", time.Now(), &err)

	if pitID == "" {
		return nil, &query.ParameterError{Msg: "point in time id is required"}
	}
	if keepAlive == "" {
		keepAlive = defaultKeepAlive
	}
	if b == nil {
		b = query.New()
	}
	b = b.Clone()
	if count > 0 {
		b.Limit(count)
	}
	if len(b.Sorts) == 0 {
		b.OrderBy("_shard_doc", "asc")
	}
	if len(after) > 0 {
		b.WithSearchAfter(after...)
	}

	req, err := c.compiler.Compile(ctx, index, b)
	if err != nil {
		return nil, err
	}
	req.Index = ""
	req.Body["pit"] = map[string]any{"id": pitID, "keep_alive": keepAlive}
	res, err = c.search(ctx, "pit_find", req)
	if err != nil {
		return nil, err
	}
	if res.Meta.PitID == "" {
		res.Meta.PitID = pitID
	}
	return res, nil
}

// ClosePIT releases pitID. Closing an unknown id succeeds.
func (c *Client) ClosePIT(ctx context.Context, pitID string) error {
	if err := c.transport.ClosePIT(ctx, pitID); err != nil {
		return execErr("close pit", err)
	}
	return nil
}

// Execute sends body to path unchanged and returns the raw response.
// Failures are returned exactly as the transport reported them.
func (c *Client) Execute(ctx context.Context, method, path string, body any) (raw json.RawMessage, err error) {
	defer c.observe("execute", time.Now(), &err)

	var data []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}
	out, err := c.transport.Raw(ctx, method, path, data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

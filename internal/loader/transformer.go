package loader

import (
	"encoding/json"
	"fmt"
)

// DecodeLine parses one NDJSON line into a document. A line holding a
// search hit is unwrapped to its _source, keeping the hit's _id, so the
// output of a search export can be loaded back as-is.
func DecodeLine(line []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parsing document: not a JSON object")
	}

	source, ok := doc["_source"].(map[string]any)
	if !ok {
		return doc, nil
	}
	if id, ok := doc["_id"]; ok {
		source["_id"] = id
	}
	return source, nil
}

package loader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leonunix/docquery/internal/bulk"
)

// RunsIndex receives one document per loader run.
const RunsIndex = ".docquery-load-runs"

// IndexRunStore records run metrics as documents in RunsIndex.
type IndexRunStore struct {
	dispatcher bulk.Dispatcher
}

// NewIndexRunStore creates a run store writing through d.
func NewIndexRunStore(d bulk.Dispatcher) *IndexRunStore {
	return &IndexRunStore{dispatcher: d}
}

// runDocID is deterministic so a retried record overwrites instead of
// duplicating.
func runDocID(m *RunMetric) string {
	return fmt.Sprintf("run-%s-%s-%d", m.Index, sourceKey(m.Source), m.StartedAt.Unix())
}

// Record persists a run metric document.
func (s *IndexRunStore) Record(ctx context.Context, metric *RunMetric) error {
	data, err := json.Marshal(metric)
	if err != nil {
		return fmt.Errorf("marshaling run metric: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("marshaling run metric: %w", err)
	}
	doc["_id"] = runDocID(metric)

	resp, err := s.dispatcher.Bulk(ctx, RunsIndex, []map[string]any{doc}, false)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", doc["_id"], err)
	}
	for _, item := range resp.Items {
		if item.Failed() {
			return fmt.Errorf("recording run %s: status=%d error=%s", item.ID, item.Status, string(item.Error))
		}
	}
	return nil
}

var _ RunRecorder = (*IndexRunStore)(nil)

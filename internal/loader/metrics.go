package loader

import (
	"context"
	"time"
)

// RunMetric records the outcome of loading one source.
type RunMetric struct {
	Timestamp       time.Time `json:"@timestamp"`
	Index           string    `json:"index"`
	Source          string    `json:"source"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSec     float64   `json:"duration_sec"`
	DocumentsLoaded int64     `json:"documents_loaded"`
	DocumentsFailed int64     `json:"documents_failed"`
	DocsPerSec      float64   `json:"docs_per_sec"`
	BatchSize       int       `json:"batch_size"`
	Status          string    `json:"status"` // "success", "partial" or "failed"
	Error           string    `json:"error,omitempty"`
}

// RunRecorder persists run metrics for later analysis.
type RunRecorder interface {
	Record(ctx context.Context, metric *RunMetric) error
}

func newRunMetric(index, source string, startTime time.Time, loaded, failed int64, batchSize int, err error) *RunMetric {
	now := time.Now().UTC()
	elapsed := now.Sub(startTime)
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(loaded) / elapsed.Seconds()
	}
	m := &RunMetric{
		Timestamp:       now,
		Index:           index,
		Source:          source,
		StartedAt:       startTime.UTC(),
		CompletedAt:     now,
		DurationSec:     elapsed.Seconds(),
		DocumentsLoaded: loaded,
		DocumentsFailed: failed,
		DocsPerSec:      rate,
		BatchSize:       batchSize,
		Status:          "success",
	}
	switch {
	case err != nil:
		m.Status = "failed"
		m.Error = err.Error()
	case failed > 0:
		m.Status = "partial"
	}
	return m
}

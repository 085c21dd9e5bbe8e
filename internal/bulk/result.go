package bulk

const (
	msgAllFailed  = "Bulk insert failed for all values"
	msgSomeFailed = "Bulk insert failed for some values"
)

// ErrorEntry describes one rejected document, or a whole chunk when
// Position is -1.
type ErrorEntry struct {
	Chunk    int            `json:"chunk"`
	Position int            `json:"position"`
	ID       string         `json:"_id,omitempty"`
	Status   int            `json:"status,omitempty"`
	Reason   string         `json:"reason"`
	Document map[string]any `json:"document,omitempty"`
}

// Result is the folded outcome of a bulk insert.
type Result struct {
	HasErrors bool             `json:"hasErrors"`
	Total     int              `json:"total"`
	Took      int              `json:"took"`
	Success   int              `json:"success"`
	Created   int              `json:"created"`
	Modified  int              `json:"modified"`
	Failed    int              `json:"failed"`
	Data      []map[string]any `json:"data"`
	ErrorBag  []ErrorEntry     `json:"error_bag"`
	Message   string           `json:"message,omitempty"`
}

func (r *Result) fold(c *chunkOutcome) {
	if c.hasErrors {
		r.HasErrors = true
	}
	r.Total += c.total
	r.Took += c.took
	r.Success += c.success
	r.Failed += c.failed
	r.Created += c.created
	r.Modified += c.modified
	r.Data = append(r.Data, c.data...)
	r.ErrorBag = append(r.ErrorBag, c.errs...)
}

func (r *Result) finish() {
	if !r.HasErrors {
		r.Message = ""
		return
	}
	if r.Success > 0 {
		r.Message = msgSomeFailed
	} else {
		r.Message = msgAllFailed
	}
}

// Meta returns the aggregate counters and errors as a plain map.
func (r *Result) Meta() map[string]any {
	m := map[string]any{
		"success":  !r.HasErrors,
		"took":     r.Took,
		"total":    r.Total,
		"created":  r.Created,
		"modified": r.Modified,
		"failed":   r.Failed,
	}
	if r.HasErrors {
		m["error"] = map[string]any{"msg": r.Message, "data": r.ErrorBag}
	}
	return m
}

// Payload returns the per-document echoes when returnData is set, and the
// aggregate metadata otherwise.
func (r *Result) Payload(returnData bool) any {
	if returnData {
		return r.Data
	}
	return r.Meta()
}

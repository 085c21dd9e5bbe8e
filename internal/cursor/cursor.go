// Package cursor implements search_after pagination state.
//
// A State is owned by the caller. Each paginated call takes the previous
// state (or a fresh one), embeds its next_sort as search_after, and returns
// the state advanced by the fetched page. States round-trip through an
// opaque token so clients can hand them back verbatim.
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the pagination phase derived from a State.
type Phase int

const (
	// Fresh: no page has been fetched yet.
	Fresh Phase = iota
	// Active: next_sort points at the page after the current one.
	Active
	// Exhausted: the last fetch returned no hits.
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Active:
		return "active"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// State is the cursor carried between paginated calls.
type State struct {
	Page        int     `json:"page"`
	Pages       int     `json:"pages"`
	Records     int64   `json:"records"`
	SortHistory [][]any `json:"sort_history"`
	NextSort    []any   `json:"next_sort"`
	Timestamp   int64   `json:"ts"`
	Exhausted   bool    `json:"exhausted,omitempty"`
}

// New returns a fresh cursor on page 1.
func New() State {
	return State{Page: 1, SortHistory: [][]any{}}
}

// Phase reports where the cursor is in its lifecycle.
func (s State) Phase() Phase {
	switch {
	case s.Exhausted:
		return Exhausted
	case len(s.NextSort) > 0:
		return Active
	default:
		return Fresh
	}
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	c := s
	c.NextSort = append([]any(nil), s.NextSort...)
	c.SortHistory = make([][]any, len(s.SortHistory))
	for i, h := range s.SortHistory {
		c.SortHistory[i] = append([]any(nil), h...)
	}
	return c
}

// SearchAfter returns the sort values the next request should resume
// after, or nil for the first page.
func (s State) SearchAfter() []any {
	if len(s.NextSort) == 0 {
		return nil
	}
	return s.NextSort
}

// Advance folds a fetched page into the cursor. lastSort is the sort tuple
// of the page's last hit, total the total hit count reported by the engine.
func (s State) Advance(hits int, lastSort []any, total int64, perPage int, now time.Time) State {
	next := s.Clone()
	if next.Page < 1 {
		next.Page = 1
	}
	if next.SortHistory == nil {
		next.SortHistory = [][]any{}
	}
	next.Records = total
	next.Pages = pageCount(total, perPage)
	next.Timestamp = now.Unix()

	if hits == 0 {
		next.Exhausted = true
		return next
	}

	if len(next.NextSort) > 0 {
		next.SortHistory = append(next.SortHistory, next.NextSort)
		next.Page++
	}
	next.NextSort = append([]any(nil), lastSort...)
	next.Exhausted = false
	return next
}

// Previous rewinds the cursor so that the next Advance yields the page
// before the current one. It reports false when already on the first page.
func (s State) Previous() (State, bool) {
	if s.Page <= 1 {
		return s, false
	}
	prev := s.Clone()
	prev.Exhausted = false
	target := s.Page - 1
	if target == 1 {
		prev.Page = 1
		prev.NextSort = nil
		prev.SortHistory = [][]any{}
		return prev, true
	}
	// history[i] is the search_after that produced page i+2.
	idx := target - 2
	if idx >= len(prev.SortHistory) {
		return s, false
	}
	prev.Page = target - 1
	prev.NextSort = prev.SortHistory[idx]
	prev.SortHistory = prev.SortHistory[:idx]
	return prev, true
}

func pageCount(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// Encode returns the opaque token for s.
func (s State) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a token produced by Encode. An empty token yields a fresh
// cursor.
func Decode(token string) (State, error) {
	if token == "" {
		return New(), nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return State{}, fmt.Errorf("decoding cursor token: %w", err)
	}
	// Sort values stay json.Number so long keys survive the round trip.
	var s State
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return State{}, fmt.Errorf("parsing cursor token: %w", err)
	}
	if s.Page < 1 {
		s.Page = 1
	}
	if s.SortHistory == nil {
		s.SortHistory = [][]any{}
	}
	return s, nil
}

package query

import (
	"strings"

	"github.com/leonunix/docquery/internal/cursor"
)

// SortKind distinguishes plain, geo-distance and nested-path sorts.
type SortKind int

const (
	SortPlain SortKind = iota
	SortGeo
	SortNested
)

// Sort is one entry of the ordered sort specification.
type Sort struct {
	Field string
	Kind  SortKind
	Order string // "asc" or "desc"
	Mode  string // min, max, avg, sum, median

	// Geo sorts only.
	Pin          any
	Unit         string
	DistanceType string // arc or plane

	// Extra carries additional sort keys (missing, unmapped_type, ...)
	// set through WithSort.
	Extra map[string]any
}

// Highlight describes the body.highlight section.
type Highlight struct {
	// Fields maps a field to its highlight options. Empty means every field.
	Fields   map[string]map[string]any
	PreTags  []string
	PostTags []string
	Global   map[string]any
}

// GeoBox restricts hits to a bounding box.
type GeoBox struct {
	Field       string
	TopLeft     any
	BottomRight any
}

// GeoDistance restricts hits to a radius around a point.
type GeoDistance struct {
	Field    string
	Distance string
	Lat      float64
	Lon      float64
}

// RandomScore replaces relevance with a seeded random score.
type RandomScore struct {
	Field string
	Seed  int64
}

// Options holds everything that shapes a request besides the predicates.
type Options struct {
	Sorts        []Sort
	Size         int
	From         int
	MinScore     float64
	Highlighting *Highlight
	GeoBox       *GeoBox
	GeoDistance  *GeoDistance
	Random       *RandomScore

	// Cursor is the pagination state threaded through paginated calls.
	// Its next_sort becomes body.search_after.
	Cursor *cursor.State
	// SearchAfter is an explicit search_after, used when Cursor is unset.
	SearchAfter     []any
	PrevSearchAfter []any

	Columns []string
}

// NewOptions returns empty options.
func NewOptions() *Options { return &Options{} }

// Clone returns a deep enough copy that mutating the clone leaves o intact.
func (o *Options) Clone() *Options {
	if o == nil {
		return NewOptions()
	}
	c := *o
	c.Sorts = make([]Sort, len(o.Sorts))
	for i, s := range o.Sorts {
		if s.Extra != nil {
			extra := make(map[string]any, len(s.Extra))
			for k, v := range s.Extra {
				extra[k] = v
			}
			s.Extra = extra
		}
		c.Sorts[i] = s
	}
	if o.Highlighting != nil {
		h := *o.Highlighting
		c.Highlighting = &h
	}
	if o.Cursor != nil {
		st := o.Cursor.Clone()
		c.Cursor = &st
	}
	c.SearchAfter = append([]any(nil), o.SearchAfter...)
	c.PrevSearchAfter = append([]any(nil), o.PrevSearchAfter...)
	c.Columns = append([]string(nil), o.Columns...)
	return &c
}

// IsZero reports whether no option has been set.
func (o *Options) IsZero() bool {
	return o == nil || (len(o.Sorts) == 0 && o.Size == 0 && o.From == 0 && o.MinScore == 0 &&
		o.Highlighting == nil && o.GeoBox == nil && o.GeoDistance == nil && o.Random == nil &&
		o.Cursor == nil && len(o.SearchAfter) == 0 && len(o.PrevSearchAfter) == 0)
}

func (o *Options) putSort(s Sort) *Options {
	for i := range o.Sorts {
		if o.Sorts[i].Field == s.Field {
			o.Sorts[i] = s
			return o
		}
	}
	o.Sorts = append(o.Sorts, s)
	return o
}

func normalizeOrder(direction string) string {
	if strings.EqualFold(strings.TrimSpace(direction), "desc") {
		return "desc"
	}
	return "asc"
}

// OrderBy sorts by field. Anything other than "desc" sorts ascending.
// Ordering by the same field twice replaces the earlier entry in place.
func (o *Options) OrderBy(field, direction string) *Options {
	return o.putSort(Sort{Field: field, Kind: SortPlain, Order: normalizeOrder(direction)})
}

func (o *Options) OrderByDesc(field string) *Options { return o.OrderBy(field, "desc") }

// WithSort sets an extra key on the sort entry for field, creating a plain
// ascending entry if there is none yet. "order" and "mode" update the
// typed fields.
func (o *Options) WithSort(field, key string, value any) *Options {
	idx := -1
	for i := range o.Sorts {
		if o.Sorts[i].Field == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.Sorts = append(o.Sorts, Sort{Field: field, Kind: SortPlain, Order: "asc"})
		idx = len(o.Sorts) - 1
	}
	s := &o.Sorts[idx]
	switch key {
	case "order":
		if v, ok := value.(string); ok {
			s.Order = normalizeOrder(v)
		}
	case "mode":
		if v, ok := value.(string); ok {
			s.Mode = v
		}
	default:
		if s.Extra == nil {
			s.Extra = map[string]any{}
		}
		s.Extra[key] = value
	}
	return o
}

// OrderByGeo sorts by distance from pin. unit defaults to "km".
func (o *Options) OrderByGeo(field string, pin any, direction, unit, mode, distanceType string) *Options {
	if unit == "" {
		unit = "km"
	}
	return o.putSort(Sort{
		Field:        field,
		Kind:         SortGeo,
		Order:        normalizeOrder(direction),
		Pin:          pin,
		Unit:         unit,
		Mode:         mode,
		DistanceType: distanceType,
	})
}

func (o *Options) OrderByGeoDesc(field string, pin any, unit, mode, distanceType string) *Options {
	return o.OrderByGeo(field, pin, "desc", unit, mode, distanceType)
}

// OrderByNested sorts by a field inside a nested object. The nested path is
// the field up to its last dot.
func (o *Options) OrderByNested(field, direction, mode string) *Options {
	return o.putSort(Sort{Field: field, Kind: SortNested, Order: normalizeOrder(direction), Mode: mode})
}

func (o *Options) Limit(n int) *Options {
	o.Size = n
	return o
}

func (o *Options) Offset(n int) *Options {
	o.From = n
	return o
}

func (o *Options) WithMinScore(v float64) *Options {
	o.MinScore = v
	return o
}

// Highlight enables highlighting. No fields means every field; empty tags
// default to <em> and </em>.
func (o *Options) Highlight(fields []string, preTag, postTag string, global map[string]any) *Options {
	h := &Highlight{Global: global}
	if len(fields) > 0 {
		h.Fields = make(map[string]map[string]any, len(fields))
		for _, f := range fields {
			h.Fields[f] = map[string]any{}
		}
	}
	if preTag == "" {
		preTag = "<em>"
	}
	if postTag == "" {
		postTag = "</em>"
	}
	h.PreTags = []string{preTag}
	h.PostTags = []string{postTag}
	o.Highlighting = h
	return o
}

// FilterGeoBox keeps only documents whose field lies in the box.
func (o *Options) FilterGeoBox(field string, topLeft, bottomRight any) *Options {
	o.GeoBox = &GeoBox{Field: field, TopLeft: topLeft, BottomRight: bottomRight}
	return o
}

// FilterGeoPoint keeps only documents within distance (e.g. "10km") of
// the point.
func (o *Options) FilterGeoPoint(field, distance string, lat, lon float64) *Options {
	o.GeoDistance = &GeoDistance{Field: field, Distance: distance, Lat: lat, Lon: lon}
	return o
}

// RandomScore wraps the query in a seeded random function score.
func (o *Options) RandomScore(field string, seed int64) *Options {
	o.Random = &RandomScore{Field: field, Seed: seed}
	return o
}

// WithCursor threads a pagination cursor into the request.
func (o *Options) WithCursor(st cursor.State) *Options {
	o.Cursor = &st
	return o
}

func (o *Options) WithSearchAfter(values ...any) *Options {
	o.SearchAfter = values
	return o
}

// Select limits the returned _source to columns. "*" selects everything.
func (o *Options) Select(columns ...string) *Options {
	o.Columns = columns
	return o
}

// AddSelect appends columns to the selection, skipping duplicates.
func (o *Options) AddSelect(columns ...string) *Options {
	seen := make(map[string]bool, len(o.Columns))
	for _, c := range o.Columns {
		seen[c] = true
	}
	for _, c := range columns {
		if !seen[c] {
			o.Columns = append(o.Columns, c)
			seen[c] = true
		}
	}
	return o
}

// SourceColumns returns the _source selection, or nil when everything is
// selected.
func (o *Options) SourceColumns() []string {
	if o == nil {
		return nil
	}
	var out []string
	for _, c := range o.Columns {
		if c != "*" && c != "" {
			out = append(out, c)
		}
	}
	return out
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/leonunix/docquery/internal/query"
)

// queryDoc is the JSON form of a builder accepted by the CLI.
type queryDoc struct {
	Index     string      `json:"index"`
	Where     []condition `json:"where"`
	Search    *searchDoc  `json:"search"`
	Sort      []sortDoc   `json:"sort"`
	Select    []string    `json:"select"`
	Limit     int         `json:"limit"`
	Offset    int         `json:"offset"`
	MinScore  float64     `json:"min_score"`
	Highlight []string    `json:"highlight"`
	GroupBy   []string    `json:"group_by"`
	WithCount bool        `json:"with_count"` // count rows of group_by
	After     []any       `json:"search_after"`
}

// condition is one clause. Exactly one of value/op, in, not_in, between,
// group or nested describes it; bool joins it to the previous clause.
type condition struct {
	Field     string      `json:"field"`
	Op        string      `json:"op"`
	Value     any         `json:"value"`
	In        []any       `json:"in"`
	NotIn     []any       `json:"not_in"`
	Between   []any       `json:"between"`
	Regex     string      `json:"regex"`
	Timestamp bool        `json:"timestamp"`
	Bool      string      `json:"bool"`
	Group     []condition `json:"group"`
	Nested    string      `json:"nested"` // object path; group holds the sub-conditions
	ScoreMode string      `json:"score_mode"`
}

type searchDoc struct {
	Term   string   `json:"term"`
	Fuzzy  bool     `json:"fuzzy"`
	Fields []string `json:"fields"`
}

type sortDoc struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

func readQueryDoc(path string) (*queryDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var doc queryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing query file %s: %w", path, err)
	}
	return &doc, nil
}

// Builder converts the document into a query builder. Errors recorded
// while building are reported by the builder itself at compile time.
func (d *queryDoc) Builder() (*query.Builder, error) {
	b := query.New()
	if err := addConditions(b.Tree, d.Where); err != nil {
		return nil, err
	}

	if s := d.Search; s != nil && s.Term != "" {
		if s.Fuzzy {
			b.FuzzyTerm(s.Term, 0)
		} else {
			b.Term(s.Term, 0)
		}
		if len(s.Fields) > 0 {
			b.SearchFields(s.Fields...)
		}
	}
	for _, s := range d.Sort {
		b.OrderBy(s.Field, s.Order)
	}
	if len(d.Select) > 0 {
		b.Select(d.Select...)
	}
	if d.Limit > 0 {
		b.Limit(d.Limit)
	}
	if d.Offset > 0 {
		b.Offset(d.Offset)
	}
	if d.MinScore > 0 {
		b.WithMinScore(d.MinScore)
	}
	if len(d.Highlight) > 0 {
		b.Highlight(d.Highlight, "", "", nil)
	}
	if len(d.GroupBy) > 0 {
		b.GroupBy(d.GroupBy...)
		b.Distinct(d.WithCount)
	}
	if len(d.After) > 0 {
		b.WithSearchAfter(d.After...)
	}
	return b, nil
}

func addConditions(t *query.Tree, conds []condition) error {
	for i, c := range conds {
		conn, err := query.ParseConnective(c.Bool)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		switch {
		case c.Nested != "":
			sub := query.NewTree()
			if err := addConditions(sub, c.Group); err != nil {
				return err
			}
			switch conn {
			case query.Or:
				t.OrWhereNestedObject(c.Nested, sub, c.ScoreMode)
			case query.OrNot:
				t.OrWhereNotNestedObject(c.Nested, sub, c.ScoreMode)
			case query.AndNot:
				t.WhereNotNestedObject(c.Nested, sub, c.ScoreMode)
			default:
				t.WhereNestedObject(c.Nested, sub, c.ScoreMode)
			}
		case c.Group != nil:
			sub := query.NewTree()
			if err := addConditions(sub, c.Group); err != nil {
				return err
			}
			t.WhereGroupAs(conn.String(), sub)
		case c.In != nil:
			addIn(t, c.Field, c.In, conn, false)
		case c.NotIn != nil:
			addIn(t, c.Field, c.NotIn, conn, true)
		case c.Between != nil:
			if len(c.Between) != 2 {
				return fmt.Errorf("condition %d: between needs exactly two values", i)
			}
			switch conn {
			case query.Or:
				t.OrWhereBetween(c.Field, c.Between[0], c.Between[1])
			case query.OrNot:
				t.OrWhereNotBetween(c.Field, c.Between[0], c.Between[1])
			case query.AndNot:
				t.WhereNotBetween(c.Field, c.Between[0], c.Between[1])
			default:
				t.WhereBetween(c.Field, c.Between[0], c.Between[1])
			}
		case c.Regex != "":
			switch conn {
			case query.Or:
				t.OrWhereRegex(c.Field, c.Regex)
			case query.OrNot:
				t.OrWhereNotRegex(c.Field, c.Regex)
			case query.AndNot:
				t.WhereNotRegex(c.Field, c.Regex)
			default:
				t.WhereRegex(c.Field, c.Regex)
			}
		case c.Timestamp:
			switch conn {
			case query.Or:
				t.OrWhereTimestamp(c.Field, c.Op, c.Value)
			case query.OrNot:
				t.OrWhereNotTimestamp(c.Field, c.Op, c.Value)
			case query.AndNot:
				t.WhereNotTimestamp(c.Field, c.Op, c.Value)
			default:
				t.WhereTimestamp(c.Field, c.Op, c.Value)
			}
		default:
			switch conn {
			case query.Or:
				t.OrWhere(c.Field, c.Op, c.Value)
			case query.OrNot:
				t.OrWhereNot(c.Field, c.Op, c.Value)
			case query.AndNot:
				t.WhereNot(c.Field, c.Op, c.Value)
			default:
				t.Where(c.Field, c.Op, c.Value)
			}
		}
	}
	return nil
}

// addIn records an in/not_in list. A negated connective flips the list.
func addIn(t *query.Tree, field string, values []any, conn query.Connective, notIn bool) {
	if conn.Negated() {
		notIn = !notIn
	}
	switch {
	case conn.OpensBucket() && notIn:
		t.OrWhereNotIn(field, values...)
	case conn.OpensBucket():
		t.OrWhereIn(field, values...)
	case notIn:
		t.WhereNotIn(field, values...)
	default:
		t.WhereIn(field, values...)
	}
}

// parseAgg accepts "fn" or "fn:column".
func parseAgg(s string) (fn, column string) {
	fn, column, _ = strings.Cut(s, ":")
	return strings.ToLower(fn), column
}

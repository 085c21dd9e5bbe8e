package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Distinct modes for aggregated reads.
const (
	DistinctOff = iota
	DistinctOn
	DistinctWithCount
)

// BoostedField is a full-text search field with its boost factor.
type BoostedField struct {
	Field string
	Boost float64
}

// Builder is the fluent query object handed to the compiler: a predicate
// tree, its options and the optional full-text search chain.
type Builder struct {
	*Tree
	*Options

	searchQuery   string
	searchFields  []BoostedField
	searchOptions map[string]any
	distinct      int
	err           error
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{Tree: NewTree(), Options: NewOptions()}
}

// Err returns the first error recorded by the predicate tree or the search
// chain.
func (b *Builder) Err() error {
	if b == nil {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	return b.Tree.Err()
}

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		Tree:         b.Tree.Clone(),
		Options:      b.Options.Clone(),
		searchQuery:  b.searchQuery,
		searchFields: append([]BoostedField(nil), b.searchFields...),
		distinct:     b.distinct,
		err:          b.err,
	}
	if b.searchOptions != nil {
		c.searchOptions = make(map[string]any, len(b.searchOptions))
		for k, v := range b.searchOptions {
			c.searchOptions[k] = v
		}
	}
	return c
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

type termStyle int

const (
	styleTerm termStyle = iota
	styleFuzzy
	styleRegex
	stylePhrase
)

var startNames = map[termStyle][2]string{
	styleTerm:   {"term()", "andTerm()/orTerm()"},
	styleFuzzy:  {"fuzzyTerm()", "andFuzzyTerm()/orFuzzyTerm()"},
	styleRegex:  {"regEx()", "andRegEx()/orRegEx()"},
	stylePhrase: {"phrase()", "andPhrase()/orPhrase()"},
}

func (b *Builder) searchTerm(term string, boost float64, clause string, style termStyle) *Builder {
	names := startNames[style]
	if clause == "" && b.searchQuery != "" {
		return b.fail(&SequencingError{Msg: names[0] + " should only start the ORM chain"})
	}
	if clause != "" && b.searchQuery == "" {
		return b.fail(&SequencingError{Msg: names[1] + " cannot start the ORM chain"})
	}

	var next string
	switch style {
	case styleFuzzy:
		next = "(" + Escape(term) + "~)"
	case styleRegex:
		next = "(/" + term + "/)"
	case stylePhrase:
		next = `("` + Escape(term) + `")`
	default:
		next = "(" + Escape(term) + ")"
	}
	if boost > 0 {
		next += "^" + strconv.FormatFloat(boost, 'f', -1, 64)
	}

	if clause == "" {
		b.searchQuery = next
	} else {
		b.searchQuery = b.searchQuery + " " + strings.ToUpper(clause) + " " + next
	}
	return b
}

// Term starts the full-text chain. A zero boost leaves the term unboosted.
func (b *Builder) Term(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "", styleTerm)
}

func (b *Builder) AndTerm(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "and", styleTerm)
}

func (b *Builder) OrTerm(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "or", styleTerm)
}

func (b *Builder) FuzzyTerm(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "", styleFuzzy)
}

func (b *Builder) AndFuzzyTerm(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "and", styleFuzzy)
}

func (b *Builder) OrFuzzyTerm(term string, boost float64) *Builder {
	return b.searchTerm(term, boost, "or", styleFuzzy)
}

// RegEx adds an unescaped regular expression term.
func (b *Builder) RegEx(expression string, boost float64) *Builder {
	return b.searchTerm(expression, boost, "", styleRegex)
}

func (b *Builder) AndRegEx(expression string, boost float64) *Builder {
	return b.searchTerm(expression, boost, "and", styleRegex)
}

func (b *Builder) OrRegEx(expression string, boost float64) *Builder {
	return b.searchTerm(expression, boost, "or", styleRegex)
}

func (b *Builder) Phrase(phrase string, boost float64) *Builder {
	return b.searchTerm(phrase, boost, "", stylePhrase)
}

func (b *Builder) AndPhrase(phrase string, boost float64) *Builder {
	return b.searchTerm(phrase, boost, "and", stylePhrase)
}

func (b *Builder) OrPhrase(phrase string, boost float64) *Builder {
	return b.searchTerm(phrase, boost, "or", stylePhrase)
}

func (b *Builder) setSearchField(field string, boost float64, keep bool) {
	for i := range b.searchFields {
		if b.searchFields[i].Field == field {
			if !keep {
				b.searchFields[i].Boost = boost
			}
			return
		}
	}
	b.searchFields = append(b.searchFields, BoostedField{Field: field, Boost: boost})
}

// SearchFields restricts the search to fields, keeping any boost already
// set on them.
func (b *Builder) SearchFields(fields ...string) *Builder {
	for _, f := range fields {
		b.setSearchField(f, 1, true)
	}
	return b
}

// SearchField adds field with boost. A zero boost means 1.
func (b *Builder) SearchField(field string, boost float64) *Builder {
	if boost <= 0 {
		boost = 1
	}
	b.setSearchField(field, boost, false)
	return b
}

func (b *Builder) BoostField(field string, boost float64) *Builder {
	return b.SearchField(field, boost)
}

// MinShouldMatch sets minimum_should_match on the search clause.
func (b *Builder) MinShouldMatch(value any) *Builder {
	return b.SearchOption("minimum_should_match", value)
}

// SearchOption sets an arbitrary query_string option on the search clause.
func (b *Builder) SearchOption(key string, value any) *Builder {
	if b.searchOptions == nil {
		b.searchOptions = map[string]any{}
	}
	b.searchOptions[key] = value
	return b
}

// SearchQuery returns the composed query_string, empty when no term was
// added.
func (b *Builder) SearchQuery() string { return b.searchQuery }

// SearchFieldList returns the boosted search fields in insertion order.
func (b *Builder) SearchFieldList() []BoostedField {
	return append([]BoostedField(nil), b.searchFields...)
}

// SearchOptions returns a copy of the query_string options.
func (b *Builder) SearchOptions() map[string]any {
	out := make(map[string]any, len(b.searchOptions))
	for k, v := range b.searchOptions {
		out[k] = v
	}
	return out
}

// Distinct switches reads to distinct term buckets over the selected
// columns, optionally with document counts.
func (b *Builder) Distinct(includeCount bool) *Builder {
	b.distinct = DistinctOn
	if includeCount {
		b.distinct = DistinctWithCount
	}
	return b
}

// GroupBy selects columns and reads them as distinct buckets.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.AddSelect(columns...)
	b.distinct = DistinctOn
	return b
}

// DistinctMode returns DistinctOff, DistinctOn or DistinctWithCount.
func (b *Builder) DistinctMode() int { return b.distinct }

// GroupByRaw has no engine equivalent.
func (b *Builder) GroupByRaw(sql string) *Builder {
	return b.fail(&UnsupportedError{Feature: "groupByRaw", Hint: fmt.Sprintf("raw grouping %q cannot be expressed as a search request", sql)})
}

const luceneReserved = `\+-=&|!(){}[]^"~*?:/`

// Escape backslash-escapes Lucene reserved characters and drops < and >,
// which cannot be escaped.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '<' || r == '>':
			continue
		case strings.ContainsRune(luceneReserved, r):
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

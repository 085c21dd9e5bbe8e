package query

// Tree is an ordered list of clauses built through fluent calls. The zero
// value is an empty tree, which compiles to match_all.
//
// Builder calls never panic: the first invalid call is remembered and
// returned by Err, and every compile of the tree fails with it.
type Tree struct {
	clauses []Clause
	err     error
}

// NewTree returns an empty tree.
func NewTree() *Tree { return &Tree{} }

// Clauses returns a copy of the recorded clauses in insertion order.
func (t *Tree) Clauses() []Clause {
	if t == nil {
		return nil
	}
	out := make([]Clause, len(t.clauses))
	copy(out, t.clauses)
	return out
}

// Len returns the number of recorded clauses.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.clauses)
}

// Err returns the first error recorded while building the tree.
func (t *Tree) Err() error {
	if t == nil {
		return nil
	}
	return t.err
}

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return NewTree()
	}
	return &Tree{clauses: t.Clauses(), err: t.err}
}

func (t *Tree) add(c Clause) *Tree {
	t.clauses = append(t.clauses, c)
	return t
}

func (t *Tree) fail(err error) *Tree {
	if t.err == nil {
		t.err = err
	}
	return t
}

func (t *Tree) basic(field, op string, value any, conn Connective) *Tree {
	o, err := ParseOperator(op)
	if err != nil {
		if pe, ok := err.(*ParameterError); ok {
			pe.Field = field
		}
		return t.fail(err)
	}
	if o == OpExists {
		if b, ok := value.(bool); ok && !b {
			o = OpNotExists
		}
	}
	return t.add(Clause{Field: field, Kind: KindBasic, Op: o, Value: value, Connective: conn})
}

// Where adds "field op value". An empty op means equality.
func (t *Tree) Where(field, op string, value any) *Tree { return t.basic(field, op, value, And) }

// OrWhere adds "OR field op value".
func (t *Tree) OrWhere(field, op string, value any) *Tree { return t.basic(field, op, value, Or) }

// WhereNot adds "AND NOT (field op value)".
func (t *Tree) WhereNot(field, op string, value any) *Tree {
	return t.basic(field, op, value, AndNot)
}

// OrWhereNot adds "OR NOT (field op value)".
func (t *Tree) OrWhereNot(field, op string, value any) *Tree {
	return t.basic(field, op, value, OrNot)
}

// WhereDate compiles exactly like Where.
func (t *Tree) WhereDate(field, op string, value any) *Tree { return t.basic(field, op, value, And) }

func (t *Tree) WhereIn(field string, values ...any) *Tree {
	return t.add(Clause{Field: field, Kind: KindIn, Values: values, Connective: And})
}

func (t *Tree) OrWhereIn(field string, values ...any) *Tree {
	return t.add(Clause{Field: field, Kind: KindIn, Values: values, Connective: Or})
}

func (t *Tree) WhereNotIn(field string, values ...any) *Tree {
	return t.add(Clause{Field: field, Kind: KindNotIn, Values: values, Connective: And})
}

func (t *Tree) OrWhereNotIn(field string, values ...any) *Tree {
	return t.add(Clause{Field: field, Kind: KindNotIn, Values: values, Connective: Or})
}

func (t *Tree) between(field string, low, high any, not bool, conn Connective) *Tree {
	return t.add(Clause{Field: field, Kind: KindBetween, Values: []any{low, high}, Not: not, Connective: conn})
}

func (t *Tree) WhereBetween(field string, low, high any) *Tree {
	return t.between(field, low, high, false, And)
}

func (t *Tree) OrWhereBetween(field string, low, high any) *Tree {
	return t.between(field, low, high, false, Or)
}

func (t *Tree) WhereNotBetween(field string, low, high any) *Tree {
	return t.between(field, low, high, true, And)
}

func (t *Tree) OrWhereNotBetween(field string, low, high any) *Tree {
	return t.between(field, low, high, true, Or)
}

// WhereNull matches documents where the field is missing.
func (t *Tree) WhereNull(field string) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpNotExists, Connective: And})
}

func (t *Tree) OrWhereNull(field string) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpNotExists, Connective: Or})
}

// WhereNotNull matches documents where the field exists.
func (t *Tree) WhereNotNull(field string) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpExists, Connective: And})
}

func (t *Tree) OrWhereNotNull(field string) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpExists, Connective: Or})
}

// WhereExact matches the keyword form of field exactly.
func (t *Tree) WhereExact(field string, value any) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpExact, Value: value, Connective: And})
}

func (t *Tree) WherePhrase(field string, value any) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpPhrase, Value: value, Connective: And})
}

func (t *Tree) WherePhrasePrefix(field string, value any) *Tree {
	return t.add(Clause{Field: field, Kind: KindBasic, Op: OpPhrasePrefix, Value: value, Connective: And})
}

func (t *Tree) WhereRegex(field, expression string) *Tree {
	return t.add(Clause{Field: field, Kind: KindRegex, Value: expression, Connective: And})
}

func (t *Tree) OrWhereRegex(field, expression string) *Tree {
	return t.add(Clause{Field: field, Kind: KindRegex, Value: expression, Connective: Or})
}

func (t *Tree) WhereNotRegex(field, expression string) *Tree {
	return t.add(Clause{Field: field, Kind: KindRegex, Value: expression, Connective: AndNot})
}

func (t *Tree) OrWhereNotRegex(field, expression string) *Tree {
	return t.add(Clause{Field: field, Kind: KindRegex, Value: expression, Connective: OrNot})
}

func (t *Tree) timestamp(field, op string, value any, conn Connective) *Tree {
	o, err := ParseOperator(op)
	if err != nil {
		return t.fail(&ParameterError{Field: field, Msg: err.(*ParameterError).Msg})
	}
	return t.add(Clause{Field: field, Kind: KindTimestamp, Op: o, Value: value, Connective: conn})
}

// WhereTimestamp compares field against a unix timestamp or a date string,
// normalized to epoch seconds at compile time.
func (t *Tree) WhereTimestamp(field, op string, value any) *Tree {
	return t.timestamp(field, op, value, And)
}

func (t *Tree) OrWhereTimestamp(field, op string, value any) *Tree {
	return t.timestamp(field, op, value, Or)
}

// WhereNotTimestamp adds "AND NOT (field op timestamp)".
func (t *Tree) WhereNotTimestamp(field, op string, value any) *Tree {
	return t.timestamp(field, op, value, AndNot)
}

func (t *Tree) OrWhereNotTimestamp(field, op string, value any) *Tree {
	return t.timestamp(field, op, value, OrNot)
}

func (t *Tree) group(sub *Tree, conn Connective) *Tree {
	return t.add(Clause{Kind: KindNested, Sub: sub.Clone(), Connective: conn})
}

// WhereGroup adds a parenthesised sub-tree joined with AND.
func (t *Tree) WhereGroup(sub *Tree) *Tree { return t.group(sub, And) }

func (t *Tree) OrWhereGroup(sub *Tree) *Tree { return t.group(sub, Or) }

func (t *Tree) WhereNotGroup(sub *Tree) *Tree { return t.group(sub, AndNot) }

func (t *Tree) OrWhereNotGroup(sub *Tree) *Tree { return t.group(sub, OrNot) }

// WhereGroupAs adds a sub-tree joined by the connective word boolean.
func (t *Tree) WhereGroupAs(boolean string, sub *Tree) *Tree {
	conn, err := ParseConnective(boolean)
	if err != nil {
		return t.fail(err)
	}
	return t.group(sub, conn)
}

func (t *Tree) nestedObject(kind Kind, path string, sub *Tree, scoreMode string, conn Connective) *Tree {
	return t.add(Clause{Field: path, Kind: kind, Sub: sub.Clone(), ScoreMode: defaultScoreMode(scoreMode), Connective: conn})
}

// WhereNestedObject matches documents where at least one object under path
// satisfies sub. An empty scoreMode means "avg".
func (t *Tree) WhereNestedObject(path string, sub *Tree, scoreMode string) *Tree {
	return t.nestedObject(KindNestedObject, path, sub, scoreMode, And)
}

func (t *Tree) OrWhereNestedObject(path string, sub *Tree, scoreMode string) *Tree {
	return t.nestedObject(KindNestedObject, path, sub, scoreMode, Or)
}

// WhereNotNestedObject matches documents where no object under path
// satisfies sub.
func (t *Tree) WhereNotNestedObject(path string, sub *Tree, scoreMode string) *Tree {
	return t.nestedObject(KindNotNestedObject, path, sub, scoreMode, And)
}

func (t *Tree) OrWhereNotNestedObject(path string, sub *Tree, scoreMode string) *Tree {
	return t.nestedObject(KindNotNestedObject, path, sub, scoreMode, Or)
}

// QueryNested filters the nested objects under path and returns the
// matching ones as inner hits, shaped by sub's options.
func (t *Tree) QueryNested(path string, sub *Builder) *Tree {
	if sub == nil {
		sub = New()
	}
	if err := sub.Err(); err != nil {
		return t.fail(err)
	}
	opts := sub.Options.Clone()
	return t.add(Clause{Field: path, Kind: KindQueryNested, Sub: sub.Tree.Clone(), SubOptions: opts, Connective: And})
}

// WhereExists records a SQL existence subquery. It never compiles.
func (t *Tree) WhereExists(sub *Tree) *Tree {
	return t.add(Clause{Kind: KindExistsSubquery, Sub: sub.Clone(), Connective: And})
}

// WhereNotExists records a SQL non-existence subquery. It never compiles.
func (t *Tree) WhereNotExists(sub *Tree) *Tree {
	return t.add(Clause{Kind: KindNotExistsSubquery, Sub: sub.Clone(), Connective: And})
}

// WhereRaw records a raw SQL fragment. It never compiles.
func (t *Tree) WhereRaw(sql string) *Tree {
	return t.add(Clause{Kind: KindRaw, Value: sql, Connective: And})
}

func (t *Tree) datePart(kind Kind, field, op string, value any) *Tree {
	o, _ := ParseOperator(op)
	return t.add(Clause{Field: field, Kind: kind, Op: o, Value: value, Connective: And})
}

// WhereMonth, WhereDay, WhereYear and WhereTime record date-part
// extraction, which the engine cannot express. They never compile.
func (t *Tree) WhereMonth(field, op string, value any) *Tree {
	return t.datePart(KindMonth, field, op, value)
}

func (t *Tree) WhereDay(field, op string, value any) *Tree {
	return t.datePart(KindDay, field, op, value)
}

func (t *Tree) WhereYear(field, op string, value any) *Tree {
	return t.datePart(KindYear, field, op, value)
}

func (t *Tree) WhereTime(field, op string, value any) *Tree {
	return t.datePart(KindTime, field, op, value)
}

func defaultScoreMode(mode string) string {
	if mode == "" {
		return "avg"
	}
	return mode
}

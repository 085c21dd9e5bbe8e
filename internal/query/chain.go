package query

import "github.com/leonunix/docquery/internal/cursor"

// The methods below shadow the promoted Tree and Options methods so that
// chains started on a Builder keep returning the Builder.

func (b *Builder) Where(field, op string, value any) *Builder {
	b.Tree.Where(field, op, value)
	return b
}

func (b *Builder) OrWhere(field, op string, value any) *Builder {
	b.Tree.OrWhere(field, op, value)
	return b
}

func (b *Builder) WhereNot(field, op string, value any) *Builder {
	b.Tree.WhereNot(field, op, value)
	return b
}

func (b *Builder) OrWhereNot(field, op string, value any) *Builder {
	b.Tree.OrWhereNot(field, op, value)
	return b
}

func (b *Builder) WhereDate(field, op string, value any) *Builder {
	b.Tree.WhereDate(field, op, value)
	return b
}

func (b *Builder) WhereIn(field string, values ...any) *Builder {
	b.Tree.WhereIn(field, values...)
	return b
}

func (b *Builder) OrWhereIn(field string, values ...any) *Builder {
	b.Tree.OrWhereIn(field, values...)
	return b
}

func (b *Builder) WhereNotIn(field string, values ...any) *Builder {
	b.Tree.WhereNotIn(field, values...)
	return b
}

func (b *Builder) OrWhereNotIn(field string, values ...any) *Builder {
	b.Tree.OrWhereNotIn(field, values...)
	return b
}

func (b *Builder) WhereBetween(field string, low, high any) *Builder {
	b.Tree.WhereBetween(field, low, high)
	return b
}

func (b *Builder) OrWhereBetween(field string, low, high any) *Builder {
	b.Tree.OrWhereBetween(field, low, high)
	return b
}

func (b *Builder) WhereNotBetween(field string, low, high any) *Builder {
	b.Tree.WhereNotBetween(field, low, high)
	return b
}

func (b *Builder) OrWhereNotBetween(field string, low, high any) *Builder {
	b.Tree.OrWhereNotBetween(field, low, high)
	return b
}

func (b *Builder) WhereNull(field string) *Builder {
	b.Tree.WhereNull(field)
	return b
}

func (b *Builder) OrWhereNull(field string) *Builder {
	b.Tree.OrWhereNull(field)
	return b
}

func (b *Builder) WhereNotNull(field string) *Builder {
	b.Tree.WhereNotNull(field)
	return b
}

func (b *Builder) OrWhereNotNull(field string) *Builder {
	b.Tree.OrWhereNotNull(field)
	return b
}

func (b *Builder) WhereExact(field string, value any) *Builder {
	b.Tree.WhereExact(field, value)
	return b
}

func (b *Builder) WherePhrase(field string, value any) *Builder {
	b.Tree.WherePhrase(field, value)
	return b
}

func (b *Builder) WherePhrasePrefix(field string, value any) *Builder {
	b.Tree.WherePhrasePrefix(field, value)
	return b
}

func (b *Builder) WhereRegex(field, expression string) *Builder {
	b.Tree.WhereRegex(field, expression)
	return b
}

func (b *Builder) OrWhereRegex(field, expression string) *Builder {
	b.Tree.OrWhereRegex(field, expression)
	return b
}

func (b *Builder) WhereNotRegex(field, expression string) *Builder {
	b.Tree.WhereNotRegex(field, expression)
	return b
}

func (b *Builder) OrWhereNotRegex(field, expression string) *Builder {
	b.Tree.OrWhereNotRegex(field, expression)
	return b
}

func (b *Builder) WhereTimestamp(field, op string, value any) *Builder {
	b.Tree.WhereTimestamp(field, op, value)
	return b
}

func (b *Builder) OrWhereTimestamp(field, op string, value any) *Builder {
	b.Tree.OrWhereTimestamp(field, op, value)
	return b
}

func (b *Builder) WhereNotTimestamp(field, op string, value any) *Builder {
	b.Tree.WhereNotTimestamp(field, op, value)
	return b
}

func (b *Builder) OrWhereNotTimestamp(field, op string, value any) *Builder {
	b.Tree.OrWhereNotTimestamp(field, op, value)
	return b
}

func (b *Builder) WhereGroup(sub *Tree) *Builder {
	b.Tree.WhereGroup(sub)
	return b
}

func (b *Builder) OrWhereGroup(sub *Tree) *Builder {
	b.Tree.OrWhereGroup(sub)
	return b
}

func (b *Builder) WhereNotGroup(sub *Tree) *Builder {
	b.Tree.WhereNotGroup(sub)
	return b
}

func (b *Builder) OrWhereNotGroup(sub *Tree) *Builder {
	b.Tree.OrWhereNotGroup(sub)
	return b
}

func (b *Builder) WhereGroupAs(boolean string, sub *Tree) *Builder {
	b.Tree.WhereGroupAs(boolean, sub)
	return b
}

func (b *Builder) WhereNestedObject(path string, sub *Tree, scoreMode string) *Builder {
	b.Tree.WhereNestedObject(path, sub, scoreMode)
	return b
}

func (b *Builder) OrWhereNestedObject(path string, sub *Tree, scoreMode string) *Builder {
	b.Tree.OrWhereNestedObject(path, sub, scoreMode)
	return b
}

func (b *Builder) WhereNotNestedObject(path string, sub *Tree, scoreMode string) *Builder {
	b.Tree.WhereNotNestedObject(path, sub, scoreMode)
	return b
}

func (b *Builder) OrWhereNotNestedObject(path string, sub *Tree, scoreMode string) *Builder {
	b.Tree.OrWhereNotNestedObject(path, sub, scoreMode)
	return b
}

func (b *Builder) QueryNested(path string, sub *Builder) *Builder {
	b.Tree.QueryNested(path, sub)
	return b
}

func (b *Builder) WhereExists(sub *Tree) *Builder {
	b.Tree.WhereExists(sub)
	return b
}

func (b *Builder) WhereNotExists(sub *Tree) *Builder {
	b.Tree.WhereNotExists(sub)
	return b
}

func (b *Builder) WhereRaw(sql string) *Builder {
	b.Tree.WhereRaw(sql)
	return b
}

func (b *Builder) WhereMonth(field, op string, value any) *Builder {
	b.Tree.WhereMonth(field, op, value)
	return b
}

func (b *Builder) WhereDay(field, op string, value any) *Builder {
	b.Tree.WhereDay(field, op, value)
	return b
}

func (b *Builder) WhereYear(field, op string, value any) *Builder {
	b.Tree.WhereYear(field, op, value)
	return b
}

func (b *Builder) WhereTime(field, op string, value any) *Builder {
	b.Tree.WhereTime(field, op, value)
	return b
}

func (b *Builder) OrderBy(field, direction string) *Builder {
	b.Options.OrderBy(field, direction)
	return b
}

func (b *Builder) OrderByDesc(field string) *Builder {
	b.Options.OrderByDesc(field)
	return b
}

func (b *Builder) WithSort(field, key string, value any) *Builder {
	b.Options.WithSort(field, key, value)
	return b
}

func (b *Builder) OrderByGeo(field string, pin any, direction, unit, mode, distanceType string) *Builder {
	b.Options.OrderByGeo(field, pin, direction, unit, mode, distanceType)
	return b
}

func (b *Builder) OrderByGeoDesc(field string, pin any, unit, mode, distanceType string) *Builder {
	b.Options.OrderByGeoDesc(field, pin, unit, mode, distanceType)
	return b
}

func (b *Builder) OrderByNested(field, direction, mode string) *Builder {
	b.Options.OrderByNested(field, direction, mode)
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.Options.Limit(n)
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.Options.Offset(n)
	return b
}

func (b *Builder) WithMinScore(v float64) *Builder {
	b.Options.WithMinScore(v)
	return b
}

func (b *Builder) Highlight(fields []string, preTag, postTag string, global map[string]any) *Builder {
	b.Options.Highlight(fields, preTag, postTag, global)
	return b
}

func (b *Builder) FilterGeoBox(field string, topLeft, bottomRight any) *Builder {
	b.Options.FilterGeoBox(field, topLeft, bottomRight)
	return b
}

func (b *Builder) FilterGeoPoint(field, distance string, lat, lon float64) *Builder {
	b.Options.FilterGeoPoint(field, distance, lat, lon)
	return b
}

func (b *Builder) RandomScore(field string, seed int64) *Builder {
	b.Options.RandomScore(field, seed)
	return b
}

func (b *Builder) WithCursor(st cursor.State) *Builder {
	b.Options.WithCursor(st)
	return b
}

func (b *Builder) WithSearchAfter(values ...any) *Builder {
	b.Options.WithSearchAfter(values...)
	return b
}

func (b *Builder) Select(columns ...string) *Builder {
	b.Options.Select(columns...)
	return b
}

func (b *Builder) AddSelect(columns ...string) *Builder {
	b.Options.AddSelect(columns...)
	return b
}

package query

import "strings"

// Kind identifies the shape of a clause.
type Kind int

const (
	KindBasic Kind = iota
	KindIn
	KindNotIn
	KindBetween
	KindNested // parenthesised group
	KindNestedObject
	KindNotNestedObject
	KindQueryNested
	KindRegex
	KindTimestamp

	// Relational constructs with no engine equivalent. They can be recorded
	// but every compile rejects them.
	KindExistsSubquery
	KindNotExistsSubquery
	KindRaw
	KindMonth
	KindDay
	KindYear
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindIn:
		return "in"
	case KindNotIn:
		return "not_in"
	case KindBetween:
		return "between"
	case KindNested:
		return "nested"
	case KindNestedObject:
		return "nested_object"
	case KindNotNestedObject:
		return "not_nested_object"
	case KindQueryNested:
		return "query_nested"
	case KindRegex:
		return "regex"
	case KindTimestamp:
		return "timestamp"
	case KindExistsSubquery:
		return "where exists"
	case KindNotExistsSubquery:
		return "where not exists"
	case KindRaw:
		return "whereRaw"
	case KindMonth:
		return "whereMonth"
	case KindDay:
		return "whereDay"
	case KindYear:
		return "whereYear"
	case KindTime:
		return "whereTime"
	default:
		return "unknown"
	}
}

// Supported reports whether the kind can be compiled.
func (k Kind) Supported() bool { return k >= KindBasic && k <= KindTimestamp }

// Operator is the comparison applied by a Basic or Timestamp clause.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
	OpLike
	OpNotLike
	OpRegex
	OpExists
	OpNotExists
	OpPhrase
	OpPhrasePrefix
	OpExact
)

var operatorNames = map[string]Operator{
	"=":             OpEq,
	"!=":            OpNe,
	"<>":            OpNe,
	"<":             OpLt,
	"<=":            OpLte,
	">":             OpGt,
	">=":            OpGte,
	"like":          OpLike,
	"not like":      OpNotLike,
	"not_like":      OpNotLike,
	"regex":         OpRegex,
	"exists":        OpExists,
	"exist":         OpExists,
	"not_exists":    OpNotExists,
	"phrase":        OpPhrase,
	"phrase_prefix": OpPhrasePrefix,
	"exact":         OpExact,
}

// ParseOperator maps the SQL-shaped operator spelling onto an Operator.
func ParseOperator(s string) (Operator, error) {
	if s == "" {
		return OpEq, nil
	}
	op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, paramErr("", "invalid operator [%s]", s)
	}
	return op, nil
}

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLike:
		return "like"
	case OpNotLike:
		return "not like"
	case OpRegex:
		return "regex"
	case OpExists:
		return "exists"
	case OpNotExists:
		return "not_exists"
	case OpPhrase:
		return "phrase"
	case OpPhrasePrefix:
		return "phrase_prefix"
	case OpExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Connective joins a clause to the clauses before it.
type Connective int

const (
	And Connective = iota
	Or
	AndNot
	OrNot
)

// ParseConnective accepts "and", "or", "and not", "not" and "or not".
func ParseConnective(s string) (Connective, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "and", "":
		return And, nil
	case "or":
		return Or, nil
	case "and not", "not":
		return AndNot, nil
	case "or not":
		return OrNot, nil
	default:
		return 0, paramErr("", "%s is not supported for parameter grouping", s)
	}
}

func (c Connective) String() string {
	switch c {
	case And:
		return "and"
	case Or:
		return "or"
	case AndNot:
		return "and not"
	case OrNot:
		return "or not"
	default:
		return "unknown"
	}
}

// OpensBucket reports whether the connective starts a new OR bucket.
func (c Connective) OpensBucket() bool { return c == Or || c == OrNot }

// Negated reports whether the connective negates its clause.
func (c Connective) Negated() bool { return c == AndNot || c == OrNot }

// Clause is one predicate of a Tree. Clauses are values: the tree hands out
// copies and nested trees are cloned when the clause is recorded.
type Clause struct {
	Field      string
	Kind       Kind
	Op         Operator
	Value      any
	Values     []any
	Not        bool
	Connective Connective

	// Sub is the embedded predicate tree of Nested, NestedObject,
	// NotNestedObject and QueryNested clauses.
	Sub *Tree
	// SubOptions are the inner_hits options of a QueryNested clause.
	SubOptions *Options
	ScoreMode  string
}

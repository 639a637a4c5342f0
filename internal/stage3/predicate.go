package stage3

// Predicate is a node in a where-predicate tree.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - And: every child must match (empty And matches everything)
//   - Or: any child must match (empty Or matches nothing)
//   - Compare: a single column comparison
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// And is a conjunction.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Compare tests a single column against an operand.
//
// Column is an attribute name or a table-qualified reference
// ("table.column") in join contexts. For OpIn and OpNin, Value is a list.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

func (Compare) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpEq         Op = "="
	OpNe         Op = "!="
	OpLt         Op = "<"
	OpLte        Op = "<="
	OpGt         Op = ">"
	OpGte        Op = ">="
	OpIn         Op = "in"
	OpNin        Op = "nin"
	OpLike       Op = "like"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

var knownOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpIn: true, OpNin: true, OpLike: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true,
}

// Known reports whether o is a supported operator.
func (o Op) Known() bool {
	return knownOps[o]
}

// IsPattern reports whether o lowers to a pattern match.
func (o Op) IsPattern() bool {
	switch o {
	case OpLike, OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// ParseOp resolves an operator name, accepting "ne" as an alias for "!=".
func ParseOp(s string) (Op, bool) {
	if s == "ne" {
		return OpNe, true
	}
	op := Op(s)
	return op, op.Known()
}

// Eq is shorthand for an equality comparison.
func Eq(column string, value any) Compare {
	return Compare{Column: column, Op: OpEq, Value: value}
}

// Walk visits every Compare leaf of p depth-first, left to right.
func Walk(p Predicate, fn func(Compare)) {
	switch node := p.(type) {
	case And:
		for _, child := range node.Predicates {
			Walk(child, fn)
		}
	case *And:
		Walk(*node, fn)
	case Or:
		for _, child := range node.Predicates {
			Walk(child, fn)
		}
	case *Or:
		Walk(*node, fn)
	case Compare:
		fn(node)
	case *Compare:
		fn(*node)
	}
}

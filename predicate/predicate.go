// Package predicate is the storage-level predicate algebra produced by the
// filter compiler.
//
// Predicates are immutable values built from columns, constants and a small
// set of boolean forms. They are kept in negation normal form: there is no
// NOT node. Not pushes negation down to the atoms, and negated atoms select
// exactly the rows their positive form rejects, rows with null operands
// included. A predicate can be evaluated against in-memory rows (Evaluate)
// or rendered as a DuckDB WHERE clause (DuckDBEncoder).
package predicate

import (
	"strings"
)

// Pred is a boolean predicate fragment.
type Pred interface {
	String() string

	pred()
}

// Truth is the constant predicate TRUE or FALSE.
type Truth bool

// And holds when every member holds. An empty And is true.
type And []Pred

// Or holds when any member holds. An empty Or is false.
type Or []Pred

// CompareOp is a comparison operator.
type CompareOp string

const (
	Eq CompareOp = "="
	Ne CompareOp = "<>"
	Lt CompareOp = "<"
	Le CompareOp = "<="
	Gt CompareOp = ">"
	Ge CompareOp = ">="
)

// Inverse returns the operator selecting the complement over non-null
// operands.
func (op CompareOp) Inverse() CompareOp {
	switch op {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Le:
		return Gt
	case Gt:
		return Le
	case Ge:
		return Lt
	}
	return op
}

// Mirror returns the operator for swapped operands.
func (op CompareOp) Mirror() CompareOp {
	switch op {
	case Lt:
		return Gt
	case Le:
		return Ge
	case Gt:
		return Lt
	case Ge:
		return Le
	}
	return op
}

// Compare holds when both operands are non-null and the comparison is true.
type Compare struct {
	Op          CompareOp
	Left, Right Operand
}

// IsNull holds when the operand is null, or not null when Negated.
type IsNull struct {
	Operand Operand
	Negated bool
}

// Test applies a boolean function. A null function result fails the
// positive form and satisfies the negated one.
type Test struct {
	Func    string
	Args    []Operand
	Negated bool
}

// Exists holds when some row reached through Hop satisfies Where. Columns
// in Where are relative to the hop's target table and must not navigate
// further.
type Exists struct {
	Hop     Hop
	Where   Pred
	Negated bool
}

func (Truth) pred()    {}
func (And) pred()      {}
func (Or) pred()       {}
func (*Compare) pred() {}
func (*IsNull) pred()  {}
func (*Test) pred()    {}
func (*Exists) pred()  {}

// AndOf combines predicates with AND, flattening nested conjunctions and
// folding constants.
func AndOf(preds ...Pred) Pred {
	var out And
	for _, p := range preds {
		switch p := p.(type) {
		case nil:
		case Truth:
			if !p {
				return Truth(false)
			}
		case And:
			out = append(out, p...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return Truth(true)
	case 1:
		return out[0]
	}
	return out
}

// OrOf combines predicates with OR, flattening nested disjunctions and
// folding constants.
func OrOf(preds ...Pred) Pred {
	var out Or
	for _, p := range preds {
		switch p := p.(type) {
		case nil:
		case Truth:
			if p {
				return Truth(true)
			}
		case Or:
			out = append(out, p...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return Truth(false)
	case 1:
		return out[0]
	}
	return out
}

// Not returns the complement of p in negation normal form.
//
// A negated comparison becomes the inverse comparison OR'ed with null
// checks of its nullable operands, so that Not(p) selects exactly the rows
// p rejects.
func Not(p Pred) Pred {
	switch p := p.(type) {
	case Truth:
		return !p
	case And:
		out := make([]Pred, len(p))
		for i, c := range p {
			out[i] = Not(c)
		}
		return OrOf(out...)
	case Or:
		out := make([]Pred, len(p))
		for i, c := range p {
			out[i] = Not(c)
		}
		return AndOf(out...)
	case *Compare:
		alts := []Pred{&Compare{Op: p.Op.Inverse(), Left: p.Left, Right: p.Right}}
		if Nullable(p.Left) {
			alts = append(alts, &IsNull{Operand: p.Left})
		}
		if Nullable(p.Right) {
			alts = append(alts, &IsNull{Operand: p.Right})
		}
		return OrOf(alts...)
	case *IsNull:
		return &IsNull{Operand: p.Operand, Negated: !p.Negated}
	case *Test:
		return &Test{Func: p.Func, Args: p.Args, Negated: !p.Negated}
	case *Exists:
		return &Exists{Hop: p.Hop, Where: p.Where, Negated: !p.Negated}
	case nil:
		return Truth(false)
	default:
		panic("predicate: unknown predicate type")
	}
}

func (t Truth) String() string {
	if t {
		return "TRUE"
	}
	return "FALSE"
}

func (a And) String() string { return joinPreds([]Pred(a), " AND ") }
func (o Or) String() string  { return joinPreds([]Pred(o), " OR ") }

func (c *Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

func (n *IsNull) String() string {
	if n.Negated {
		return n.Operand.String() + " IS NOT NULL"
	}
	return n.Operand.String() + " IS NULL"
}

func (t *Test) String() string {
	s := t.Func + "(" + joinOperands(t.Args) + ")"
	if t.Negated {
		return "NOT " + s
	}
	return s
}

func (e *Exists) String() string {
	s := "EXISTS " + e.Hop.Name + "(" + e.Where.String() + ")"
	if e.Negated {
		return "NOT " + s
	}
	return s
}

func joinPreds(preds []Pred, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

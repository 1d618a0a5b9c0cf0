package predicate

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Hop is one navigation step from a source table to a related table.
//
// To-one hops carry ForeignKey, a column of the source referencing
// TargetKey of the target. To-many hops carry either BackRef, a column of the
// target referencing SourceKey of the source, or a link table whose
// LinkSource and LinkTarget columns reference both sides.
type Hop struct {
	Name      string
	Table     string
	Many      bool
	SourceKey string
	TargetKey string

	ForeignKey string
	BackRef    string

	LinkTable  string
	LinkSource string
	LinkTarget string
}

// Linked reports whether the hop goes through a link table.
func (h Hop) Linked() bool { return h.LinkTable != "" }

// Operand is a value-producing fragment: a column, a constant or an
// expression over other operands.
type Operand interface {
	// Kind returns the value domain of the operand.
	Kind() Kind
	String() string

	operand()
}

// Column references a storage column, possibly through to-one joins.
type Column struct {
	Path []Hop
	Name string
	Type Kind
	// JSONPath selects a member of a JSON document column. The extracted
	// value has KindJSON until cast.
	JSONPath []string
	// NotNull marks columns that can never hold null, such as primary keys
	// of the root table.
	NotNull bool
}

// Const is a coerced literal value. Value holds int64, float64, string,
// bool, time.Time, orb.Geometry or nil.
type Const struct {
	Value any
	Type  Kind
}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	Add ArithOp = "+"
	Sub ArithOp = "-"
	Mul ArithOp = "*"
	Div ArithOp = "/"
	Mod ArithOp = "%"
)

// Arith combines two numeric operands.
type Arith struct {
	Op          ArithOp
	Left, Right Operand
	Type        Kind
}

// Negate is arithmetic negation.
type Negate struct {
	Operand Operand
}

// Call invokes a scalar function by its catalogue name.
type Call struct {
	Func string
	Args []Operand
	Type Kind
}

// Cast converts a dynamically typed operand. Values that cannot be converted
// become null.
type Cast struct {
	Operand Operand
	To      Kind
}

func (*Column) operand() {}
func (*Const) operand()  {}
func (*Arith) operand()  {}
func (*Negate) operand() {}
func (*Call) operand()   {}
func (*Cast) operand()   {}

func (c *Column) Kind() Kind {
	if len(c.JSONPath) > 0 {
		return KindJSON
	}
	return c.Type
}
func (c *Const) Kind() Kind  { return c.Type }
func (a *Arith) Kind() Kind  { return a.Type }
func (n *Negate) Kind() Kind { return n.Operand.Kind() }
func (c *Call) Kind() Kind   { return c.Type }
func (c *Cast) Kind() Kind   { return c.To }

func (c *Column) String() string {
	var sb strings.Builder
	for _, h := range c.Path {
		sb.WriteString(h.Name)
		sb.WriteByte('.')
	}
	sb.WriteString(c.Name)
	for _, p := range c.JSONPath {
		sb.WriteString("->")
		sb.WriteString(p)
	}
	return sb.String()
}

func (c *Const) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteLiteral(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case orb.Geometry:
		return wkt.MarshalString(v)
	default:
		return fmt.Sprint(v)
	}
}

func (a *Arith) String() string {
	return "(" + a.Left.String() + " " + string(a.Op) + " " + a.Right.String() + ")"
}

func (n *Negate) String() string { return "-" + n.Operand.String() }

func (c *Call) String() string { return c.Func + "(" + joinOperands(c.Args) + ")" }

func (c *Cast) String() string { return "cast(" + c.Operand.String() + " as " + c.To.String() + ")" }

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return strings.Join(parts, ", ")
}

// Nullable reports whether o can evaluate to null.
func Nullable(o Operand) bool {
	switch o := o.(type) {
	case *Column:
		return !o.NotNull || len(o.Path) > 0 || len(o.JSONPath) > 0
	case *Const:
		return o.Value == nil
	case *Arith:
		// division by zero yields null
		return o.Op == Div || o.Op == Mod || Nullable(o.Left) || Nullable(o.Right)
	case *Negate:
		return Nullable(o.Operand)
	case *Call:
		for _, a := range o.Args {
			if Nullable(a) {
				return true
			}
		}
		return false
	case *Cast:
		return true
	default:
		return true
	}
}

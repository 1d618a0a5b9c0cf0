package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// DeclaredType is the type a parser attached to a literal.
type DeclaredType string

const (
	TypeString   DeclaredType = "string"
	TypeNumber   DeclaredType = "number"
	TypeBoolean  DeclaredType = "boolean"
	TypeDateTime DeclaredType = "datetime"
	TypeGeometry DeclaredType = "geometry"
	TypeNull     DeclaredType = "null"
)

// UnaryOp identifies a unary operator.
type UnaryOp string

const (
	OpNot    UnaryOp = "not"
	OpNegate UnaryOp = "-"
)

// BinaryOp identifies a binary operator.
type BinaryOp string

const (
	// Logical operators
	OpAnd BinaryOp = "and"
	OpOr  BinaryOp = "or"

	// Comparison operators
	OpEq BinaryOp = "eq"
	OpNe BinaryOp = "ne"
	OpLt BinaryOp = "lt"
	OpLe BinaryOp = "le"
	OpGt BinaryOp = "gt"
	OpGe BinaryOp = "ge"

	// Arithmetic operators
	OpAdd BinaryOp = "add"
	OpSub BinaryOp = "sub"
	OpMul BinaryOp = "mul"
	OpDiv BinaryOp = "div"
	OpMod BinaryOp = "mod"
)

// IsLogical reports whether op is AND or OR.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// IsComparison reports whether op is one of eq, ne, lt, le, gt, ge.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// IsArithmetic reports whether op is one of add, sub, mul, div, mod.
func (op BinaryOp) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return true
	}
	return false
}

// Node is implemented by all expression node types.
// The set of implementations is closed: dispatch is unexported.
type Node interface {
	// String renders the node in $filter syntax.
	String() string

	dispatch(d dispatcher)
}

// Literal is a typed constant.
//
// Value holds the parser's representation: a string for text, numbers,
// datetimes and geometries; a bool for booleans; nil for null. Decoders may
// also produce Go numbers, time.Time or orb.Geometry values.
type Literal struct {
	Value any
	Type  DeclaredType
}

// PropertyReference is a property path relative to the filtered entity type.
// A single segment is a direct property; more segments navigate relations.
type PropertyReference struct {
	Path []string
}

// UnaryExpr applies NOT or arithmetic negation to its operand.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Node
}

// BinaryExpr combines two operands.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// FunctionCall invokes a function from the fixed catalogue.
type FunctionCall struct {
	Name string
	Args []Node
}

// Lit returns a literal node.
func Lit(value any, typ DeclaredType) *Literal {
	return &Literal{Value: value, Type: typ}
}

// String returns a string literal node.
func String(s string) *Literal { return Lit(s, TypeString) }

// Number returns a number literal node from its textual form.
func Number(text string) *Literal { return Lit(text, TypeNumber) }

// Bool returns a boolean literal node.
func Bool(b bool) *Literal { return Lit(b, TypeBoolean) }

// Null returns the null literal node.
func Null() *Literal { return Lit(nil, TypeNull) }

// DateTime returns a datetime literal node from ISO-8601 text.
func DateTime(text string) *Literal { return Lit(text, TypeDateTime) }

// Geometry returns a geometry literal node from WKT or GeoJSON text.
func Geometry(text string) *Literal { return Lit(text, TypeGeometry) }

// Prop returns a property reference for the given path segments.
func Prop(path ...string) *PropertyReference {
	return &PropertyReference{Path: append([]string(nil), path...)}
}

// Not returns the logical negation of n.
func Not(n Node) *UnaryExpr { return &UnaryExpr{Op: OpNot, Operand: n} }

// Negate returns the arithmetic negation of n.
func Negate(n Node) *UnaryExpr { return &UnaryExpr{Op: OpNegate, Operand: n} }

// Binary returns a binary expression node.
func Binary(op BinaryOp, left, right Node) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

// And returns left AND right.
func And(left, right Node) *BinaryExpr { return Binary(OpAnd, left, right) }

// Or returns left OR right.
func Or(left, right Node) *BinaryExpr { return Binary(OpOr, left, right) }

// Call returns a function call node.
func Call(name string, args ...Node) *FunctionCall {
	return &FunctionCall{Name: name, Args: args}
}

func (n *Literal) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Type {
	case TypeNull:
		return "null"
	case TypeBoolean:
		if b, ok := n.Value.(bool); ok {
			return strconv.FormatBool(b)
		}
	case TypeString:
		if s, ok := n.Value.(string); ok {
			return "'" + strings.ReplaceAll(s, "'", "''") + "'"
		}
	case TypeGeometry:
		switch v := n.Value.(type) {
		case string:
			return "geography'" + v + "'"
		case orb.Geometry:
			return "geography'" + wkt.MarshalString(v) + "'"
		}
	case TypeDateTime:
		if t, ok := n.Value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return fmt.Sprint(n.Value)
}

func (n *PropertyReference) String() string {
	return strings.Join(n.Path, "/")
}

func (n *UnaryExpr) String() string {
	if n.Op == OpNot {
		return "not (" + nodeString(n.Operand) + ")"
	}
	return "-(" + nodeString(n.Operand) + ")"
}

func (n *BinaryExpr) String() string {
	return "(" + nodeString(n.Left) + " " + string(n.Op) + " " + nodeString(n.Right) + ")"
}

func (n *FunctionCall) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = nodeString(a)
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

func nodeString(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

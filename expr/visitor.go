package expr

import "errors"

// ErrNilNode is returned by Walk for a nil node.
var ErrNilNode = errors.New("expr: nil node")

// Visitor handles each node type of the tree.
// Implementations recurse by calling Walk on child nodes.
type Visitor[T any] interface {
	VisitLiteral(n *Literal) (T, error)
	VisitProperty(n *PropertyReference) (T, error)
	VisitUnary(n *UnaryExpr) (T, error)
	VisitBinary(n *BinaryExpr) (T, error)
	VisitFunction(n *FunctionCall) (T, error)
}

// Walk dispatches n to the matching method of v.
func Walk[T any](v Visitor[T], n Node) (T, error) {
	if n == nil {
		var zero T
		return zero, ErrNilNode
	}
	a := &adapter[T]{v: v}
	n.dispatch(a)
	return a.out, a.err
}

// dispatcher is the non-generic side of the double dispatch. Every node type
// calls exactly one of its methods.
type dispatcher interface {
	literal(n *Literal)
	property(n *PropertyReference)
	unary(n *UnaryExpr)
	binary(n *BinaryExpr)
	function(n *FunctionCall)
}

func (n *Literal) dispatch(d dispatcher)           { d.literal(n) }
func (n *PropertyReference) dispatch(d dispatcher) { d.property(n) }
func (n *UnaryExpr) dispatch(d dispatcher)         { d.unary(n) }
func (n *BinaryExpr) dispatch(d dispatcher)        { d.binary(n) }
func (n *FunctionCall) dispatch(d dispatcher)      { d.function(n) }

type adapter[T any] struct {
	v   Visitor[T]
	out T
	err error
}

func (a *adapter[T]) literal(n *Literal)            { a.out, a.err = a.v.VisitLiteral(n) }
func (a *adapter[T]) property(n *PropertyReference) { a.out, a.err = a.v.VisitProperty(n) }
func (a *adapter[T]) unary(n *UnaryExpr)            { a.out, a.err = a.v.VisitUnary(n) }
func (a *adapter[T]) binary(n *BinaryExpr)          { a.out, a.err = a.v.VisitBinary(n) }
func (a *adapter[T]) function(n *FunctionCall)      { a.out, a.err = a.v.VisitFunction(n) }

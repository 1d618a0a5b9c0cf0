// Package compiler turns filter expression trees into storage predicates
// for one entity type.
//
// Each compile call walks the tree once with its own scope. Every node
// yields an immutable fragment: a boolean predicate or a value operand.
// Parents combine the fragments of their children; nothing is shared
// between calls, so a Compiler is safe for concurrent use.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hugr-lab/staquery/expr"
	"github.com/hugr-lab/staquery/literal"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/predicate"
	"github.com/hugr-lab/staquery/schema"
)

// Compiler compiles expressions against a schema.
type Compiler struct {
	schema  *schema.Schema
	coercer literal.Coercer
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithSRID sets the spatial reference system geometry literals must use.
func WithSRID(srid int) Option {
	return func(c *Compiler) { c.coercer.SRID = srid }
}

// New creates a compiler for s. A nil schema means schema.Default().
func New(s *schema.Schema, opts ...Option) *Compiler {
	if s == nil {
		s = schema.Default()
	}
	c := &Compiler{schema: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the schema the compiler resolves properties against.
func (c *Compiler) Schema() *schema.Schema { return c.schema }

// Compile compiles a boolean filter expression for entityType. The result
// does not include the structural predicate of the type.
func (c *Compiler) Compile(entityType string, n expr.Node) (predicate.Pred, error) {
	s, err := c.scope(entityType)
	if err != nil {
		return nil, err
	}
	f, err := walk(s, n)
	if err != nil {
		return nil, err
	}
	return s.boolean(f, "filter")
}

// CompileOperand compiles a value expression for entityType, e.g. an
// ordering key. Polymorphic properties use their default column.
func (c *Compiler) CompileOperand(entityType string, n expr.Node) (predicate.Operand, error) {
	s, err := c.scope(entityType)
	if err != nil {
		return nil, err
	}
	f, err := walk(s, n)
	if err != nil {
		return nil, err
	}
	if f.pred != nil {
		return nil, &literal.TypeMismatchError{Context: n.String(), Want: "value", Got: "predicate"}
	}
	return f.op, nil
}

// walk compiles the tree rooted at n. A nil node anywhere in the tree is a
// syntax error.
func walk(s *scope, n expr.Node) (fragment, error) {
	f, err := expr.Walk[fragment](s, n)
	if errors.Is(err, expr.ErrNilNode) {
		return fragment{}, malformed("missing operand")
	}
	return f, err
}

func malformed(format string, args ...any) error {
	return &parser.SyntaxError{Pos: -1, Msg: fmt.Sprintf(format, args...)}
}

func (c *Compiler) scope(entityType string) (*scope, error) {
	t, err := c.schema.EntityType(entityType)
	if err != nil {
		return nil, err
	}
	return &scope{schema: c.schema, entityType: t.Name, coercer: c.coercer}, nil
}

// fragment is the compiled form of one node. Exactly one of pred and op is
// set. res is kept for property references so that polymorphic and JSON
// properties can pick a column once the compared kind is known.
type fragment struct {
	pred predicate.Pred
	op   predicate.Operand
	res  *schema.Resolution
}

func (f fragment) constant() (*predicate.Const, bool) {
	c, ok := f.op.(*predicate.Const)
	return c, ok
}

// flexible reports whether the column depends on the compared kind.
func (f fragment) flexible() bool {
	return f.res != nil && (f.res.Polymorphic() || f.res.Kind() == predicate.KindJSON)
}

func (f fragment) kind() predicate.Kind {
	if f.pred != nil {
		return predicate.KindBoolean
	}
	return f.op.Kind()
}

// scope is the per-call resolution context.
type scope struct {
	schema     *schema.Schema
	entityType string
	coercer    literal.Coercer
}

var _ expr.Visitor[fragment] = (*scope)(nil)

func (s *scope) VisitLiteral(n *expr.Literal) (fragment, error) {
	c, err := s.coercer.Infer(n)
	if err != nil {
		return fragment{}, err
	}
	return fragment{op: c}, nil
}

func (s *scope) VisitProperty(n *expr.PropertyReference) (fragment, error) {
	res, err := s.schema.Resolve(s.entityType, n.Path)
	if err != nil {
		return fragment{}, err
	}
	return fragment{op: res.Column(), res: res}, nil
}

func (s *scope) VisitUnary(n *expr.UnaryExpr) (fragment, error) {
	f, err := expr.Walk[fragment](s, n.Operand)
	if err != nil {
		return fragment{}, err
	}

	switch n.Op {
	case expr.OpNot:
		p, err := s.boolean(f, "not")
		if err != nil {
			return fragment{}, err
		}
		return fragment{pred: predicate.Not(p)}, nil

	case expr.OpNegate:
		op, err := s.numeric(f, "-")
		if err != nil {
			return fragment{}, err
		}
		if c, ok := op.(*predicate.Const); ok {
			switch v := c.Value.(type) {
			case int64:
				return fragment{op: &predicate.Const{Value: -v, Type: c.Type}}, nil
			case float64:
				return fragment{op: &predicate.Const{Value: -v, Type: c.Type}}, nil
			}
		}
		return fragment{op: &predicate.Negate{Operand: op}}, nil
	}
	return fragment{}, malformed("unknown unary operator %q", n.Op)
}

func (s *scope) VisitBinary(n *expr.BinaryExpr) (fragment, error) {
	left, err := expr.Walk[fragment](s, n.Left)
	if err != nil {
		return fragment{}, err
	}
	right, err := expr.Walk[fragment](s, n.Right)
	if err != nil {
		return fragment{}, err
	}

	switch {
	case n.Op.IsLogical():
		l, err := s.boolean(left, string(n.Op))
		if err != nil {
			return fragment{}, err
		}
		r, err := s.boolean(right, string(n.Op))
		if err != nil {
			return fragment{}, err
		}
		if n.Op == expr.OpAnd {
			return fragment{pred: predicate.AndOf(l, r)}, nil
		}
		return fragment{pred: predicate.OrOf(l, r)}, nil

	case n.Op.IsComparison():
		p, err := s.compare(n.Op, left, right)
		if err != nil {
			return fragment{}, err
		}
		return fragment{pred: p}, nil

	case n.Op.IsArithmetic():
		return s.arithmetic(n, left, right)
	}
	return fragment{}, malformed("unknown binary operator %q", n.Op)
}

func (s *scope) VisitFunction(n *expr.FunctionCall) (fragment, error) {
	name := strings.ToLower(n.Name)
	_, isSpatial := spatialFunctions[name]
	b, isBuiltin := builtins[name]
	if !isSpatial && !isBuiltin {
		return fragment{}, &UnsupportedFunctionError{Name: n.Name}
	}

	args := make([]fragment, len(n.Args))
	for i, a := range n.Args {
		f, err := expr.Walk[fragment](s, a)
		if err != nil {
			return fragment{}, err
		}
		args[i] = f
	}

	if isSpatial {
		return s.spatial(name, args)
	}
	return s.builtin(name, b, args)
}

func (s *scope) builtin(name string, b builtin, args []fragment) (fragment, error) {
	lo, hi := len(b.params)-b.optional, len(b.params)
	if len(args) < lo || len(args) > hi {
		return fragment{}, &InvalidArgumentError{Func: name, Arg: -1, Reason: arity(lo, hi, len(args))}
	}

	ops := make([]predicate.Operand, len(args))
	for i, a := range args {
		op, err := s.argument(name, i, a, b.params[i])
		if err != nil {
			return fragment{}, err
		}
		ops[i] = op
	}
	if b.swap {
		ops[0], ops[1] = ops[1], ops[0]
	}

	if b.storage == "" {
		if res := args[0].res; b.bound == periodEnd && res != nil && res.Period() {
			return fragment{op: res.EndColumn()}, nil
		}
		return fragment{op: ops[0]}, nil
	}
	result := b.result
	if result == predicate.KindNull {
		result = ops[0].Kind()
	}
	if result == predicate.KindBoolean {
		return fragment{pred: &predicate.Test{Func: b.storage, Args: ops}}, nil
	}
	return fragment{op: &predicate.Call{Func: b.storage, Args: ops, Type: result}}, nil
}

// argument converts a compiled argument to an operand accepted by p.
func (s *scope) argument(fn string, i int, f fragment, p param) (predicate.Operand, error) {
	invalid := func(got string) error {
		return &InvalidArgumentError{Func: fn, Arg: i, Reason: "expected " + p.String() + ", got " + got}
	}
	if f.pred != nil {
		return nil, invalid("boolean predicate")
	}

	var want predicate.Kind
	switch p {
	case pString:
		want = predicate.KindString
	case pInteger:
		want = predicate.KindInteger
	case pNumber:
		want = predicate.KindDecimal
		if k := f.op.Kind(); k == predicate.KindInteger && !f.flexible() {
			want = k
		}
	case pDateTime:
		want = predicate.KindDateTime
	case pGeometry:
		want = predicate.KindGeometry
	case pPattern:
		c, ok := f.constant()
		if !ok {
			return nil, invalid("non-literal " + f.kind().String())
		}
		return relatePattern(fn, i, c)
	}

	if c, ok := f.constant(); ok {
		if c.Type == predicate.KindNull {
			return &predicate.Const{Type: want}, nil
		}
		conv, err := literal.Convert(c, want, fn)
		if err != nil {
			return nil, invalid(c.Type.String())
		}
		return conv, nil
	}
	if f.flexible() {
		op, err := s.column(f.res, want)
		if err != nil {
			return nil, invalid(f.res.Kind().String() + " property " + f.op.String())
		}
		return op, nil
	}

	k := f.op.Kind()
	if k == want || (want == predicate.KindDecimal && k == predicate.KindInteger) {
		return f.op, nil
	}
	return nil, invalid(k.String())
}

// column selects the column of a flexible property for values of kind want.
func (s *scope) column(res *schema.Resolution, want predicate.Kind) (predicate.Operand, error) {
	path := strings.Join(pathOf(res), "/")
	if res.Polymorphic() {
		col, ok := res.ColumnFor(want)
		if !ok {
			return nil, &literal.TypeMismatchError{Context: path, Want: variants(res), Got: want.String()}
		}
		return col, nil
	}

	col := res.Column()
	if res.Kind() != predicate.KindJSON {
		return col, nil
	}
	switch want {
	case predicate.KindString, predicate.KindJSON, predicate.KindNull:
		return col, nil
	case predicate.KindInteger:
		return &predicate.Cast{Operand: col, To: predicate.KindDecimal}, nil
	case predicate.KindDecimal, predicate.KindBoolean, predicate.KindDateTime:
		return &predicate.Cast{Operand: col, To: want}, nil
	}
	return nil, &literal.TypeMismatchError{Context: path, Want: "scalar", Got: want.String()}
}

// boolean converts a fragment used as a condition.
func (s *scope) boolean(f fragment, context string) (predicate.Pred, error) {
	if f.pred != nil {
		return f.pred, nil
	}
	if c, ok := f.constant(); ok {
		if b, ok := c.Value.(bool); ok {
			return predicate.Truth(b), nil
		}
		return nil, &literal.TypeMismatchError{Context: context, Want: "boolean", Got: c.Type.String()}
	}

	op := f.op
	if f.flexible() {
		col, err := s.column(f.res, predicate.KindBoolean)
		if err != nil {
			return nil, err
		}
		op = col
	}
	if op.Kind() != predicate.KindBoolean {
		return nil, &literal.TypeMismatchError{Context: context, Want: "boolean", Got: op.Kind().String()}
	}
	return &predicate.Compare{Op: predicate.Eq, Left: op, Right: &predicate.Const{Value: true, Type: predicate.KindBoolean}}, nil
}

// numeric converts a fragment used as an arithmetic operand.
func (s *scope) numeric(f fragment, context string) (predicate.Operand, error) {
	if f.pred != nil {
		return nil, &literal.TypeMismatchError{Context: context, Want: "number", Got: "boolean predicate"}
	}
	if c, ok := f.constant(); ok && c.Type == predicate.KindNull {
		return &predicate.Const{Type: predicate.KindDecimal}, nil
	}
	if f.flexible() {
		return s.column(f.res, predicate.KindDecimal)
	}
	if !f.op.Kind().Numeric() {
		return nil, &literal.TypeMismatchError{Context: context, Want: "number", Got: f.op.Kind().String()}
	}
	return f.op, nil
}

func (s *scope) arithmetic(n *expr.BinaryExpr, left, right fragment) (fragment, error) {
	l, err := s.numeric(left, string(n.Op))
	if err != nil {
		return fragment{}, err
	}
	r, err := s.numeric(right, string(n.Op))
	if err != nil {
		return fragment{}, err
	}

	op := arithOps[n.Op]
	if op == predicate.Div || op == predicate.Mod {
		if c, ok := r.(*predicate.Const); ok && isZero(c.Value) {
			return fragment{}, &DivisionByZeroError{Expr: n.String()}
		}
	}

	kind := predicate.KindDecimal
	if l.Kind() == predicate.KindInteger && r.Kind() == predicate.KindInteger {
		kind = predicate.KindInteger
	}
	return fragment{op: &predicate.Arith{Op: op, Left: l, Right: r, Type: kind}}, nil
}

var arithOps = map[expr.BinaryOp]predicate.ArithOp{
	expr.OpAdd: predicate.Add,
	expr.OpSub: predicate.Sub,
	expr.OpMul: predicate.Mul,
	expr.OpDiv: predicate.Div,
	expr.OpMod: predicate.Mod,
}

var compareOps = map[expr.BinaryOp]predicate.CompareOp{
	expr.OpEq: predicate.Eq,
	expr.OpNe: predicate.Ne,
	expr.OpLt: predicate.Lt,
	expr.OpLe: predicate.Le,
	expr.OpGt: predicate.Gt,
	expr.OpGe: predicate.Ge,
}

func (s *scope) compare(op expr.BinaryOp, left, right fragment) (predicate.Pred, error) {
	cmp := compareOps[op]
	equality := cmp == predicate.Eq || cmp == predicate.Ne

	if left.pred != nil || right.pred != nil {
		if !equality {
			return nil, &literal.TypeMismatchError{Context: string(op), Want: "ordered operands", Got: "boolean"}
		}
		return s.equivalence(cmp, left, right)
	}

	lc, lConst := left.constant()
	rc, rConst := right.constant()
	lNull := lConst && lc.Type == predicate.KindNull
	rNull := rConst && rc.Type == predicate.KindNull
	if lNull || rNull {
		if !equality {
			return nil, &literal.TypeMismatchError{Context: string(op), Want: "non-null operands", Got: "null"}
		}
		if lNull && rNull {
			return predicate.Truth(cmp == predicate.Eq), nil
		}
		other := left.op
		if lNull {
			other = right.op
		}
		return &predicate.IsNull{Operand: other, Negated: cmp == predicate.Ne}, nil
	}

	l, r, err := s.unify(string(op), left, right)
	if err != nil {
		return nil, err
	}

	if k := valueKind(l); !equality && (k == predicate.KindGeometry || k == predicate.KindBoolean) {
		return nil, &literal.TypeMismatchError{Context: string(op), Want: "ordered operands", Got: k.String()}
	}
	return &predicate.Compare{Op: cmp, Left: l, Right: r}, nil
}

// unify brings two value fragments to a common comparable kind. Flexible
// properties take the kind of the other side; a literal is converted to the
// kind of the other side.
func (s *scope) unify(context string, left, right fragment) (predicate.Operand, predicate.Operand, error) {
	l, r := left.op, right.op
	var err error
	switch {
	case left.flexible() && right.flexible():
		if l, err = s.column(left.res, preferred(left.res, right.res)); err != nil {
			return nil, nil, err
		}
		if r, err = s.column(right.res, preferred(right.res, left.res)); err != nil {
			return nil, nil, err
		}
	case left.flexible():
		if l, err = s.column(left.res, valueKind(r)); err != nil {
			return nil, nil, err
		}
	case right.flexible():
		if r, err = s.column(right.res, valueKind(l)); err != nil {
			return nil, nil, err
		}
	}

	lk, rk := valueKind(l), valueKind(r)
	if lk == rk {
		return l, r, nil
	}
	if c, ok := l.(*predicate.Const); ok {
		conv, err := literal.Convert(c, rk, c.String())
		if err != nil {
			return nil, nil, err
		}
		return conv, r, nil
	}
	if c, ok := r.(*predicate.Const); ok {
		conv, err := literal.Convert(c, lk, c.String())
		if err != nil {
			return nil, nil, err
		}
		return l, conv, nil
	}
	if lk.Numeric() && rk.Numeric() {
		return l, r, nil
	}
	return nil, nil, &literal.TypeMismatchError{Context: context, Want: lk.String(), Got: rk.String()}
}

// valueKind is the kind an operand compares as. JSON members are extracted
// as text.
func valueKind(o predicate.Operand) predicate.Kind {
	if k := o.Kind(); k != predicate.KindJSON {
		return k
	}
	return predicate.KindString
}

// preferred picks the kind for comparing two flexible properties: the
// default kind of a polymorphic one, else text.
func preferred(a, b *schema.Resolution) predicate.Kind {
	switch {
	case a.Polymorphic():
		return a.Property.Type
	case b.Polymorphic():
		return b.Property.Type
	}
	return predicate.KindString
}

// equivalence compares boolean fragments: eq holds when both sides are
// true or both are false.
func (s *scope) equivalence(op predicate.CompareOp, left, right fragment) (predicate.Pred, error) {
	lt, lf, err := s.truthValues(left)
	if err != nil {
		return nil, err
	}
	rt, rf, err := s.truthValues(right)
	if err != nil {
		return nil, err
	}
	if op == predicate.Ne {
		rt, rf = rf, rt
	}
	return predicate.OrOf(predicate.AndOf(lt, rt), predicate.AndOf(lf, rf)), nil
}

// truthValues returns the predicates selecting rows where f is true and
// where f is false. Null is neither.
func (s *scope) truthValues(f fragment) (predicate.Pred, predicate.Pred, error) {
	if f.pred != nil {
		return f.pred, predicate.Not(f.pred), nil
	}
	if c, ok := f.constant(); ok {
		b, isBool := c.Value.(bool)
		if !isBool {
			return nil, nil, &literal.TypeMismatchError{Context: "eq", Want: "boolean", Got: c.Type.String()}
		}
		return predicate.Truth(b), predicate.Truth(!b), nil
	}
	t, err := s.boolean(f, "eq")
	if err != nil {
		return nil, nil, err
	}
	cmp := t.(*predicate.Compare)
	return t, &predicate.Compare{Op: predicate.Eq, Left: cmp.Left, Right: &predicate.Const{Value: false, Type: predicate.KindBoolean}}, nil
}

func isZero(v any) bool {
	switch v := v.(type) {
	case int64:
		return v == 0
	case float64:
		return v == 0
	}
	return false
}

func arity(lo, hi, got int) string {
	if lo == hi {
		return fmt.Sprintf("expected %d arguments, got %d", lo, got)
	}
	return fmt.Sprintf("expected %d to %d arguments, got %d", lo, hi, got)
}

func pathOf(res *schema.Resolution) []string {
	path := make([]string, 0, len(res.Hops)+1+len(res.JSONPath))
	for _, h := range res.Hops {
		path = append(path, h.Name)
	}
	path = append(path, res.Property.Name)
	return append(path, res.JSONPath...)
}

func variants(res *schema.Resolution) string {
	kinds := make([]string, 0, len(res.Property.Variants))
	for _, k := range []predicate.Kind{
		predicate.KindBoolean, predicate.KindInteger, predicate.KindDecimal,
		predicate.KindString, predicate.KindDateTime, predicate.KindGeometry,
	} {
		if _, ok := res.Property.Variants[k]; ok {
			kinds = append(kinds, k.String())
		}
	}
	return strings.Join(kinds, " or ")
}

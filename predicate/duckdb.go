package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery/geom"
)

// Join is a LEFT JOIN required by a navigated column.
type Join struct {
	Alias       string
	Table       string
	ParentAlias string
	Hop         Hop
}

// SQL renders the join clause.
func (j Join) SQL() string {
	return "LEFT JOIN " + QuoteIdentifier(j.Table) + " " + j.Alias +
		" ON " + j.Alias + "." + QuoteIdentifier(j.Hop.TargetKey) +
		" = " + j.ParentAlias + "." + QuoteIdentifier(j.Hop.ForeignKey)
}

// DuckDBEncoder encodes predicates to DuckDB SQL with positional
// parameters. Geometry values are passed as WKB and require the spatial
// extension.
//
// An encoder accumulates arguments and joins; use a fresh encoder per
// statement.
type DuckDBEncoder struct {
	opts  *EncoderOptions
	args  []any
	joins []Join
	// joinAliases maps a path key to the alias of its join.
	joinAliases map[string]string
	subqueries  int

	// scope is the alias direct columns resolve to.
	scope      string
	inSubquery bool
}

var _ Encoder = (*DuckDBEncoder)(nil)

// NewDuckDBEncoder creates a new DuckDB SQL encoder.
// If opts is nil, default options are used.
func NewDuckDBEncoder(opts *EncoderOptions) *DuckDBEncoder {
	if opts == nil {
		opts = &EncoderOptions{}
	}
	if opts.RootAlias == "" {
		o := *opts
		o.RootAlias = "e"
		opts = &o
	}
	return &DuckDBEncoder{
		opts:        opts,
		joinAliases: make(map[string]string),
		scope:       opts.RootAlias,
	}
}

// RootAlias returns the alias of the filtered table.
func (e *DuckDBEncoder) RootAlias() string { return e.opts.RootAlias }

// Args returns the positional arguments in placeholder order.
func (e *DuckDBEncoder) Args() []any { return e.args }

// Joins returns the joins required by the encoded columns, in creation order.
func (e *DuckDBEncoder) Joins() []Join { return e.joins }

// Encode converts a predicate to a WHERE clause body.
func (e *DuckDBEncoder) Encode(p Pred) (string, error) {
	switch p := p.(type) {
	case Truth:
		return p.String(), nil
	case And:
		return e.encodeJunction([]Pred(p), " AND ")
	case Or:
		return e.encodeJunction([]Pred(p), " OR ")
	case *Compare:
		return e.encodeCompare(p)
	case *IsNull:
		return e.encodeIsNull(p)
	case *Test:
		return e.encodeTest(p)
	case *Exists:
		return e.encodeExists(p)
	case nil:
		return "", fmt.Errorf("predicate: nil predicate")
	default:
		return "", fmt.Errorf("predicate: cannot encode %T", p)
	}
}

func (e *DuckDBEncoder) encodeJunction(preds []Pred, op string) (string, error) {
	if len(preds) == 0 {
		if op == " AND " {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	parts := make([]string, 0, len(preds))
	for _, c := range preds {
		s, err := e.Encode(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

func (e *DuckDBEncoder) encodeCompare(c *Compare) (string, error) {
	left, err := e.EncodeOperand(c.Left)
	if err != nil {
		return "", err
	}
	right, err := e.EncodeOperand(c.Right)
	if err != nil {
		return "", err
	}

	if c.Left.Kind() == KindGeometry || c.Right.Kind() == KindGeometry {
		switch c.Op {
		case Eq:
			return "ST_Equals(" + left + ", " + right + ")", nil
		case Ne:
			return "NOT ST_Equals(" + left + ", " + right + ")", nil
		default:
			return "", fmt.Errorf("predicate: operator %s is not defined for geometries", c.Op)
		}
	}

	return left + " " + string(c.Op) + " " + right, nil
}

func (e *DuckDBEncoder) encodeIsNull(n *IsNull) (string, error) {
	s, err := e.EncodeOperand(n.Operand)
	if err != nil {
		return "", err
	}
	if n.Negated {
		return s + " IS NOT NULL", nil
	}
	return s + " IS NULL", nil
}

func (e *DuckDBEncoder) encodeTest(t *Test) (string, error) {
	call, err := e.encodeCall(t.Func, t.Args)
	if err != nil {
		return "", err
	}
	if t.Negated {
		return "NOT COALESCE(" + call + ", FALSE)", nil
	}
	return call, nil
}

func (e *DuckDBEncoder) encodeExists(x *Exists) (string, error) {
	if e.inSubquery {
		return "", fmt.Errorf("predicate: nested EXISTS through %s is not supported", x.Hop.Name)
	}
	h := x.Hop
	e.subqueries++
	alias := "s" + strconv.Itoa(e.subqueries)
	parent := e.scope

	var from, link string
	switch {
	case h.Linked():
		l := "l" + strconv.Itoa(e.subqueries)
		from = QuoteIdentifier(h.LinkTable) + " " + l +
			" JOIN " + QuoteIdentifier(h.Table) + " " + alias +
			" ON " + alias + "." + QuoteIdentifier(h.TargetKey) + " = " + l + "." + QuoteIdentifier(h.LinkTarget)
		link = l + "." + QuoteIdentifier(h.LinkSource) + " = " + parent + "." + QuoteIdentifier(h.SourceKey)
	case h.Many:
		from = QuoteIdentifier(h.Table) + " " + alias
		link = alias + "." + QuoteIdentifier(h.BackRef) + " = " + parent + "." + QuoteIdentifier(h.SourceKey)
	default:
		from = QuoteIdentifier(h.Table) + " " + alias
		link = alias + "." + QuoteIdentifier(h.TargetKey) + " = " + parent + "." + QuoteIdentifier(h.ForeignKey)
	}

	e.scope, e.inSubquery = alias, true
	where, err := e.Encode(x.Where)
	e.scope, e.inSubquery = parent, false
	if err != nil {
		return "", err
	}

	s := "EXISTS (SELECT 1 FROM " + from + " WHERE " + link
	if where != "TRUE" {
		s += " AND " + where
	}
	s += ")"
	if x.Negated {
		return "NOT " + s, nil
	}
	return s, nil
}

// EncodeOperand converts a value expression to SQL.
func (e *DuckDBEncoder) EncodeOperand(o Operand) (string, error) {
	switch o := o.(type) {
	case *Column:
		return e.encodeColumn(o)

	case *Const:
		return e.encodeConst(o)

	case *Arith:
		left, err := e.EncodeOperand(o.Left)
		if err != nil {
			return "", err
		}
		right, err := e.EncodeOperand(o.Right)
		if err != nil {
			return "", err
		}
		op := string(o.Op)
		if o.Op == Div && o.Type == KindInteger {
			op = "//"
		}
		return "(" + left + " " + op + " " + right + ")", nil

	case *Negate:
		s, err := e.EncodeOperand(o.Operand)
		if err != nil {
			return "", err
		}
		return "(-" + s + ")", nil

	case *Call:
		return e.encodeCall(o.Func, o.Args)

	case *Cast:
		s, err := e.EncodeOperand(o.Operand)
		if err != nil {
			return "", err
		}
		typeName := o.To.SQLType()
		if typeName == "" {
			return "", fmt.Errorf("predicate: cannot cast to %s", o.To)
		}
		return "TRY_CAST(" + s + " AS " + typeName + ")", nil

	case nil:
		return "", fmt.Errorf("predicate: nil operand")

	default:
		return "", fmt.Errorf("predicate: cannot encode operand %T", o)
	}
}

func (e *DuckDBEncoder) encodeColumn(c *Column) (string, error) {
	alias := e.scope
	if len(c.Path) > 0 {
		if e.inSubquery {
			return "", fmt.Errorf("predicate: column %s navigates inside a subquery", c)
		}
		alias = e.join(c.Path)
	}
	s := alias + "." + QuoteIdentifier(c.Name)
	if len(c.JSONPath) > 0 {
		s = "json_extract_string(" + s + ", " + jsonPath(c.JSONPath) + ")"
	}
	return s, nil
}

// join returns the alias of the table reached through path, adding joins
// for path prefixes not joined yet. Equal paths share one join.
func (e *DuckDBEncoder) join(path []Hop) string {
	parent := e.opts.RootAlias
	key := ""
	for _, h := range path {
		key += "/" + h.Name
		alias, ok := e.joinAliases[key]
		if !ok {
			alias = "j" + strconv.Itoa(len(e.joins)+1)
			e.joinAliases[key] = alias
			e.joins = append(e.joins, Join{Alias: alias, Table: h.Table, ParentAlias: parent, Hop: h})
		}
		parent = alias
	}
	return parent
}

func (e *DuckDBEncoder) encodeConst(c *Const) (string, error) {
	switch v := c.Value.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return "CAST(" + e.param(v) + " AS TIMESTAMPTZ)", nil
	case orb.Geometry:
		data, err := geom.EncodeWKB(v)
		if err != nil {
			return "", fmt.Errorf("predicate: %w", err)
		}
		return "ST_GeomFromWKB(" + e.param(data) + ")", nil
	case int64, float64, string:
		return e.param(v), nil
	default:
		return "", fmt.Errorf("predicate: unsupported constant %T", c.Value)
	}
}

func (e *DuckDBEncoder) param(v any) string {
	e.args = append(e.args, v)
	return "?"
}

func (e *DuckDBEncoder) encodeCall(name string, args []Operand) (string, error) {
	fn, ok := functions[name]
	if !ok {
		return "", fmt.Errorf("predicate: unknown function %q", name)
	}
	encoded := make([]string, len(args))
	for i, a := range args {
		s, err := e.EncodeOperand(a)
		if err != nil {
			return "", err
		}
		encoded[i] = s
	}
	return fn.sql(encoded), nil
}

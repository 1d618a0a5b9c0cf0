package predicate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/staquery/geom"
)

// Row is a storage row as seen by Evaluate.
type Row interface {
	// Field returns the value of a column of the row, nil when null.
	Field(column string) any
	// Follow returns the rows related to this one through h.
	Follow(h Hop) []Row
}

// Evaluate reports whether row satisfies p.
//
// Evaluation follows the storage semantics: comparisons and function tests
// involving null operands fail, and their negated forms hold.
func Evaluate(p Pred, row Row) (bool, error) {
	switch p := p.(type) {
	case Truth:
		return bool(p), nil

	case And:
		for _, c := range p {
			ok, err := Evaluate(c, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case Or:
		for _, c := range p {
			ok, err := Evaluate(c, row)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil

	case *Compare:
		l, err := EvaluateOperand(p.Left, row)
		if err != nil {
			return false, err
		}
		r, err := EvaluateOperand(p.Right, row)
		if err != nil {
			return false, err
		}
		return compareValues(p.Op, l, r)

	case *IsNull:
		v, err := EvaluateOperand(p.Operand, row)
		if err != nil {
			return false, err
		}
		return (v == nil) != p.Negated, nil

	case *Test:
		args, err := evaluateArgs(p.Args, row)
		if err != nil {
			return false, err
		}
		v, err := callFunction(p.Func, args)
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		return b != p.Negated, nil

	case *Exists:
		found := false
		for _, related := range row.Follow(p.Hop) {
			ok, err := Evaluate(p.Where, related)
			if err != nil {
				return false, err
			}
			if ok {
				found = true
				break
			}
		}
		return found != p.Negated, nil

	default:
		return false, fmt.Errorf("predicate: cannot evaluate %T", p)
	}
}

// EvaluateOperand computes the value of o for row. Null is returned as nil.
func EvaluateOperand(o Operand, row Row) (any, error) {
	switch o := o.(type) {
	case *Column:
		return columnValue(o, row)

	case *Const:
		return o.Value, nil

	case *Arith:
		l, err := EvaluateOperand(o.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := EvaluateOperand(o.Right, row)
		if err != nil {
			return nil, err
		}
		return arith(o.Op, l, r)

	case *Negate:
		v, err := EvaluateOperand(o.Operand, row)
		if err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, fmt.Errorf("predicate: cannot negate %T", v)

	case *Call:
		args, err := evaluateArgs(o.Args, row)
		if err != nil {
			return nil, err
		}
		return callFunction(o.Func, args)

	case *Cast:
		v, err := EvaluateOperand(o.Operand, row)
		if err != nil {
			return nil, err
		}
		return castValue(v, o.To), nil

	default:
		return nil, fmt.Errorf("predicate: cannot evaluate operand %T", o)
	}
}

func evaluateArgs(ops []Operand, row Row) ([]any, error) {
	args := make([]any, len(ops))
	for i, a := range ops {
		v, err := EvaluateOperand(a, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func columnValue(c *Column, row Row) (any, error) {
	for _, h := range c.Path {
		next := row.Follow(h)
		if len(next) == 0 {
			return nil, nil
		}
		row = next[0]
	}
	v := normalize(row.Field(c.Name))
	if len(c.JSONPath) == 0 || v == nil {
		return v, nil
	}
	return jsonMember(v, c.JSONPath)
}

// jsonMember extracts a member of a JSON document the way
// json_extract_string does: scalars as text, containers as JSON text.
func jsonMember(doc any, path []string) (any, error) {
	switch d := doc.(type) {
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(d), &parsed); err != nil {
			return nil, nil
		}
		doc = parsed
	case []byte:
		var parsed any
		if err := json.Unmarshal(d, &parsed); err != nil {
			return nil, nil
		}
		doc = parsed
	}

	for _, key := range path {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, nil
		}
		if doc, ok = obj[key]; !ok {
			return nil, nil
		}
	}

	switch v := doc.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

// normalize maps Go values to the canonical types used by evaluation.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	}
	return v
}

func castValue(v any, to Kind) any {
	if v == nil {
		return nil
	}
	s, isString := v.(string)
	switch to {
	case KindString:
		if isString {
			return s
		}
		return fmt.Sprint(v)
	case KindInteger:
		switch v := v.(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); isString && err == nil {
			return i
		}
	case KindDecimal:
		switch v := v.(type) {
		case int64:
			return float64(v)
		case float64:
			return v
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); isString && err == nil {
			return f
		}
	case KindBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
		if b, err := strconv.ParseBool(s); isString && err == nil {
			return b
		}
	case KindDateTime:
		if t, ok := v.(time.Time); ok {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, s); isString && err == nil {
			return t
		}
	}
	return nil
}

func arith(op ArithOp, l, r any) (any, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt {
		switch op {
		case Add:
			return li + ri, nil
		case Sub:
			return li - ri, nil
		case Mul:
			return li * ri, nil
		case Div:
			if ri == 0 {
				return nil, nil
			}
			return li / ri, nil
		case Mod:
			if ri == 0 {
				return nil, nil
			}
			return li % ri, nil
		}
		return nil, fmt.Errorf("predicate: unknown operator %q", op)
	}

	lf, ok := toFloat(l)
	if !ok {
		return nil, fmt.Errorf("predicate: %T is not a number", l)
	}
	rf, ok := toFloat(r)
	if !ok {
		return nil, fmt.Errorf("predicate: %T is not a number", r)
	}
	switch op {
	case Add:
		return lf + rf, nil
	case Sub:
		return lf - rf, nil
	case Mul:
		return lf * rf, nil
	case Div:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	case Mod:
		if rf == 0 {
			return nil, nil
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("predicate: unknown operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func compareValues(op CompareOp, l, r any) (bool, error) {
	if l == nil || r == nil {
		return false, nil
	}

	if lv, ok := l.(orb.Geometry); ok {
		rv, ok := r.(orb.Geometry)
		if !ok {
			return false, mismatch(l, r)
		}
		switch op {
		case Eq:
			return geom.Equals(lv, rv)
		case Ne:
			eq, err := geom.Equals(lv, rv)
			return !eq, err
		}
		return false, fmt.Errorf("predicate: geometries support only equality")
	}

	c, err := CompareValues(l, r)
	if err != nil {
		return false, err
	}
	switch op {
	case Eq:
		return c == 0, nil
	case Ne:
		return c != 0, nil
	case Lt:
		return c < 0, nil
	case Le:
		return c <= 0, nil
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	}
	return false, fmt.Errorf("predicate: unknown comparison %q", op)
}

// CompareValues orders two non-null values returned by EvaluateOperand.
// Integers and decimals compare numerically; other values compare only
// with values of the same kind.
func CompareValues(l, r any) (int, error) {
	switch lv := l.(type) {
	case int64, float64:
		if li, ok := l.(int64); ok {
			if ri, ok := r.(int64); ok {
				return cmpOrdered(li, ri), nil
			}
		}
		lf, _ := toFloat(lv)
		rf, ok := toFloat(r)
		if !ok {
			return 0, mismatch(l, r)
		}
		return cmpOrdered(lf, rf), nil

	case string:
		rv, ok := r.(string)
		if !ok {
			return 0, mismatch(l, r)
		}
		return strings.Compare(lv, rv), nil

	case bool:
		rv, ok := r.(bool)
		if !ok {
			return 0, mismatch(l, r)
		}
		return cmpOrdered(boolRank(lv), boolRank(rv)), nil

	case time.Time:
		rv, ok := r.(time.Time)
		if !ok {
			return 0, mismatch(l, r)
		}
		return lv.Compare(rv), nil
	}
	return 0, mismatch(l, r)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func mismatch(l, r any) error {
	return fmt.Errorf("predicate: cannot compare %T with %T", l, r)
}

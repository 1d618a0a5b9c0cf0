package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/hugr-lab/staquery/internal/msgpack"
)

// Node kinds used by the wire formats.
const (
	kindLiteral  = "literal"
	kindProperty = "property"
	kindUnary    = "unary"
	kindBinary   = "binary"
	kindFunction = "function"
)

// rawNode is the intermediate structure shared by the JSON and MessagePack
// encodings.
type rawNode struct {
	Kind    string     `json:"kind" msgpack:"kind"`
	Type    string     `json:"type,omitempty" msgpack:"type,omitempty"`
	Value   any        `json:"value" msgpack:"value"`
	Path    []string   `json:"path,omitempty" msgpack:"path,omitempty"`
	Op      string     `json:"op,omitempty" msgpack:"op,omitempty"`
	Operand *rawNode   `json:"operand,omitempty" msgpack:"operand,omitempty"`
	Left    *rawNode   `json:"left,omitempty" msgpack:"left,omitempty"`
	Right   *rawNode   `json:"right,omitempty" msgpack:"right,omitempty"`
	Name    string     `json:"name,omitempty" msgpack:"name,omitempty"`
	Args    []*rawNode `json:"args,omitempty" msgpack:"args,omitempty"`
}

// Decode parses a JSON encoded expression tree.
//
// Error conditions:
//   - Invalid JSON syntax
//   - Unknown node kind, operator or literal type
//   - Missing operands
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw rawNode
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("expr: invalid JSON: %w", err)
	}
	return raw.node()
}

// DecodeMsgpack parses a MessagePack encoded expression tree.
func DecodeMsgpack(data []byte) (Node, error) {
	var raw rawNode
	if err := msgpack.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("expr: %w", err)
	}
	return raw.node()
}

// Encode serializes a tree to JSON.
func Encode(n Node) ([]byte, error) {
	raw, err := toRaw(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// EncodeMsgpack serializes a tree to MessagePack.
func EncodeMsgpack(n Node) ([]byte, error) {
	raw, err := toRaw(n)
	if err != nil {
		return nil, err
	}
	return msgpack.Encode(raw)
}

func (r *rawNode) node() (Node, error) {
	if r == nil {
		return nil, fmt.Errorf("expr: missing node")
	}

	switch r.Kind {
	case kindLiteral:
		return r.literal()

	case kindProperty:
		if len(r.Path) == 0 {
			return nil, fmt.Errorf("expr: property reference without path")
		}
		return Prop(r.Path...), nil

	case kindUnary:
		op := UnaryOp(r.Op)
		if op != OpNot && op != OpNegate {
			return nil, fmt.Errorf("expr: unknown unary operator %q", r.Op)
		}
		operand, err := r.Operand.node()
		if err != nil {
			return nil, fmt.Errorf("invalid operand: %w", err)
		}
		return &UnaryExpr{Op: op, Operand: operand}, nil

	case kindBinary:
		op := BinaryOp(r.Op)
		if !op.IsLogical() && !op.IsComparison() && !op.IsArithmetic() {
			return nil, fmt.Errorf("expr: unknown binary operator %q", r.Op)
		}
		left, err := r.Left.node()
		if err != nil {
			return nil, fmt.Errorf("invalid left operand: %w", err)
		}
		right, err := r.Right.node()
		if err != nil {
			return nil, fmt.Errorf("invalid right operand: %w", err)
		}
		return &BinaryExpr{Op: op, Left: left, Right: right}, nil

	case kindFunction:
		if r.Name == "" {
			return nil, fmt.Errorf("expr: function call without name")
		}
		args := make([]Node, 0, len(r.Args))
		for i, a := range r.Args {
			arg, err := a.node()
			if err != nil {
				return nil, fmt.Errorf("invalid argument %d of %s: %w", i, r.Name, err)
			}
			args = append(args, arg)
		}
		return &FunctionCall{Name: r.Name, Args: args}, nil

	default:
		return nil, fmt.Errorf("expr: unknown node kind %q", r.Kind)
	}
}

func (r *rawNode) literal() (*Literal, error) {
	typ := DeclaredType(r.Type)
	switch typ {
	case TypeNull:
		return Null(), nil
	case TypeBoolean:
		b, ok := r.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("expr: boolean literal has value %T", r.Value)
		}
		return Bool(b), nil
	case TypeNumber:
		if n, ok := r.Value.(json.Number); ok {
			return Number(n.String()), nil
		}
		return Lit(r.Value, typ), nil
	case TypeString, TypeDateTime, TypeGeometry:
		if _, ok := r.Value.(string); !ok {
			return nil, fmt.Errorf("expr: %s literal has value %T", typ, r.Value)
		}
		return Lit(r.Value, typ), nil
	default:
		return nil, fmt.Errorf("expr: unknown literal type %q", r.Type)
	}
}

func toRaw(n Node) (*rawNode, error) {
	switch n := n.(type) {
	case *Literal:
		raw := &rawNode{Kind: kindLiteral, Type: string(n.Type), Value: n.Value}
		switch v := n.Value.(type) {
		case orb.Geometry:
			raw.Value = wkt.MarshalString(v)
		case time.Time:
			raw.Value = v.UTC().Format(time.RFC3339Nano)
		}
		return raw, nil
	case *PropertyReference:
		return &rawNode{Kind: kindProperty, Path: n.Path}, nil
	case *UnaryExpr:
		operand, err := toRaw(n.Operand)
		if err != nil {
			return nil, err
		}
		return &rawNode{Kind: kindUnary, Op: string(n.Op), Operand: operand}, nil
	case *BinaryExpr:
		left, err := toRaw(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := toRaw(n.Right)
		if err != nil {
			return nil, err
		}
		return &rawNode{Kind: kindBinary, Op: string(n.Op), Left: left, Right: right}, nil
	case *FunctionCall:
		raw := &rawNode{Kind: kindFunction, Name: n.Name, Args: make([]*rawNode, 0, len(n.Args))}
		for _, a := range n.Args {
			arg, err := toRaw(a)
			if err != nil {
				return nil, err
			}
			raw.Args = append(raw.Args, arg)
		}
		return raw, nil
	case nil:
		return nil, ErrNilNode
	default:
		return nil, fmt.Errorf("expr: cannot encode %T", n)
	}
}

// Package parser reads OData/SensorThings $filter text into expression
// trees.
//
// Operator precedence, loosest first:
//
//	or
//	and
//	not
//	eq ne
//	lt le gt ge
//	add sub
//	mul div mod
//	unary -
//
// Property paths use '/' between segments (Datastream/Sensor/name). Literals
// are single-quoted strings, numbers, true, false, null, ISO-8601 times
// (bare or datetime'...') and geometries (geography'...' or geometry'...').
package parser

import (
	"fmt"
	"strings"

	"github.com/hugr-lab/staquery/expr"
)

// SyntaxError reports malformed filter text.
type SyntaxError struct {
	Input string
	// Pos is the byte offset of the offending token, or -1 for a tree
	// that was built without source text.
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	if e.Pos < 0 {
		return "filter syntax error: " + e.Msg
	}
	return fmt.Sprintf("filter syntax error at position %d: %s", e.Pos, e.Msg)
}

func newSyntaxError(input string, pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Input: input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Parse parses a $filter expression.
//
// Error conditions:
//   - Empty input
//   - Unterminated strings, unknown characters or literal prefixes
//   - Missing operands, parentheses or commas
//   - Trailing input after a complete expression
func Parse(input string) (expr.Node, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.errorf("empty filter")
	}
	n, err := p.expression(precLowest)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s after expression", p.describe())
	}
	return n, nil
}

// MustParse is like Parse but panics on error.
func MustParse(input string) expr.Node {
	n, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return n
}

const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
)

var binaryOps = map[string]struct {
	op   expr.BinaryOp
	prec int
}{
	"or":  {expr.OpOr, precOr},
	"and": {expr.OpAnd, precAnd},
	"eq":  {expr.OpEq, precEquality},
	"ne":  {expr.OpNe, precEquality},
	"lt":  {expr.OpLt, precRelational},
	"le":  {expr.OpLe, precRelational},
	"gt":  {expr.OpGt, precRelational},
	"ge":  {expr.OpGe, precRelational},
	"add": {expr.OpAdd, precAdditive},
	"sub": {expr.OpSub, precAdditive},
	"mul": {expr.OpMul, precMultiplicative},
	"div": {expr.OpDiv, precMultiplicative},
	"mod": {expr.OpMod, precMultiplicative},
}

type parser struct {
	lex lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// expression parses operators binding tighter than prec.
func (p *parser) expression(prec int) (expr.Node, error) {
	left, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		if p.tok.kind != tokIdent {
			return left, nil
		}
		bin, ok := binaryOps[strings.ToLower(p.tok.text)]
		if !ok || bin.prec <= prec {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.expression(bin.prec)
		if err != nil {
			return nil, err
		}
		left = expr.Binary(bin.op, left, right)
	}
}

func (p *parser) prefix() (expr.Node, error) {
	tok := p.tok
	switch tok.kind {
	case tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokNumber && p.tok.pos == tok.pos+1 {
			lit := expr.Number("-" + p.tok.text)
			return lit, p.advance()
		}
		operand, err := p.expression(precUnary)
		if err != nil {
			return nil, err
		}
		return expr.Negate(operand), nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.expression(precLowest)
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return n, nil

	case tokString:
		return expr.String(tok.text), p.advance()
	case tokNumber:
		return expr.Number(tok.text), p.advance()
	case tokDateTime:
		return expr.DateTime(tok.text), p.advance()
	case tokGeometry:
		return expr.Geometry(tok.text), p.advance()

	case tokIdent:
		return p.identifier()

	case tokEOF:
		return nil, p.errorf("unexpected end of input, expected an operand")
	}
	return nil, p.errorf("unexpected %s, expected an operand", p.describe())
}

func (p *parser) identifier() (expr.Node, error) {
	tok := p.tok
	word := strings.ToLower(tok.text)
	switch word {
	case "true", "false":
		return expr.Bool(word == "true"), p.advance()
	case "null":
		return expr.Null(), p.advance()
	case "not":
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.expression(precNot)
		if err != nil {
			return nil, err
		}
		return expr.Not(operand), nil
	}
	if _, isOp := binaryOps[word]; isOp {
		return nil, p.errorf("unexpected operator %q, expected an operand", tok.text)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokLParen {
		return p.call(tok)
	}

	path := strings.Split(tok.text, "/")
	for _, seg := range path {
		if seg == "" {
			return nil, newSyntaxError(p.lex.input, tok.pos, "empty segment in property path %q", tok.text)
		}
	}
	return expr.Prop(path...), nil
}

func (p *parser) call(name token) (expr.Node, error) {
	if strings.Contains(name.text, "/") {
		return nil, newSyntaxError(p.lex.input, name.pos, "invalid function name %q", name.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []expr.Node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.expression(precLowest)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return expr.Call(strings.ToLower(name.text), args...), nil
}

func (p *parser) expect(kind tokenKind) error {
	if p.tok.kind != kind {
		return p.errorf("expected %s, got %s", kind, p.describe())
	}
	return p.advance()
}

func (p *parser) describe() string {
	switch p.tok.kind {
	case tokIdent:
		return fmt.Sprintf("%q", p.tok.text)
	case tokString, tokNumber, tokDateTime, tokGeometry:
		return p.tok.kind.String() + " " + p.tok.text
	}
	return p.tok.kind.String()
}

func (p *parser) errorf(format string, args ...any) error {
	return newSyntaxError(p.lex.input, p.tok.pos, format, args...)
}

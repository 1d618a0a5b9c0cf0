package parser

import (
	"strings"

	"github.com/hugr-lab/staquery/expr"
)

// OrderItem is one $orderby key.
type OrderItem struct {
	Expr expr.Node
	Desc bool
}

// ParseOrderBy parses a comma separated $orderby list. Each key is an
// expression optionally followed by asc or desc.
func ParseOrderBy(input string) ([]OrderItem, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.errorf("empty orderby")
	}

	var items []OrderItem
	for {
		n, err := p.expression(precLowest)
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: n}
		if p.tok.kind == tokIdent {
			switch strings.ToLower(p.tok.text) {
			case "asc":
			case "desc":
				item.Desc = true
			default:
				return nil, p.errorf("expected asc or desc, got %s", p.describe())
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		items = append(items, item)

		switch p.tok.kind {
		case tokEOF:
			return items, nil
		case tokComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("unexpected %s in orderby", p.describe())
		}
	}
}

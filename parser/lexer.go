package parser

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokDateTime
	tokGeometry
	tokLParen
	tokRParen
	tokComma
	tokMinus
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokDateTime:
		return "datetime"
	case tokGeometry:
		return "geometry"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokMinus:
		return "'-'"
	}
	return "token"
}

type token struct {
	kind tokenKind
	// text is the identifier, the unquoted string or the literal text.
	text string
	pos  int
}

// lexer splits $filter text into tokens. Keywords are returned as
// identifiers and recognized by the parser.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '-':
		l.pos++
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case c == '\'':
		s, err := l.quoted()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil
	case isDigit(c):
		if l.looksLikeDate() {
			return token{kind: tokDateTime, text: l.until(isDelimiter), pos: start}, nil
		}
		return token{kind: tokNumber, text: l.number(), pos: start}, nil
	case isIdentStart(c):
		word := l.until(func(c byte) bool { return !isIdentPart(c) })
		if l.pos < len(l.input) && l.input[l.pos] == '\'' {
			return l.typed(word, start)
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q", c)
}

// typed reads a prefixed literal such as geography'POINT(1 2)'.
func (l *lexer) typed(prefix string, start int) (token, error) {
	var kind tokenKind
	switch strings.ToLower(prefix) {
	case "geography", "geometry":
		kind = tokGeometry
	case "datetime", "datetimeoffset":
		kind = tokDateTime
	default:
		return token{}, l.errorf(start, "unknown literal prefix %q", prefix)
	}
	s, err := l.quoted()
	if err != nil {
		return token{}, err
	}
	return token{kind: kind, text: strings.TrimSpace(s), pos: start}, nil
}

// quoted reads a single-quoted string with '' as escaped quote.
func (l *lexer) quoted() (string, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		l.pos++
		if c != '\'' {
			sb.WriteByte(c)
			continue
		}
		if l.pos < len(l.input) && l.input[l.pos] == '\'' {
			sb.WriteByte('\'')
			l.pos++
			continue
		}
		return sb.String(), nil
	}
	return "", l.errorf(start, "unterminated string literal")
}

func (l *lexer) number() string {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	if l.pos < len(l.input) && strings.IndexByte("dDfFmMlL", l.input[l.pos]) >= 0 &&
		(l.pos+1 == len(l.input) || !isIdentPart(l.input[l.pos+1])) {
		l.pos++
	}
	return l.input[start:l.pos]
}

// looksLikeDate reports whether the input at pos starts with YYYY-MM-DD.
func (l *lexer) looksLikeDate() bool {
	s := l.input[l.pos:]
	if len(s) < 10 {
		return false
	}
	for i := 0; i < 10; i++ {
		if i == 4 || i == 7 {
			if s[i] != '-' {
				return false
			}
		} else if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func (l *lexer) until(stop func(byte) bool) string {
	start := l.pos
	for l.pos < len(l.input) && !stop(l.input[l.pos]) {
		l.pos++
	}
	return l.input[start:l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return newSyntaxError(l.input, pos, format, args...)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '@' || c == '$'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.' || c == '/'
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ')', '(', ',':
		return true
	}
	return false
}

package predicate

import "strings"

// Encoder renders predicates in a SQL dialect.
type Encoder interface {
	// Encode converts a predicate to the body of a WHERE clause.
	Encode(p Pred) (string, error)

	// EncodeOperand converts a value expression, e.g. for ORDER BY.
	EncodeOperand(o Operand) (string, error)

	// Args returns the positional arguments collected while encoding.
	Args() []any

	// Joins returns the joins required by encoded column paths.
	Joins() []Join
}

// EncoderOptions configures encoding behavior.
type EncoderOptions struct {
	// RootAlias is the alias of the filtered table.
	// Default: "e".
	RootAlias string
}

// escapeString escapes single quotes in a string value for SQL.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteLiteral returns a SQL string literal with proper escaping.
func quoteLiteral(s string) string {
	return "'" + escapeString(s) + "'"
}

// QuoteIdentifier returns a quoted identifier if needed.
// DuckDB uses double quotes for identifiers.
func QuoteIdentifier(name string) string {
	if needsQuoting(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

// needsQuoting returns true if the identifier needs quoting.
func needsQuoting(name string) bool {
	if len(name) == 0 {
		return true
	}

	c := name[0]
	if !isLetter(c) && c != '_' {
		return true
	}

	for i := 1; i < len(name); i++ {
		c = name[i]
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return true
		}
	}

	// Reserved words (simplified list)
	switch strings.ToUpper(name) {
	case "SELECT", "FROM", "WHERE", "AND", "OR", "NOT", "NULL", "TRUE", "FALSE",
		"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TABLE", "INDEX",
		"JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "ON", "AS", "IN", "IS", "LIKE",
		"BETWEEN", "EXISTS", "CASE", "WHEN", "THEN", "ELSE", "END", "ORDER", "BY",
		"GROUP", "HAVING", "LIMIT", "OFFSET", "UNION", "EXCEPT", "INTERSECT",
		"ALL", "DISTINCT", "VALUES", "SET", "INTO", "PRIMARY", "KEY", "FOREIGN",
		"REFERENCES", "CONSTRAINT", "DEFAULT", "CHECK", "UNIQUE", "ASC", "DESC",
		"NULLS", "FIRST", "LAST", "CAST", "INTERVAL", "DATE", "TIME", "TIMESTAMP":
		return true
	}

	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// jsonPath renders a DuckDB JSON path for the given member keys.
func jsonPath(keys []string) string {
	var sb strings.Builder
	sb.WriteByte('$')
	for _, k := range keys {
		sb.WriteByte('.')
		if needsQuoting(k) {
			sb.WriteString(`"` + strings.ReplaceAll(k, `"`, `\"`) + `"`)
		} else {
			sb.WriteString(k)
		}
	}
	return quoteLiteral(sb.String())
}

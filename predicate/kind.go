package predicate

// Kind is the value domain of an operand.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindDecimal
	KindString
	KindDateTime
	KindGeometry
	// KindJSON is a dynamically typed value extracted from a JSON document.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindDateTime:
		return "datetime"
	case KindGeometry:
		return "geometry"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Numeric reports whether k is integer or decimal.
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindDecimal
}

// Ordered reports whether values of k support lt, le, gt and ge.
func (k Kind) Ordered() bool {
	switch k {
	case KindInteger, KindDecimal, KindString, KindDateTime, KindBoolean:
		return true
	}
	return false
}

// SQLType returns the DuckDB type name used for casts and DDL.
func (k Kind) SQLType() string {
	switch k {
	case KindBoolean:
		return "BOOLEAN"
	case KindInteger:
		return "BIGINT"
	case KindDecimal:
		return "DOUBLE"
	case KindString:
		return "VARCHAR"
	case KindDateTime:
		return "TIMESTAMPTZ"
	case KindGeometry:
		return "GEOMETRY"
	case KindJSON:
		return "JSON"
	default:
		return ""
	}
}

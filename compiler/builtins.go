package compiler

import (
	"sort"

	"github.com/hugr-lab/staquery/predicate"
)

// param is the kind of value a function parameter accepts.
type param int

const (
	pString param = iota
	pInteger
	// pNumber accepts integers and decimals.
	pNumber
	pDateTime
	pGeometry
	// pPattern is a DE-9IM pattern given as a string literal.
	pPattern
)

func (p param) String() string {
	switch p {
	case pString:
		return "string"
	case pInteger:
		return "integer"
	case pNumber:
		return "number"
	case pDateTime:
		return "datetime"
	case pGeometry:
		return "geometry"
	case pPattern:
		return "intersection pattern literal"
	}
	return "value"
}

// builtin describes a non-spatial catalogue function.
type builtin struct {
	// storage is the predicate function name. Empty means the function
	// returns its first argument.
	storage  string
	params   []param
	optional int
	// result is the result kind. KindNull means the kind of the first
	// argument.
	result predicate.Kind
	// swap reverses the two arguments before calling storage.
	swap bool
	// bound selects the start or end column when the argument is a time
	// period property.
	bound bound
}

type bound int

const (
	noBound bound = iota
	periodStart
	periodEnd
)

var builtins = map[string]builtin{
	// string
	"substringof": {storage: "contains", params: []param{pString, pString}, result: predicate.KindBoolean, swap: true},
	"contains":    {storage: "contains", params: []param{pString, pString}, result: predicate.KindBoolean},
	"startswith":  {storage: "startswith", params: []param{pString, pString}, result: predicate.KindBoolean},
	"endswith":    {storage: "endswith", params: []param{pString, pString}, result: predicate.KindBoolean},
	"length":      {storage: "length", params: []param{pString}, result: predicate.KindInteger},
	"indexof":     {storage: "indexof", params: []param{pString, pString}, result: predicate.KindInteger},
	"substring":   {storage: "substring", params: []param{pString, pInteger, pInteger}, optional: 1, result: predicate.KindString},
	"tolower":     {storage: "tolower", params: []param{pString}, result: predicate.KindString},
	"toupper":     {storage: "toupper", params: []param{pString}, result: predicate.KindString},
	"trim":        {storage: "trim", params: []param{pString}, result: predicate.KindString},
	"concat":      {storage: "concat", params: []param{pString, pString}, result: predicate.KindString},

	// date
	"year":              {storage: "year", params: []param{pDateTime}, result: predicate.KindInteger},
	"month":             {storage: "month", params: []param{pDateTime}, result: predicate.KindInteger},
	"day":               {storage: "day", params: []param{pDateTime}, result: predicate.KindInteger},
	"hour":              {storage: "hour", params: []param{pDateTime}, result: predicate.KindInteger},
	"minute":            {storage: "minute", params: []param{pDateTime}, result: predicate.KindInteger},
	"second":            {storage: "second", params: []param{pDateTime}, result: predicate.KindInteger},
	"fractionalseconds": {storage: "fractionalseconds", params: []param{pDateTime}, result: predicate.KindDecimal},
	"now":               {storage: "now", result: predicate.KindDateTime},
	"mindatetime":       {params: []param{pDateTime}, result: predicate.KindDateTime, bound: periodStart},
	"maxdatetime":       {params: []param{pDateTime}, result: predicate.KindDateTime, bound: periodEnd},

	// math
	"round":   {storage: "round", params: []param{pNumber}},
	"floor":   {storage: "floor", params: []param{pNumber}},
	"ceiling": {storage: "ceiling", params: []param{pNumber}},

	// geo
	"geo.distance":   {storage: "geo.distance", params: []param{pGeometry, pGeometry}, result: predicate.KindDecimal},
	"geo.length":     {storage: "geo.length", params: []param{pGeometry}, result: predicate.KindDecimal},
	"geo.intersects": {storage: "geo.intersects", params: []param{pGeometry, pGeometry}, result: predicate.KindBoolean},
}

// Functions returns the names of all catalogue functions, sorted.
func Functions() []string {
	names := make([]string, 0, len(builtins)+len(spatialFunctions))
	for name := range builtins {
		names = append(names, name)
	}
	for name := range spatialFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package expr defines the parsed form of a SensorThings $filter expression.
//
// The tree is a closed tagged union of five node types:
//   - Literal: a typed constant (string, number, boolean, datetime, geometry, null)
//   - PropertyReference: a property path, possibly navigating related entities
//     (e.g. Datastream/Sensor/name)
//   - UnaryExpr: logical NOT or arithmetic negation
//   - BinaryExpr: logical, comparison and arithmetic operators
//   - FunctionCall: string, date, math and spatial functions
//
// Nodes are plain values and carry no storage state. A tree is produced once
// by a parser and then read by the compiler.
//
// # Walking a Tree
//
// Implement Visitor and call Walk. Every node type has a dedicated Visitor
// method, so adding a node type breaks every visitor at build time until it
// handles the new node:
//
//	type counter struct{}
//
//	func (counter) VisitLiteral(*expr.Literal) (int, error) { return 1, nil }
//	...
//
//	n, err := expr.Walk[int](counter{}, tree)
//
// # Wire Formats
//
// Trees produced by an out-of-process parser can be decoded from JSON
// (Decode) or MessagePack (DecodeMsgpack):
//
//	{"kind": "function", "name": "st_equals", "args": [
//	    {"kind": "property", "path": ["location"]},
//	    {"kind": "literal", "type": "geometry", "value": "POINT (30 10)"}
//	]}
package expr

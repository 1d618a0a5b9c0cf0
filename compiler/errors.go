package compiler

import "fmt"

// UnsupportedFunctionError reports a function name outside the catalogue.
type UnsupportedFunctionError struct {
	Name string
}

func (e *UnsupportedFunctionError) Error() string {
	return fmt.Sprintf("unsupported function %q", e.Name)
}

// InvalidArgumentError reports a call with the wrong number or kind of
// arguments. Arg is the zero-based argument index, or -1 for arity errors.
type InvalidArgumentError struct {
	Func   string
	Arg    int
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Arg < 0 {
		return fmt.Sprintf("invalid arguments to %s: %s", e.Func, e.Reason)
	}
	return fmt.Sprintf("invalid argument %d to %s: %s", e.Arg+1, e.Func, e.Reason)
}

// DivisionByZeroError reports a literal zero divisor.
type DivisionByZeroError struct {
	Expr string
}

func (e *DivisionByZeroError) Error() string {
	return "division by zero in " + e.Expr
}

package staquery

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/staquery/compiler"
	"github.com/hugr-lab/staquery/geom"
	"github.com/hugr-lab/staquery/literal"
	"github.com/hugr-lab/staquery/parser"
	"github.com/hugr-lab/staquery/schema"
)

// Filter compilation errors. Each is raised by the package doing the work
// and re-exported here so callers need a single import.
type (
	UnknownPropertyError         = schema.UnknownPropertyError
	UnknownEntityTypeError       = schema.UnknownEntityTypeError
	TypeMismatchError            = literal.TypeMismatchError
	GeometryParseError           = geom.ParseError
	UnsupportedFunctionError     = compiler.UnsupportedFunctionError
	InvalidFunctionArgumentError = compiler.InvalidArgumentError
	DivisionByZeroError          = compiler.DivisionByZeroError
	FilterSyntaxError            = parser.SyntaxError
)

// Standard errors returned by staquery package.
var (
	// ErrInvalidConfig indicates Config validation failed.
	ErrInvalidConfig = errors.New("invalid builder config")

	// ErrInvalidQuery indicates a query option that is not part of a filter
	// failed validation, such as an unknown scope relation.
	ErrInvalidQuery = errors.New("invalid query")
)

// Error is returned by Builder for a rejected query. It keeps the entity
// type the query was built for and wraps the underlying cause.
type Error struct {
	EntityType string
	Err        error
}

func (e *Error) Error() string {
	return e.EntityType + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// GRPCStatus lets status.FromError classify builder errors.
func (e *Error) GRPCStatus() *status.Status {
	return Status(e.Err)
}

// IsInvalidQuery reports whether err was caused by the query itself rather
// than by the builder. Handlers should answer such errors with a client
// error.
func IsInvalidQuery(err error) bool {
	if errors.Is(err, ErrInvalidQuery) {
		return true
	}
	var (
		unknownProperty *UnknownPropertyError
		unknownType     *UnknownEntityTypeError
		mismatch        *TypeMismatchError
		geometry        *GeometryParseError
		unsupported     *UnsupportedFunctionError
		argument        *InvalidFunctionArgumentError
		division        *DivisionByZeroError
		syntax          *FilterSyntaxError
	)
	return errors.As(err, &unknownProperty) ||
		errors.As(err, &unknownType) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &geometry) ||
		errors.As(err, &unsupported) ||
		errors.As(err, &argument) ||
		errors.As(err, &division) ||
		errors.As(err, &syntax)
}

// Status converts err to a gRPC status: invalid queries map to
// codes.InvalidArgument, errors already carrying a status keep it, and
// everything else is codes.Internal.
func Status(err error) *status.Status {
	if err == nil {
		return nil
	}
	if IsInvalidQuery(err) {
		return status.New(codes.InvalidArgument, err.Error())
	}
	var be *Error
	if errors.As(err, &be) {
		err = be.Err
	}
	if s, ok := status.FromError(err); ok {
		return s
	}
	return status.New(codes.Internal, err.Error())
}

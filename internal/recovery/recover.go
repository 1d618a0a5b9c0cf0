// Package recovery turns panics inside predicate compilation into errors so
// that a defect in one filter cannot take down the request handler.
package recovery

import (
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RecoverToValue runs fn and converts a panic into a codes.Internal status
// error. The panic is logged with its stack.
//
// Example:
//
//	pred, err := recovery.RecoverToValue(logger, "BuildPredicate", func() (predicate.Pred, error) {
//	    return compiler.Compile(entityType, tree)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			var zero T
			result = zero
			err = status.Errorf(codes.Internal, "%s panicked: %v", operation, r)
		}
	}()

	return fn()
}

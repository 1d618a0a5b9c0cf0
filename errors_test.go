package staquery_test

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/staquery"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"UnknownProperty", &staquery.UnknownPropertyError{EntityType: "Thing", Segment: "colour"}, codes.InvalidArgument},
		{"Wrapped", fmt.Errorf("handler: %w", &staquery.DivisionByZeroError{Expr: "result div 0"}), codes.InvalidArgument},
		{"InvalidQuery", fmt.Errorf("%w: bad page", staquery.ErrInvalidQuery), codes.InvalidArgument},
		{"BuilderError", &staquery.Error{EntityType: "Thing", Err: &staquery.FilterSyntaxError{Msg: "x"}}, codes.InvalidArgument},
		{"BuilderInternal", &staquery.Error{EntityType: "Thing", Err: errors.New("boom")}, codes.Internal},
		{"StatusKept", &staquery.Error{EntityType: "Thing", Err: status.Error(codes.Unavailable, "later")}, codes.Unavailable},
		{"Plain", errors.New("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := staquery.Status(tt.err).Code(); got != tt.want {
				t.Errorf("Status code = %v, want %v", got, tt.want)
			}
		})
	}

	if s := staquery.Status(nil); s.Code() != codes.OK {
		t.Errorf("Status(nil) = %v, want OK", s.Code())
	}
}

func TestErrorFromStatus(t *testing.T) {
	err := &staquery.Error{EntityType: "Location", Err: &staquery.UnsupportedFunctionError{Name: "soundex"}}

	s, ok := status.FromError(err)
	if !ok {
		t.Fatal("FromError did not recognise *staquery.Error")
	}
	if s.Code() != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", s.Code())
	}
	if want := `unsupported function "soundex"`; s.Message() != want {
		t.Errorf("message = %q, want %q", s.Message(), want)
	}
	if err.Error() != `Location: unsupported function "soundex"` {
		t.Errorf("Error() = %q", err.Error())
	}
}

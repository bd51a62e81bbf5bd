package proxify

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrObjectNotFound  = errors.New("object not found")
	ErrTypeNotFound    = errors.New("type not found")
	ErrObjectDeleted   = errors.New("object deleted")
	ErrCallFailed      = errors.New("call failed")
)

// failure converts a local error into a wire result.
func failure(err error) forward.Result {
	code := forward.CodeInternal
	switch {
	case errors.Is(err, ErrInvalidArgument):
		code = forward.CodeInvalidArgument
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrTypeNotFound), errors.Is(err, ErrObjectDeleted):
		code = forward.CodeNotFound
	case errors.Is(err, ErrCallFailed):
		code = forward.CodeCallFailed
	case errors.Is(err, forward.ErrUnavailable):
		code = forward.CodeUnavailable
	}
	return forward.Result{Error: &forward.Failure{Code: code, Message: err.Error()}}
}

// remoteError maps a failure reported by the other realm back to a sentinel.
func remoteError(f *forward.Failure) error {
	if f == nil {
		return nil
	}

	var sentinel error
	switch f.Code {
	case forward.CodeInvalidArgument:
		sentinel = ErrInvalidArgument
	case forward.CodeNotFound:
		sentinel = ErrObjectNotFound
	case forward.CodeCallFailed:
		sentinel = ErrCallFailed
	case forward.CodeUnavailable:
		sentinel = forward.ErrUnavailable
	default:
		return fmt.Errorf("remote: %s", f.Message)
	}
	return fmt.Errorf("%w (remote: %s)", sentinel, f.Message)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

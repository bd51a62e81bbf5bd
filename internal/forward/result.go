package forward

import "fmt"

// Failure codes carried in a Result
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeCallFailed      = "call_failed"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Failure is an error reported by the receiving realm.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Result is the outcome of one forwarded command. Value holds literal data
// only; Error is set when the command failed on the receiving side.
type Result struct {
	Value any      `json:"value,omitempty"`
	Error *Failure `json:"error,omitempty"`
}

// Success wraps a value
func Success(value any) Result {
	return Result{Value: value}
}

// Fail builds a failed result
func Fail(code, format string, args ...any) Result {
	return Result{Error: &Failure{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}

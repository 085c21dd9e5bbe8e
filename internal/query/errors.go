package query

import "fmt"

// ParameterError reports a malformed or unsupported option, operator or
// field, including a missing keyword field for the exact operator.
type ParameterError struct {
	Field string
	Msg   string
}

func (e *ParameterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return "parameter error: " + e.Msg
	}
	return fmt.Sprintf("parameter error on field [%s]: %s", e.Field, e.Msg)
}

// UnsupportedError is returned for relational constructs that have no
// equivalent in the search engine.
type UnsupportedError struct {
	Feature string
	Hint    string
}

func (e *UnsupportedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Hint == "" {
		return fmt.Sprintf("%s is not supported", e.Feature)
	}
	return fmt.Sprintf("%s is not supported: %s", e.Feature, e.Hint)
}

// SequencingError reports a predicate chain that was started or continued
// in an invalid order.
type SequencingError struct {
	Msg string
}

func (e *SequencingError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "incorrect query sequencing: " + e.Msg
}

// ExecutionError wraps a failure reported by the transport.
type ExecutionError struct {
	Op      string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func paramErr(field, format string, args ...any) *ParameterError {
	return &ParameterError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

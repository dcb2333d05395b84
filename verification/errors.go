package verification

import (
	"fmt"
	"strings"
)

// InputError is returned when a metadata document or verification request is malformed. It is never retried.
type InputError struct {
	Message string
}

// Error returns the error message.
func (e *InputError) Error() string {
	return e.Message
}

// newInputError creates an InputError with a formatted message.
func newInputError(format string, args ...any) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// ResourceMissingError is returned when source files could not be retrieved. Supplying the files and retrying may
// succeed.
type ResourceMissingError struct {
	// Files lists the paths that are still missing.
	Files []string
}

// Error returns the error message naming every missing file.
func (e *ResourceMissingError) Error() string {
	return "Resource missing; unsuccessful fetching: " + strings.Join(e.Files, ", ")
}

// CompilerError is returned when the compiler reported error diagnostics, produced malformed output, or could not be
// run at all.
type CompilerError struct {
	// Messages holds the compiler's diagnostics verbatim.
	Messages []string

	// Err is the underlying error, if the compiler could not be run.
	Err error
}

// Error returns the error message followed by each diagnostic.
func (e *CompilerError) Error() string {
	if e.Err != nil {
		return "Compiler error: " + e.Err.Error()
	}
	if len(e.Messages) == 0 {
		return "Compiler error"
	}
	return "Compiler error:\n" + strings.Join(e.Messages, "\n")
}

// Unwrap returns the underlying error.
func (e *CompilerError) Unwrap() error {
	return e.Err
}

// NetworkError is returned once every candidate endpoint for a network operation has failed.
type NetworkError struct {
	Message string
	Err     error
}

// Error returns the error message.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MatchFailureError is returned when every matching stage ran without reaching a verdict. Retrying with more context,
// such as a creation transaction hash, may enable further stages.
type MatchFailureError struct {
	Message string
}

// Error returns the error message.
func (e *MatchFailureError) Error() string {
	return e.Message
}

// Package errors provides the structured error type used across build and
// import jobs. Every failure that crosses a package boundary is wrapped in an
// *Error carrying a machine-readable kind and structured context, so callers
// never see a raw internal failure.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for callers that dispatch on failure type.
type Kind string

const (
	// Content tree and package shape errors
	KindStructural          Kind = "structural"           // broken/cyclic/missing hierarchy
	KindInvalidPackage      Kind = "invalid_package"      // package layout not recognized
	KindIncompatiblePackage Kind = "incompatible_package" // manifest major version mismatch

	// Plugin resolution errors
	KindMissingDependency      Kind = "missing_dependency"
	KindIncompatibleDependency Kind = "incompatible_dependency"

	// Item and schema errors
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"

	// Infrastructure errors
	KindExternalTool Kind = "external_tool" // nonzero compiler exit
	KindIO           Kind = "io"
	KindInternal     Kind = "internal"
)

// Severity indicates how a job should react to the error.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // job aborts and cleans up
	SeverityWarning Severity = "warning" // recorded in the status report, job continues
)

// ContextFields carries structured context attached to an Error.
type ContextFields map[string]any

// Error is a structured error with kind, severity and context.
type Error struct {
	Kind     Kind          `json:"kind"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Severity, e.Message)
}

// Unwrap supports errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// WithContext adds a context field and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a fatal Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Message: message}
}

// Wrap creates a fatal Error of the given kind wrapping a cause.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Message: message, Cause: err}
}

// Warning creates a non-fatal Error of the given kind.
func Warning(kind Kind, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityWarning, Message: message}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind extracts the kind from an error chain, defaulting to KindInternal.
func GetKind(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsFatal reports whether the error should abort the running job. Errors that
// are not *Error are always fatal.
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return err != nil
}

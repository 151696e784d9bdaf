package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of a pipeline failure.
type Kind string

const (
	// KindValidation indicates malformed or missing input, or output that
	// violates its response schema.
	KindValidation Kind = "validation"

	// KindNotFound indicates a referenced entity does not exist.
	KindNotFound Kind = "not_found"

	// KindForbidden indicates an authorization gate denied the request.
	KindForbidden Kind = "forbidden"

	// KindUnauthenticated indicates no caller identity was resolved.
	KindUnauthenticated Kind = "unauthenticated"

	// KindInternal covers everything else, including persistence faults.
	KindInternal Kind = "internal"
)

// Issue describes one field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified pipeline failure.
type Error struct {
	// Kind is the category of failure.
	Kind Kind

	// Message is the human-readable message shown to the caller.
	Message string

	// Phase is the lifecycle phase that failed. The executor fills it in.
	Phase Phase

	// Details lists field-level issues for validation failures.
	Details []Issue

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (%s): %s", e.Kind, e.Phase, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the transport status code for this error's kind.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindUnauthenticated:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails attaches field-level issues.
func (e *Error) WithDetails(details ...Issue) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(message string, details ...Issue) *Error {
	return NewError(KindValidation, message).WithDetails(details...)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *Error {
	return NewError(KindNotFound, message)
}

// ErrForbidden creates a forbidden error.
func ErrForbidden(message string) *Error {
	return NewError(KindForbidden, message)
}

// ErrUnauthenticated creates an unauthenticated error.
func ErrUnauthenticated(message string) *Error {
	return NewError(KindUnauthenticated, message)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *Error {
	return NewError(KindInternal, message)
}

// KindOf reports the kind of err. Unclassified errors are internal; nil has
// no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrNoAuthorization is returned by NewHandler when a composition is missing
// an authorization gate.
var ErrNoAuthorization = errors.New("handler defines no authorization gate")

// CompositionError reports two fragments providing the same single-occurrence
// slot.
type CompositionError struct {
	Slot   Phase
	First  string
	Second string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("compose: slot %s provided by both %s and %s", e.Slot, e.First, e.Second)
}

// classify turns whatever a phase returned into a classified error. fallback
// is used for unclassified errors; keep lists the kinds a phase may report
// as-is (nil keeps every kind).
func classify(phase Phase, err error, fallback Kind, keep ...Kind) *Error {
	var pe *Error
	if errors.As(err, &pe) && keeps(keep, pe.Kind) {
		out := *pe
		if out.Phase == "" {
			out.Phase = phase
		}
		return &out
	}
	msg := defaultMessage(fallback)
	return &Error{Kind: fallback, Message: msg, Phase: phase, Err: err}
}

func keeps(kinds []Kind, k Kind) bool {
	if kinds == nil {
		return true
	}
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return "Validation failed"
	case KindNotFound:
		return "Not Found"
	case KindForbidden:
		return "Forbidden"
	case KindUnauthenticated:
		return "Authentication required"
	default:
		return "An unexpected error occurred"
	}
}

package layout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation is wrapped by every ValidationError.
	ErrInvalidOperation = errors.New("layout: invalid operation")
	// ErrNoDocument is returned when an operation needs a loaded document.
	ErrNoDocument = errors.New("layout: no document loaded")
)

// ValidationError describes why an operation was rejected against the
// current document. The store is left unchanged whenever one is returned.
type ValidationError struct {
	Kind   OperationKind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return fmt.Sprintf("layout: invalid %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("layout: invalid %s %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOperation
}

func invalid(kind OperationKind, field, format string, args ...any) error {
	return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}

package inquiries

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a submission rejected by field validation.
	ErrValidation = errors.New("inquiries: validation failed")
	// ErrNotFound marks a lookup of a record that does not exist.
	ErrNotFound = errors.New("inquiries: record not found")
	// ErrInvalidStatus marks an unknown order status.
	ErrInvalidStatus = errors.New("inquiries: invalid order status")
	// ErrEmptyNote marks a note without text.
	ErrEmptyNote = errors.New("inquiries: note text is required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError attaches a stable operation.reason code to a failure.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

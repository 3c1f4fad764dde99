package mailbox

import (
	"errors"
	"fmt"
)

var (
	// ErrMailboxNotConfigured means no active IMAP settings are stored.
	ErrMailboxNotConfigured = errors.New("mailbox: imap settings not configured")
	// ErrNotFound marks a lookup of a cached email that does not exist.
	ErrNotFound = errors.New("mailbox: email not found")
	// ErrConnection wraps a failure talking to the IMAP server.
	ErrConnection = errors.New("mailbox: imap connection failed")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingSettings   = errors.New("settings source is required")
	errMissingSource     = errors.New("message source is required")
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

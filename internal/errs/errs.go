// Package errs defines the failure kinds the pipeline distinguishes when it
// records an item error in the ledger.
package errs

import (
	"errors"
	"fmt"
)

// Kind names a failure category for logging and alert details
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindTransfer     Kind = "transfer"
	KindAuth         Kind = "auth"
	KindNotification Kind = "notification"
	KindUnknown      Kind = "unknown"
)

func format(message string, err error) string {
	if err == nil {
		return message
	}
	if message == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", message, err)
}

// NotFoundError reports missing source data, such as an item without streams
type NotFoundError struct {
	Op      string
	Message string
	Err     error
}

func (e *NotFoundError) Error() string { return format(e.Message, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// ValidationError reports source data that cannot be processed as-is
type ValidationError struct {
	Op      string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return format(e.Message, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// TransferError reports a download or upload I/O or HTTP failure
type TransferError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string { return format(e.Message, e.Err) }
func (e *TransferError) Unwrap() error { return e.Err }

// AuthError reports an expired or revoked credential. The operator has to
// re-run the out-of-band authorization before the step can succeed.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string { return format(e.Message, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotificationError reports a webhook failure
type NotificationError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *NotificationError) Error() string { return format(e.Message, e.Err) }
func (e *NotificationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation reports whether err wraps a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTransfer reports whether err wraps a TransferError
func IsTransfer(err error) bool {
	var target *TransferError
	return errors.As(err, &target)
}

// IsAuth reports whether err wraps an AuthError
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsNotification reports whether err wraps a NotificationError
func IsNotification(err error) bool {
	var target *NotificationError
	return errors.As(err, &target)
}

// KindOf returns the outermost known kind wrapped by err
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsAuth(err):
		return KindAuth
	case IsNotFound(err):
		return KindNotFound
	case IsValidation(err):
		return KindValidation
	case IsNotification(err):
		return KindNotification
	case IsTransfer(err):
		return KindTransfer
	default:
		return KindUnknown
	}
}

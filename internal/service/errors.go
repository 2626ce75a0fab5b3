package service

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrAuthentication  = errors.New("authentication failed")
	ErrSessionCorrupt  = errors.New("persisted session is corrupt")
	ErrCartSync        = errors.New("cart sync failed")
	ErrValidation      = errors.New("validation failed")
	ErrPaymentLaunch   = errors.New("payment app launch failed")
	ErrOrderSubmission = errors.New("order submission failed")
)

// OperationError carries a user-facing message for a failed operation.
// It matches both its Kind and the underlying cause.
type OperationError struct {
	Kind    error
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *OperationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newOpError(kind error, message string, err error) *OperationError {
	return &OperationError{Kind: kind, Message: message, Err: err}
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

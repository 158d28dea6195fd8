package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the payment ledger.
var (
	ErrInvalidAmount                  = errors.New("invalid amount")
	ErrInvalidTotalAmount             = errors.New("invalid total amount")
	ErrExceedsBalance                 = errors.New("payment exceeds remaining balance")
	ErrInvalidMethod                  = errors.New("invalid payment method")
	ErrInvalidStatus                  = errors.New("invalid payment status")
	ErrInvalidAppointmentStatus       = errors.New("invalid appointment payment status")
	ErrInvalidProviderCode            = errors.New("invalid provider code")
	ErrInvalidProviderResponse        = errors.New("invalid provider response")
	ErrInvalidTransactionID           = errors.New("invalid transaction id")
	ErrInvalidAppointmentID           = errors.New("invalid appointment id")
	ErrInvalidPaymentID               = errors.New("invalid payment id")
	ErrInvalidSplitGroupID            = errors.New("invalid split payment group id")
	ErrInvalidSequence                = errors.New("invalid payment sequence")
	ErrInvalidStatusTransition        = errors.New("invalid payment status transition")
	ErrAppointmentNotFound            = errors.New("appointment not found")
	ErrPaymentNotFound                = errors.New("payment not found")
	ErrNoPayments                     = errors.New("no payments recorded")
	ErrWouldUnpayCompletedAppointment = errors.New("deleting payment would unpay a completed appointment")
	ErrBatchValidationFailure         = errors.New("split payment batch rejected")
	ErrEmptyBatch                     = errors.New("split payment batch is empty")
	ErrDuplicateProviderTransaction   = errors.New("provider transaction already recorded")
	ErrInvalidServiceConfig           = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// BatchValidationError reports the first rejected item of a split payment batch.
// It matches both ErrBatchValidationFailure and the item's own error under errors.Is.
type BatchValidationError struct {
	Index int
	Err   error
}

func (batchError BatchValidationError) Error() string {
	return fmt.Sprintf("%v: item %d: %v", ErrBatchValidationFailure, batchError.Index, batchError.Err)
}

// Unwrap exposes both the batch sentinel and the item failure.
func (batchError BatchValidationError) Unwrap() []error {
	return []error{ErrBatchValidationFailure, batchError.Err}
}
